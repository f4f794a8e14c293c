package cmd

import (
	"os"

	"github.com/BertoldVdb/battid/battchip"
	"github.com/spf13/cobra"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode FILE",
		Short: "Classify a saved 128 byte image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			img, err := battchip.ImageFromBytes(data)
			if err != nil {
				return err
			}

			printIdentity(cmd.OutOrStdout(), battchip.Decode(img))
			return nil
		},
	}
}
