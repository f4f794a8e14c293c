package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDumpCmd(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the raw identification field",
		Long: `Read the chip and print its identification field as four pages of 32 bytes.
With --out the raw 128 bytes are also saved, the file can be served again with
a sim: chip path or classified with the decode command.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chip, err := opts.openChip()
			if err != nil {
				if chip != nil {
					chip.Close()
				}
				return err
			}
			defer chip.Close()

			img, _ := chip.Image()
			fmt.Fprint(cmd.OutOrStdout(), img.Dump())

			if out != "" {
				return os.WriteFile(out, img[:], 0o644)
			}
			return nil
		},
	}

	addChipFlag(cmd, opts)
	cmd.Flags().StringVarP(&out, "out", "o", "", "Save the raw image to this file")
	return cmd
}
