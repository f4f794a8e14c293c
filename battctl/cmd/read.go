package cmd

import (
	"fmt"
	"io"

	"github.com/BertoldVdb/battid/battchip"
	"github.com/spf13/cobra"
)

func newReadCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a chip and report its resistance class",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			chip, err := opts.openChip()
			if chip == nil {
				return err
			}
			defer chip.Close()

			printDiagnostics(cmd.OutOrStdout(), chip.Diagnostics())
			return err
		},
	}

	addChipFlag(cmd, opts)
	return cmd
}

func printIdentity(w io.Writer, id battchip.Identity) {
	fmt.Fprintf(w, "Header:     0x%08x\n", id.Header)
	fmt.Fprintf(w, "Authentic:  %v\n", id.Authentic)
	fmt.Fprintf(w, "PseudoID:   0x%08x\n", id.PseudoID)
	fmt.Fprintf(w, "Class:      %s\n", id.Class)
	fmt.Fprintf(w, "Resistance: %s\n", id.Resistance())
}

func printDiagnostics(w io.Writer, d battchip.Diagnostics) {
	fmt.Fprintf(w, "State:      %s\n", d.State)
	if d.Valid {
		printIdentity(w, d.Identity)
	} else {
		fmt.Fprintf(w, "Resistance: %s\n", battchip.ResistanceUnknown)
	}
	if d.Error != "" {
		fmt.Fprintf(w, "Error:      %s\n", d.Error)
	}
	fmt.Fprintf(w, "Stats:      %s\n", d.Stats)
}
