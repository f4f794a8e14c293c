package cmd

import (
	"github.com/BertoldVdb/battid/battchip"
	"github.com/BertoldVdb/battid/battchip/chipopen"
	"github.com/BertoldVdb/battid/internal/observability"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type options struct {
	verbose bool
	chip    string
	logger  zerolog.Logger
}

// NewRootCmd builds the command tree. Every call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "battctl",
		Short: "BQ2022 battery id tool",
		Long: `battctl reads the 128 byte identification field of BQ2022 battery id chips
and reports the battery vendor and resistance class.

Chip paths:
  uart:/dev/ttyUSB0       1-Wire master on a serial port
  platform[:bus]          kernel 1-Wire bus
  ds248x:/dev/i2c-1:0x18  DS248x bridge on an I²C bus
  usb:[serial]:[addr]     DS248x behind an MCP2221A USB bridge
  sim:[dump file]         simulated chip serving a dump`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger = observability.InitLogger("battctl", opts.verbose)
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log bus transactions")

	rootCmd.AddCommand(
		newReadCmd(opts),
		newDumpCmd(opts),
		newDecodeCmd(),
		newRemoteCmd(),
		newDiscoverCmd(),
	)

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func addChipFlag(cmd *cobra.Command, opts *options) {
	cmd.Flags().StringVarP(&opts.chip, "chip", "c", "", "Chip path")
	cmd.MarkFlagRequired("chip")
}

func (o *options) openChip() (*battchip.Chip, error) {
	return chipopen.OpenChip(o.chip, observability.ChipLog(o.logger, o.chip))
}
