package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BertoldVdb/battid/battserver/battclient"
	"github.com/spf13/cobra"
)

func newDiscoverCmd() *cobra.Command {
	var timeout time.Duration
	var instance string

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find battservers on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			services, err := battclient.Discover(ctx, instance)
			if err != nil {
				return err
			}
			if len(services) == 0 {
				return errors.New("no servers found")
			}

			for _, m := range services {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", m.Instance, m.URL(), strings.Join(m.Chips, ","))
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "How long to listen for announcements")
	cmd.Flags().StringVarP(&instance, "name", "n", "", "Only look for this instance")
	return cmd
}
