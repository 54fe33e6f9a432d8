package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newReclassifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reclassify",
		Short: "Run the four reclassify passes once and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			d, err := bootstrap(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = d.close() }()

			report, runErr := d.newReclassifier(ctx).RunOnce(ctx)
			if report != nil {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				_ = enc.Encode(report)
			}
			return runErr
		},
	}
}
