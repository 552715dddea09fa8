package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func remindersCmd(gf *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reminders",
		Short: "Run one expiry-reminder sweep and print its stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, logger, err := loadConfig(gf)
			if err != nil {
				return err
			}
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.reminderJob.RunOnce(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		},
	}
}
