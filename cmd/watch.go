package main

import (
	"fmt"

	"site_watcher/internal/app"
	"site_watcher/internal/diff"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Poll the site until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadDeps()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.NewWatcherApp(cfg, log)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}

func checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a single poll cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadDeps()
			if err != nil {
				return err
			}
			defer log.Sync()

			a, err := app.NewWatcherApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			report := a.RunCycle(cmd.Context())
			out := cmd.OutOrStdout()

			switch {
			case report.Page.Err != nil:
				fmt.Fprintf(out, "page: %s error: %v\n", app.Classify(report.Page.Err), report.Page.Err)
			case diff.IsInitial(report.Page.Events):
				fmt.Fprintln(out, "page: initial scan, snapshot created")
			default:
				fmt.Fprintf(out, "page: %d change(s)\n", len(report.Page.Events))
				for _, e := range report.Page.Events {
					fmt.Fprintf(out, "  • %s\n", e)
				}
			}

			switch {
			case report.Talk.Skipped:
				fmt.Fprintln(out, "talk: skipped")
			case report.Talk.Err != nil:
				fmt.Fprintf(out, "talk: %s error: %v\n", app.Classify(report.Talk.Err), report.Talk.Err)
			default:
				for _, e := range report.Talk.Events {
					fmt.Fprintf(out, "talk: %s\n", e)
				}
				if len(report.Talk.Events) == 0 {
					fmt.Fprintln(out, "talk: no new messages")
				}
			}

			if report.Page.Err != nil || report.Talk.Err != nil {
				log.Warn("Cycle finished with errors", zap.String("cycle_id", report.ID))
				return fmt.Errorf("cycle %s finished with errors", report.ID)
			}
			return nil
		},
	}
}
