package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-triage/internal/network"
	"github.com/danielpatrickdp/adaptive-triage/internal/replay"
	"github.com/danielpatrickdp/adaptive-triage/internal/session"
)

func replayCmd() *cobra.Command {
	var (
		modelPath string
		jsonOut   bool
	)
	cmd := &cobra.Command{
		Use:   "replay fixture.json",
		Short: "Replay scripted sessions and check their outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			scripts, err := f.ToScripts()
			if err != nil {
				return err
			}
			table, err := loadTable()
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			model, err := loadModel(store, table, modelPath)
			if err != nil {
				return err
			}

			rc := f.Config.ToReplayConfig()
			rc.Gate.DefaultSeverity = cfg.DefaultSeverity
			results, err := replay.Replay(network.NewHolder(model), table, scripts, rc, session.WithLogger(slog.Default()))
			if err != nil {
				return err
			}
			summary := replay.Summarize(results)
			if jsonOut {
				if err := printJSON(results); err != nil {
					return err
				}
			} else {
				for _, r := range results {
					mark := "ok  "
					if !r.Passed {
						mark = alertStyle.Render("FAIL")
					}
					primary := r.Primary
					if primary == "" {
						primary = "-"
					}
					fmt.Printf("%s %-28s primary=%-26s tier=%-22s stop=%-13s q=%d\n",
						mark, r.CaseID, primary, r.Tier, r.StopReason, r.QuestionsAsked)
					for _, m := range r.Mismatches {
						fmt.Println(mutedStyle.Render("     " + m))
					}
				}
			}
			replay.LogSummary(slog.Default(), summary)
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d cases failed", summary.Failed, summary.TotalCases)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "model artifact (default: active model)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output results as JSON")
	return cmd
}
