package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-triage/internal/logging"
	"github.com/danielpatrickdp/adaptive-triage/internal/state"
)

func inspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect the model registry and archived sessions",
	}
	cmd.AddCommand(inspectVersionsCmd())
	cmd.AddCommand(inspectSessionsCmd())
	cmd.AddCommand(inspectSessionCmd())
	return cmd
}

// #region versions
func inspectVersionsCmd() *cobra.Command {
	var (
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "List model versions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			versions, err := store.ListVersions(last)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(versions)
			}
			if len(versions) == 0 {
				fmt.Println("no versions found")
				return nil
			}
			active := ""
			if cur, err := store.GetActive(); err == nil {
				active = cur.VersionID
			}

			fmt.Printf("%-2s %-10s %-10s %-10s %-20s %s\n", "", "Version", "Parent", "Status", "Created", "Metrics")
			for _, v := range versions {
				mark := ""
				if v.VersionID == active {
					mark = "*"
				}
				fmt.Printf("%-2s %-10s %-10s %-10s %-20s %s\n",
					mark, shortID(v.VersionID), shortID(v.ParentID), v.Status,
					v.CreatedAt.Format("2006-01-02T15:04:05Z"), v.MetricsJSON)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent versions")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// #endregion versions

// #region sessions
func inspectSessionsCmd() *cobra.Command {
	var (
		last    int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List finished sessions, most recent first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, err := store.ListSessions(last)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(sessions)
			}
			if len(sessions) == 0 {
				fmt.Println("no sessions found")
				return nil
			}
			fmt.Printf("%-10s %-26s %6s %-22s %-13s %3s %s\n", "Session", "Primary", "Conf", "Tier", "Stop", "Q", "Finished")
			for _, s := range sessions {
				primary := s.Primary
				if primary == "" {
					primary = "-"
				}
				fmt.Printf("%-10s %-26s %5.1f%% %-22s %-13s %3d %s\n",
					shortID(s.SessionID), primary, 100*s.Confidence, s.Tier, s.StopReason,
					s.QuestionsAsked, s.FinishedAt.Format("2006-01-02T15:04:05Z"))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent sessions")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

type sessionDetail struct {
	Session state.SessionRecord `json:"session"`
	Turns   []logging.TurnEntry `json:"turns"`
}

func inspectSessionCmd() *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "session id",
		Short: "Show one session with its turn journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rec, err := store.GetSession(args[0])
			if err != nil {
				return err
			}
			turns, err := logging.ListTurns(store.DB(), rec.SessionID)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(sessionDetail{Session: rec, Turns: turns})
			}

			fmt.Printf("Session:   %s\n", rec.SessionID)
			fmt.Printf("Findings:  %s\n", rec.Findings)
			fmt.Printf("Result:    %s (%.1f%%, %s)\n", rec.PrimaryName, 100*rec.Confidence, rec.Tier)
			fmt.Printf("Stop:      %s after %d questions, %d red flags\n", rec.StopReason, rec.QuestionsAsked, rec.RedFlags)
			fmt.Printf("Knowledge: %s\n\n", rec.KnowledgeVersion)

			fmt.Printf("%3s %-7s %-28s %-26s %6s %7s %s\n", "#", "Kind", "Input", "Primary", "Conf", "H", "Next")
			for _, t := range turns {
				next := t.Question
				if t.StopReason != "" {
					next = "stop: " + t.StopReason
				}
				fmt.Printf("%3d %-7s %-28s %-26s %5.1f%% %7.4f %s\n",
					t.Seq, t.Kind, t.Input, t.Primary, 100*t.Confidence, t.Entropy, next)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// #endregion sessions

func rollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rollback version-id",
		Short: "Make a previously committed model version active again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Rollback(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", headerStyle.Render("Active model:"), args[0])
			return nil
		},
	}
}
