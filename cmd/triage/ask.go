package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/network"
	"github.com/danielpatrickdp/adaptive-triage/internal/session"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

func askCmd() *cobra.Command {
	var (
		modelPath string
		debugK    int
		findings  []string
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Interactive adaptive questioning",
		Long: `Ask starts a session and asks the most informative question at each step.
Answer with yes [severity], no or unknown. Type "test <id> positive|negative"
to record a test result, "finish" to stop early.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			var prior []session.Answer
			for _, f := range findings {
				a, err := parseFinding(f)
				if err != nil {
					return err
				}
				prior = append(prior, a)
			}

			engine := newEngine(network.NewHolder(model), table, store, debugK)
			res, err := runWizard(engine, prior, os.Stdin, os.Stdout)
			if err != nil {
				return err
			}
			renderResult(os.Stdout, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "model artifact (default: active model)")
	cmd.Flags().IntVar(&debugK, "debug-k", 0, "show the top K questions by information gain")
	cmd.Flags().StringArrayVar(&findings, "finding", nil, "known finding as name=severity (repeatable)")
	cmd.Flags().Int("max-questions", 0, "question budget")
	_ = viper.BindPFlag("max_questions", cmd.Flags().Lookup("max-questions"))
	return cmd
}

// runWizard drives a session from line-oriented input until it finishes or
// the input ends.
func runWizard(engine *session.Engine, prior []session.Answer, in io.Reader, out io.Writer) (diagnosis.Result, error) {
	turn, err := engine.Start(prior)
	if err != nil {
		return diagnosis.Result{}, err
	}
	id := turn.SessionID
	scanner := bufio.NewScanner(in)

	for !turn.Finished() {
		q := turn.Question
		renderCandidates(out, turn.Candidates)
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render(fmt.Sprintf("Q%d.", turn.QuestionsAsked+1)), q.Text)
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)

		switch {
		case line == "finish" || line == "quit":
			return engine.Finish(id)
		case len(fields) == 3 && fields[0] == "test":
			r, perr := symptom.ParseTestResult(fields[2])
			if perr != nil {
				fmt.Fprintln(out, alertStyle.Render(perr.Error()))
				continue
			}
			next, terr := engine.RecordTest(id, fields[1], r)
			if terr != nil {
				fmt.Fprintln(out, alertStyle.Render(terr.Error()))
				continue
			}
			turn = next
		default:
			p, sev, perr := parseReply(fields)
			if perr != nil {
				fmt.Fprintln(out, alertStyle.Render(perr.Error()))
				continue
			}
			next, aerr := engine.Answer(id, q.Symptom, p, sev)
			if aerr != nil {
				fmt.Fprintln(out, alertStyle.Render(aerr.Error()))
				continue
			}
			turn = next
		}
	}
	if turn.Finished() {
		return *turn.Result, nil
	}
	return engine.Finish(id)
}

// parseReply reads "yes [severity]", "no" or "unknown".
func parseReply(fields []string) (symptom.Presence, *float64, error) {
	if len(fields) == 0 {
		return symptom.Unknown, nil, fmt.Errorf("answer yes, no or unknown")
	}
	p, err := symptom.ParsePresence(fields[0])
	if err != nil {
		return symptom.Unknown, nil, err
	}
	if len(fields) < 2 || p != symptom.Present {
		return p, nil, nil
	}
	s, err := strconv.ParseFloat(fields[1], 64)
	if err != nil || s < 0 || s > 1 {
		return symptom.Unknown, nil, fmt.Errorf("severity must be a number in [0,1], got %q", fields[1])
	}
	return p, &s, nil
}
