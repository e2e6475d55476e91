package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-triage/internal/network"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

func diagnoseCmd() *cobra.Command {
	var (
		modelPath string
		tests     []string
		jsonOut   bool
		trace     bool
	)
	cmd := &cobra.Command{
		Use:   "diagnose finding...",
		Short: "One-shot diagnosis from a list of findings",
		Example: `  triage diagnose fever=0.8 cough=0.6 sore_throat=no
  triage diagnose fever=0.9 muscle_pain=0.7 --test flu_test=positive`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			v := symptom.NewVector()
			for _, a := range args {
				ans, err := parseFinding(a)
				if err != nil {
					return err
				}
				if err := v.Set(ans.Symptom, ans.Presence, ans.Severity); err != nil {
					return err
				}
			}
			for _, t := range tests {
				id, r, err := parseTest(t)
				if err != nil {
					return err
				}
				if err := v.SetTest(id, r); err != nil {
					return err
				}
			}

			engine := newEngine(network.NewHolder(model), table, nil, 0)
			res, err := engine.Diagnose(v)
			if err != nil {
				return err
			}
			if !trace {
				res.Trace = nil
			}
			if jsonOut {
				return printJSON(res)
			}
			renderResult(os.Stdout, res)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model", "", "model artifact (default: active model)")
	cmd.Flags().StringArrayVar(&tests, "test", nil, "test result as id=positive|negative (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&trace, "trace", false, "include the rule trace in JSON output")
	return cmd
}
