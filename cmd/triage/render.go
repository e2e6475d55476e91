package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/selector"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	alertStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderResult writes a human-readable result.
func renderResult(w io.Writer, res diagnosis.Result) {
	var b strings.Builder
	for _, rf := range res.RedFlags {
		b.WriteString(alertStyle.Render("RED FLAG: "+rf.Message) + "\n")
	}
	if len(res.RedFlags) > 0 {
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Primary:"), res.PrimaryName)
	if !res.IsIndeterminate() {
		fmt.Fprintf(&b, "%s %.1f%%\n", headerStyle.Render("Confidence:"), 100*res.Confidence)
	}
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Tier:"), res.Tier)
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Syndrome:"), res.Syndrome)
	if res.SyndromeDiagnosis != "" && res.SyndromeDiagnosis != res.PrimaryName {
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Working diagnosis:"), res.SyndromeDiagnosis)
	}
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Severity:"), res.Severity)
	if len(res.RequiredTests) > 0 {
		fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("Confirm with:"), strings.Join(res.RequiredTests, ", "))
	}
	if res.StopReason != diagnosis.StopNone {
		fmt.Fprintf(&b, "%s\n", mutedStyle.Render(fmt.Sprintf("stopped: %s after %d questions", res.StopReason, res.QuestionsAsked)))
	}

	if len(res.Differential) > 0 {
		b.WriteString("\n" + headerStyle.Render("Differential") + "\n")
		for i, c := range res.Differential {
			fmt.Fprintf(&b, "  %d. %-40s %5.1f%%\n", i+1, c.Name, 100*c.Probability)
		}
	}
	renderFindings(&b, "Key findings", res.Reasoning.KeyFindings)
	renderFindings(&b, "Supporting", res.Reasoning.Supporting)
	renderFindings(&b, "Less typical", res.Reasoning.Inconsistent)
	if len(res.Recommendations) > 0 {
		b.WriteString("\n" + headerStyle.Render("Recommendations") + "\n")
		for _, r := range res.Recommendations {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	if len(res.SupportiveTests) > 0 {
		fmt.Fprintf(&b, "%s\n", mutedStyle.Render("supportive tests: "+strings.Join(res.SupportiveTests, ", ")))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.TrimRight(b.String(), "\n")))
}

func renderFindings(b *strings.Builder, title string, fs []diagnosis.Finding) {
	if len(fs) == 0 {
		return
	}
	b.WriteString("\n" + headerStyle.Render(title) + "\n")
	for _, f := range fs {
		fmt.Fprintf(b, "  %-28s %s\n", f.Symptom, mutedStyle.Render(f.Note))
	}
}

func renderCandidates(w io.Writer, cs []selector.Candidate) {
	for _, c := range cs {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("    %-22s eig=%.4f", c.Symptom.Key(), c.EIG)))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
