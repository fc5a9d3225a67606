package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sushiva/omni-channel-ai-servicing/internal/config"
	"github.com/sushiva/omni-channel-ai-servicing/internal/doctor"
)

var (
	doctorOffline bool
	doctorJSON    bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (data dir, model keys, audit DB, index, services)",
	Long: `Verifies the data directory is writable, model credentials are present, the audit
DB opens, policies and guardrail rules compile, the knowledge index is built, and the
downstream services answer.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "Skip downstream service checks")
	doctorCmd.Flags().BoolVar(&doctorJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	report := doctor.Run(ctx, cfg, doctor.Options{SkipUpstream: doctorOffline})

	out := cmd.OutOrStdout()
	if doctorJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		renderDoctorReport(out, report)
	}
	if report.Status == doctor.StatusFail {
		return fmt.Errorf("preflight checks failed")
	}
	return nil
}

// renderDoctorReport writes one line per check to w (testable).
func renderDoctorReport(w io.Writer, r *doctor.Report) {
	for _, c := range r.Checks {
		mark := "\u2713"
		switch c.Status {
		case doctor.StatusWarn:
			mark = "\u26a0"
		case doctor.StatusFail:
			mark = "\u2717"
		}
		fmt.Fprintf(w, "%s [%s] %s: %s\n", mark, c.Category, c.Name, c.Message)
		if c.Fix != "" && c.Status != doctor.StatusPass {
			fmt.Fprintf(w, "    fix: %s\n", c.Fix)
		}
	}
	fmt.Fprintf(w, "\n%d passed, %d warnings, %d failed\n", r.Summary.Pass, r.Summary.Warn, r.Summary.Fail)
}
