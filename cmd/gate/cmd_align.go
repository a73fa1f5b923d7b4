package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gatecheck/internal/alignment"
)

// =============================================================================
// ALIGNMENT COMMANDS
// =============================================================================

var alignCmd = &cobra.Command{
	Use:   "align",
	Short: "Evaluate actions against the vision charter",
	Long: `Runs proposed agent actions through the alignment rules and reports the
resulting level, concerns and recommendations.

Examples:
  gate align evaluate "Delete temp files" --type file_deletion --risk high
  gate align evaluate "Rewrite auth" --type major_refactor --raise
  gate align summary
  gate align history --limit 10`,
}

var (
	evalType         string
	evalRisk         string
	evalTools        []string
	evalNoSafety     bool
	evalOffPlan      bool
	evalPrefsIgnored bool
	evalRaise        bool
	evalJSON         bool
)

var alignEvaluateCmd = &cobra.Command{
	Use:   "evaluate <description>",
	Short: "Evaluate one action",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		description := joinArgs(args)
		opts := []alignment.EvalOption{
			alignment.WithRiskLevel(evalRisk),
			alignment.WithToolsUsed(evalTools...),
			alignment.WithSafetyChecksPassed(!evalNoSafety),
			alignment.WithProjectPlanAligned(!evalOffPlan),
			alignment.WithUserPreferencesApplied(!evalPrefsIgnored),
		}

		var check alignment.Check
		raised := false
		if evalRaise {
			res, err := proto.Guard(description, evalType, opts...)
			if err != nil {
				return err
			}
			check, raised = res.Check, res.Raised
		} else {
			check = proto.Gate.Evaluate(description, evalType, opts...)
		}
		logger.Debug("alignment evaluated", zap.String("level", string(check.Level)), zap.Bool("raised", raised))

		out := cmd.OutOrStdout()
		if evalJSON {
			return printJSON(out, check)
		}

		fmt.Fprintf(out, "%s %s (confidence %.1f)\n",
			labelStyle.Render("Alignment:"), levelStyle(check.Level).Render(string(check.Level)), check.Confidence)
		for i, c := range check.Concerns {
			fmt.Fprintf(out, "  - [%s] %s\n", check.DriftTypes[i], c)
			fmt.Fprintf(out, "    %s\n", mutedStyle.Render("→ "+check.Recommendations[i]))
		}
		if check.Blocking {
			fmt.Fprintln(out, levelStyle(alignment.LevelCritical).Render("Blocked: do not proceed without the user's decision."))
		} else if check.RequiresUserInput {
			fmt.Fprintln(out, "User input required before proceeding.")
		}
		if raised {
			fmt.Fprintf(out, "Gate request written: %s\n", proto.Mailbox.RequestPath())
		}
		return nil
	},
}

var alignSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarise recent alignment checks",
	RunE: func(cmd *cobra.Command, args []string) error {
		s := proto.Gate.Summary()

		var sb strings.Builder
		sb.WriteString(titleStyle.Render("Alignment summary"))
		sb.WriteString("\n")
		fmt.Fprintf(&sb, "%s %d\n", labelStyle.Render("Checks:"), s.Total)
		fmt.Fprintf(&sb, "%s %s\n", labelStyle.Render("Score:"), scoreStyle(s.OverallScore).Render(fmt.Sprintf("%.2f", s.OverallScore)))
		for _, l := range alignment.Levels {
			fmt.Fprintf(&sb, "%s %d\n", labelStyle.Render(levelStyle(l).Render(string(l))), s.Levels[l])
		}
		if len(s.RecentConcerns) > 0 {
			sb.WriteString("\nRecent concerns:\n")
			for _, concerns := range s.RecentConcerns {
				fmt.Fprintf(&sb, "- %s\n", strings.Join(concerns, "; "))
			}
		}

		fmt.Fprintln(cmd.OutOrStdout(), boxStyle.Render(strings.TrimRight(sb.String(), "\n")))
		return nil
	},
}

var historyLimit int

var alignHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List past alignment checks, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		var checks []alignment.Check
		if store := proto.Store(); store != nil {
			var err error
			checks, err = store.History(historyLimit)
			if err != nil {
				return err
			}
		} else {
			h := proto.Gate.History()
			for i := len(h) - 1; i >= 0 && len(checks) < historyLimit; i-- {
				checks = append(checks, h[i])
			}
		}

		out := cmd.OutOrStdout()
		if len(checks) == 0 {
			fmt.Fprintln(out, "No alignment checks recorded.")
			return nil
		}
		for _, c := range checks {
			fmt.Fprintf(out, "%s  %-10s  %s\n",
				c.Timestamp.Format("2006-01-02 15:04:05"), string(c.Level), c.ActionDescription)
		}
		return nil
	},
}

// =============================================================================
// CHARTER COMMANDS
// =============================================================================

var charterCmd = &cobra.Command{
	Use:   "charter",
	Short: "Show or change the vision charter preferences",
}

var charterShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the charter",
	RunE: func(cmd *cobra.Command, args []string) error {
		fields := proto.Gate.Charter().Fields()
		names := make([]string, 0, len(fields))
		for k := range fields {
			names = append(names, k)
		}
		sort.Strings(names)

		out := cmd.OutOrStdout()
		for _, name := range names {
			fmt.Fprintf(out, "%-30s %v\n", name, fields[name])
		}
		return nil
	},
}

var charterSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change charter preferences",
	Long: `Sets one or more preferences and saves the charter.

Example:
  gate charter set wants_approval_before_changes=false safety_first=true

Preferences: ` + strings.Join(alignment.FieldNames(), ", "),
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := proto.Gate.Charter()
		for _, arg := range args {
			key, value, ok := strings.Cut(arg, "=")
			if !ok {
				return fmt.Errorf("expected key=value, got %q", arg)
			}
			if err := c.Set(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
				return err
			}
		}
		if err := proto.Gate.UpdateCharter(c); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Charter updated (%d preference(s)).\n", len(args))
		return nil
	},
}

func init() {
	alignEvaluateCmd.Flags().StringVarP(&evalType, "type", "t", "edit", "Action type (e.g. file_deletion, major_refactor, system_change)")
	alignEvaluateCmd.Flags().StringVarP(&evalRisk, "risk", "r", "unknown", "Risk level: low, medium, high, critical")
	alignEvaluateCmd.Flags().StringArrayVar(&evalTools, "tool", nil, "Tool used for the action (repeatable)")
	alignEvaluateCmd.Flags().BoolVar(&evalNoSafety, "no-safety", false, "Safety checks did not pass")
	alignEvaluateCmd.Flags().BoolVar(&evalOffPlan, "off-plan", false, "Action is not in the project plan")
	alignEvaluateCmd.Flags().BoolVar(&evalPrefsIgnored, "prefs-ignored", false, "User preferences were not applied")
	alignEvaluateCmd.Flags().BoolVar(&evalRaise, "raise", false, "Write a gate request when user input is required")
	alignEvaluateCmd.Flags().BoolVar(&evalJSON, "json", false, "Print the check as JSON")

	alignHistoryCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum checks to list")

	alignCmd.AddCommand(alignEvaluateCmd)
	alignCmd.AddCommand(alignSummaryCmd)
	alignCmd.AddCommand(alignHistoryCmd)

	charterCmd.AddCommand(charterShowCmd)
	charterCmd.AddCommand(charterSetCmd)

	rootCmd.AddCommand(alignCmd)
	rootCmd.AddCommand(charterCmd)
}
