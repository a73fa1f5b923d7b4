package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gatecheck/internal/mailbox"
	"gatecheck/internal/types"
)

// =============================================================================
// MAILBOX COMMANDS
// =============================================================================

var checkPretty bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show the pending gate as instructions for the agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		body, ok := proto.Detector.CheckActive()
		if !ok {
			fmt.Fprintln(out, "No gate active.")
			return nil
		}

		prompt := proto.Detector.RenderPrompt(body)
		if checkPretty {
			r, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(80),
			)
			if err == nil {
				if rendered, err := r.Render(prompt); err == nil {
					prompt = rendered
				}
			}
		}
		fmt.Fprint(out, prompt)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the gate state and mailbox locations",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		state := proto.Detector.State()

		fmt.Fprintf(out, "State:    %s\n", state)
		fmt.Fprintf(out, "Request:  %s\n", proto.Mailbox.RequestPath())
		fmt.Fprintf(out, "Response: %s\n", proto.Mailbox.ResponsePath())

		if state == types.StatePending {
			if body, ok := proto.Detector.CheckActive(); ok {
				fmt.Fprintf(out, "Questions: %d\n", len(mailbox.ExtractQuestions(body)))
			}
		}
		if state == types.StateResolved {
			if resp, err := proto.Mailbox.ReadResponse(); err == nil {
				fmt.Fprintf(out, "Decision: %s (%s)\n", resp.Decision, resp.Time().Format(time.RFC3339))
			}
		}

		if l, err := proto.Integrator.Load(); err == nil {
			fmt.Fprintf(out, "Ledger:   %s, %d response(s)\n", l.Status, len(l.Responses.GateResponses))
		}
		return nil
	},
}

var (
	requestTitle     string
	requestContext   string
	requestQuestions []string
)

var requestCmd = &cobra.Command{
	Use:   "request [file|-]",
	Short: "Write a gate request, replacing any previous one",
	Long: `Writes the request slot. The body is taken verbatim from a file, from stdin
with '-', or composed from --title, --context and --question flags.

Examples:
  gate request plan.md
  gate request --title "Schema change" --question "Drop the legacy table?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var body string
		switch {
		case len(requestQuestions) > 0:
			if len(requestQuestions) > 4 {
				fmt.Fprintf(cmd.ErrOrStderr(), "Only the first 4 of %d questions are kept.\n", len(requestQuestions))
			}
			title := requestTitle
			if title == "" {
				title = "Gate checkpoint"
			}
			body = mailbox.ComposeRequest(title, requestContext, requestQuestions)
		case len(args) == 1 && args[0] != "-":
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			body = string(data)
		case len(args) == 1:
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			body = string(data)
		default:
			return fmt.Errorf("provide a file, '-' for stdin, or --question")
		}

		if err := proto.Mailbox.WriteRequest(body); err != nil {
			return err
		}
		n := len(mailbox.ExtractQuestions(body))
		logger.Debug("request written", zap.Int("questions", n))
		fmt.Fprintf(cmd.OutOrStdout(), "Gate request written with %d question(s): %s\n", n, proto.Mailbox.RequestPath())
		return nil
	},
}

var (
	submitAnswers  []string
	submitDecision string
	submitContext  string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record the human's answers and decision",
	Long: `Writes the response slot and folds it into the vision ledger.

Example:
  gate submit --answer "yes" --answer "keep a backup" --decision proceed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		decision, ok := types.ParseDecision(submitDecision)
		if !ok {
			return fmt.Errorf("invalid decision %q: must be proceed, modify or stop", submitDecision)
		}

		res, err := proto.Detector.Submit(submitAnswers, decision, submitContext)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Response recorded: %s (%d answer(s))\n", decision, len(submitAnswers))
		switch {
		case res.IntegrationErr != nil:
			fmt.Fprintf(out, "Ledger not updated: %v\n", res.IntegrationErr)
		case res.Integrated:
			fmt.Fprintf(out, "Ledger updated: %s\n", proto.Integrator.Path())
		}
		return nil
	},
}

var waitTimeout time.Duration

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Block until the pending gate is answered",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if waitTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, waitTimeout)
			defer cancel()
		}

		resp, err := proto.Detector.WaitForResponse(ctx, proto.Config.GetWaitRecheck())
		if err != nil {
			if types.IsKind(err, types.MissingArtifact) {
				fmt.Fprintln(cmd.OutOrStdout(), "No gate active.")
				return nil
			}
			return err
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

var integrateCmd = &cobra.Command{
	Use:   "integrate",
	Short: "Fold the current response into the vision ledger",
	Long: `Merges the response slot into the ledger. The response is not consumed,
so running this twice records the same answers twice.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := proto.Integrator.Integrate()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "No gate response to integrate.")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Integrated into %s\n", proto.Integrator.Path())
		return nil
	},
}

var (
	approveTitle       string
	approveDescription string
	approveTimeout     time.Duration
)

var approveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Answer the pending gate in the browser",
	Long: `Serves the pending request as a form on a loopback address and waits for a
submission. Without one before the timeout the result is 'stop' and the gate
stays pending.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if approveTimeout > 0 {
			proto.Config.Approval.Timeout = approveTimeout.String()
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := proto.Approve(ctx, approveTitle, approveDescription)
		if err != nil {
			if types.IsKind(err, types.MissingArtifact) {
				fmt.Fprintln(cmd.OutOrStdout(), "No gate active.")
				return nil
			}
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func init() {
	checkCmd.Flags().BoolVar(&checkPretty, "pretty", false, "Render the prompt as styled markdown")

	requestCmd.Flags().StringVar(&requestTitle, "title", "", "Request title")
	requestCmd.Flags().StringVar(&requestContext, "context", "", "Context shown above the questions")
	requestCmd.Flags().StringArrayVarP(&requestQuestions, "question", "q", nil, "Question to ask (repeatable, max 4)")

	submitCmd.Flags().StringArrayVarP(&submitAnswers, "answer", "a", nil, "Answer, in question order (repeatable)")
	submitCmd.Flags().StringVarP(&submitDecision, "decision", "d", "", "proceed, modify or stop")
	submitCmd.Flags().StringVar(&submitContext, "context", "", "Additional context from the user")
	_ = submitCmd.MarkFlagRequired("decision")

	waitCmd.Flags().DurationVar(&waitTimeout, "timeout", 0, "Give up after this long (0 waits forever)")

	approveCmd.Flags().StringVar(&approveTitle, "title", "", "Form title")
	approveCmd.Flags().StringVar(&approveDescription, "description", "", "Text shown above the questions")
	approveCmd.Flags().DurationVar(&approveTimeout, "timeout", 0, "Override the configured approval timeout")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(waitCmd)
	rootCmd.AddCommand(integrateCmd)
	rootCmd.AddCommand(approveCmd)
}
