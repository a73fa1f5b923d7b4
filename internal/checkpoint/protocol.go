// Package checkpoint wires the gate components for one workspace into a single
// Protocol value, built once by the entry point and passed to callers.
package checkpoint

import (
	"context"
	"fmt"
	"strings"

	"gatecheck/internal/alignment"
	"gatecheck/internal/approval"
	"gatecheck/internal/config"
	"gatecheck/internal/detector"
	"gatecheck/internal/ledger"
	"gatecheck/internal/logging"
	"gatecheck/internal/mailbox"
	"gatecheck/internal/types"
)

// Protocol holds every gate component for one workspace.
type Protocol struct {
	Config    *config.Config
	Workspace string

	Mailbox    *mailbox.Mailbox
	Integrator *ledger.Integrator
	Detector   *detector.Detector
	Gate       *alignment.Gate
	Approval   *approval.Server

	store *alignment.Store
}

// Options adjusts construction.
type Options struct {
	// OnApprovalReady receives the form URL when an approval round starts.
	OnApprovalReady func(url string)
}

// New builds the protocol for workspace from cfg.
func New(workspace string, cfg *config.Config, opts Options) (*Protocol, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logging.Get(logging.CategoryProtocol)
	path := func(name string) string { return cfg.Path(workspace, name) }

	p := &Protocol{Config: cfg, Workspace: workspace}

	p.Mailbox = mailbox.New(path(cfg.Mailbox.RequestFile), path(cfg.Mailbox.ResponseFile))
	p.Integrator = ledger.NewIntegrator(p.Mailbox, path(cfg.Ledger.File), cfg.Ledger.InitialPhase)
	p.Detector = detector.New(p.Mailbox, p.Integrator)

	if cfg.Alignment.HistoryDB != "" {
		store, err := alignment.NewStore(path(cfg.Alignment.HistoryDB))
		if err != nil {
			return nil, fmt.Errorf("open alignment history: %w", err)
		}
		p.store = store
	}

	p.Gate = alignment.NewGate(alignment.GateConfig{
		CharterPath: path(cfg.Alignment.CharterFile),
		LogPath:     path(cfg.Alignment.LogFile),
		HistorySize: cfg.Alignment.HistorySize,
		Store:       p.store,
	})
	if cfg.Alignment.RestoreHistory {
		if _, err := p.Gate.Restore(); err != nil {
			log.Warn("Alignment history not restored: %v", err)
		}
	}

	p.Approval = approval.NewServer(approval.Config{
		PreferredAddr:  cfg.Approval.PreferredAddr,
		MaxConnections: cfg.Approval.MaxConnections,
		ShutdownGrace:  cfg.GetShutdownGrace(),
		OnReady:        opts.OnApprovalReady,
	})

	log.Debug("Protocol ready for %s (gate dir %s)", workspace, cfg.Dir(workspace))
	return p, nil
}

// Store returns the SQLite history, or nil when disabled.
func (p *Protocol) Store() *alignment.Store {
	return p.store
}

// Close releases the history database.
func (p *Protocol) Close() error {
	if p.store != nil {
		return p.store.Close()
	}
	return nil
}

// GuardResult is the outcome of Guard.
type GuardResult struct {
	Check   alignment.Check
	Raised  bool   // a gate request was written
	Request string // the request body, when raised
}

// Guard evaluates an action and raises a gate request when the check needs the
// human. Each concern becomes one question; at most four are asked.
func (p *Protocol) Guard(description, actionType string, opts ...alignment.EvalOption) (GuardResult, error) {
	check := p.Gate.Evaluate(description, actionType, opts...)
	res := GuardResult{Check: check}
	if !check.RequiresUserInput {
		return res, nil
	}

	body := mailbox.ComposeRequest(
		"Alignment checkpoint: "+description,
		describeCheck(check),
		guardQuestions(check),
	)
	if err := p.Mailbox.WriteRequest(body); err != nil {
		return res, err
	}

	res.Raised = true
	res.Request = body
	logging.Get(logging.CategoryProtocol).Info("Gate raised for %q (%s, blocking=%v)", description, check.Level, check.Blocking)
	return res, nil
}

func describeCheck(c alignment.Check) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Action type: %s\n", c.ActionType)
	fmt.Fprintf(&sb, "Alignment: %s (confidence %.1f)\n", c.Level, c.Confidence)
	if c.Blocking {
		sb.WriteString("This action is blocked until the user decides.\n")
	}
	if len(c.Recommendations) > 0 {
		sb.WriteString("\nRecommendations:\n")
		for _, r := range c.Recommendations {
			fmt.Fprintf(&sb, "- %s\n", r)
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func guardQuestions(c alignment.Check) []string {
	qs := make([]string, 0, len(c.Concerns))
	for _, concern := range c.Concerns {
		qs = append(qs, concern+": approve anyway, or how should this change?")
	}
	return qs
}

// Approve runs the browser transport for the pending request. A submission is
// written and integrated through the detector; a timeout writes nothing and
// leaves the gate pending.
func (p *Protocol) Approve(ctx context.Context, title, description string) (approval.Result, error) {
	log := logging.Get(logging.CategoryProtocol)

	body, ok := p.Detector.CheckActive()
	if !ok {
		return approval.Result{Decision: types.DecisionStop, Answers: []string{}},
			types.NewError(types.MissingArtifact, "approve", p.Mailbox.RequestPath(), nil)
	}

	req := approval.Request{
		Title:       title,
		Description: description,
		Questions:   mailbox.ExtractQuestions(body),
	}
	if req.Title == "" {
		req.Title = "Gate checkpoint"
	}

	res, err := p.Approval.RequestApproval(ctx, req, p.Config.GetApprovalTimeout())
	if err != nil {
		return res, err
	}
	if res.TimedOut {
		log.Warn("Approval timed out; gate left pending")
		return res, nil
	}

	submitted, err := p.Detector.Submit(res.Answers, res.Decision, "submitted via approval form")
	if err != nil {
		return res, err
	}
	if submitted.IntegrationErr != nil {
		log.Warn("Approval recorded but not integrated: %v", submitted.IntegrationErr)
	}
	return res, nil
}
