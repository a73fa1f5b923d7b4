package ledger

import (
	"errors"
	"os"
	"time"

	"gatecheck/internal/logging"
	"gatecheck/internal/mailbox"
	"gatecheck/internal/types"
)

// Integrator folds the response slot into the vision ledger.
//
// Integration is not idempotent: the response file is never consumed, so
// integrating it twice adds a second entry and repeats its insights.
type Integrator struct {
	mb           *mailbox.Mailbox
	path         string
	initialPhase string
	now          func() time.Time
}

// NewIntegrator creates an integrator writing to the ledger at path.
func NewIntegrator(mb *mailbox.Mailbox, path, initialPhase string) *Integrator {
	return &Integrator{
		mb:           mb,
		path:         path,
		initialPhase: initialPhase,
		now:          time.Now,
	}
}

// SetClock replaces the wall clock used for entry keys.
func (i *Integrator) SetClock(now func() time.Time) {
	i.now = now
}

// Path returns the ledger location.
func (i *Integrator) Path() string {
	return i.path
}

// Load returns the current ledger, or a fresh one if none exists yet.
func (i *Integrator) Load() (*Ledger, error) {
	l, err := Load(i.path)
	if err == nil {
		return l, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return New(i.now(), i.initialPhase), nil
	}
	return nil, err
}

// Integrate merges the current response into the ledger.
//
// It returns (false, nil) when no response exists. Every other failure
// returns false with an IntegrationFailure error and leaves the ledger
// file untouched.
func (i *Integrator) Integrate() (bool, error) {
	log := logging.Get(logging.CategoryLedger)
	timer := logging.StartTimer(logging.CategoryLedger, "integrate")
	defer timer.Stop()

	resp, err := i.mb.ReadResponse()
	if err != nil {
		if types.IsKind(err, types.MissingArtifact) {
			log.Debug("No gate response to integrate")
			return false, nil
		}
		log.Error("Integration aborted: %v", err)
		return false, types.NewError(types.IntegrationFailure, "integrate", i.mb.ResponsePath(), err)
	}

	l, err := i.Load()
	if err != nil {
		log.Error("Integration aborted, ledger unreadable: %v", err)
		return false, types.NewError(types.IntegrationFailure, "integrate", i.path, err)
	}

	now := i.now()
	key := now.Format(TimestampLayout)
	for {
		if _, taken := l.Responses.GateResponses[key]; !taken {
			break
		}
		now = now.Add(time.Nanosecond)
		key = now.Format(TimestampLayout)
	}

	l.Responses.GateResponses[key] = GateEntry{
		Responses: resp.Answers,
		Decision:  string(resp.Decision),
		Context:   resp.AdditionalContext,
		Timestamp: key,
		Source:    SourceGateCollaboration,
	}

	insights := DeriveInsights(resp.Answers)
	l.Insights = append(l.Insights, insights...)

	if status, ok := resp.Decision.LedgerStatus(); ok {
		l.Status = status
	} else {
		log.Warn("Unrecognised decision %q; ledger status left at %s", resp.Decision, l.Status)
	}

	if err := l.Save(i.path); err != nil {
		log.Error("Integration aborted, ledger not saved: %v", err)
		return false, types.NewError(types.IntegrationFailure, "integrate", i.path, err)
	}

	log.Info("Integrated gate response %s: decision=%s insights=+%d status=%s",
		key, resp.Decision, len(insights), l.Status)
	return true, nil
}
