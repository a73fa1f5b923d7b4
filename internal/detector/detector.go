// Package detector is the agent-facing side of the gate mailbox. It turns a
// pending request into an actionable prompt, submits replies on the human's
// behalf, and can block until a reply lands.
package detector

import (
	"fmt"
	"strings"
	"time"

	"gatecheck/internal/ledger"
	"gatecheck/internal/logging"
	"gatecheck/internal/mailbox"
	"gatecheck/internal/types"
)

// Detector drives one project's mailbox.
type Detector struct {
	mb         *mailbox.Mailbox
	integrator *ledger.Integrator
}

// New creates a detector. integrator may be nil, in which case Submit only writes.
func New(mb *mailbox.Mailbox, integrator *ledger.Integrator) *Detector {
	return &Detector{mb: mb, integrator: integrator}
}

// Mailbox returns the underlying mailbox.
func (d *Detector) Mailbox() *mailbox.Mailbox {
	return d.mb
}

// CheckActive returns the pending request body, if any.
// A missing request is not an error; any other read failure is reported as inactive too.
func (d *Detector) CheckActive() (string, bool) {
	body, err := d.mb.ReadRequest()
	if err != nil {
		if !types.IsKind(err, types.MissingArtifact) {
			logging.Get(logging.CategoryDetector).Warn("Gate request unreadable: %v", err)
		}
		return "", false
	}
	return body, true
}

// State reports the lifecycle of the current request.
func (d *Detector) State() types.GateState {
	return d.mb.State()
}

// RenderPrompt formats a request body as instructions for the agent.
func (d *Detector) RenderPrompt(body string) string {
	questions := mailbox.ExtractQuestions(body)

	var sb strings.Builder
	sb.WriteString("## GATE CHECKPOINT ACTIVE\n\n")
	sb.WriteString("Progress is suspended until the user answers the following questions.\n\n")

	if len(questions) == 0 {
		sb.WriteString("(No numbered questions found. Show the user the full request below.)\n\n")
		sb.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("### Questions for User:\n")
		for i, q := range questions {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, q)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("### Protocol\n")
	sb.WriteString("1. Ask the user these questions verbatim.\n")
	sb.WriteString("2. Wait for the user's answers.\n")
	sb.WriteString("3. Do not fabricate or assume answers.\n")
	sb.WriteString("4. Submit the answers with a decision of proceed, modify or stop (`gate submit`).\n")
	sb.WriteString("5. Do not proceed until the gate is resolved.\n\n")

	sb.WriteString("### Mailbox\n")
	fmt.Fprintf(&sb, "- Request:  %s\n", d.mb.RequestPath())
	fmt.Fprintf(&sb, "- Response: %s\n", d.mb.ResponsePath())

	return sb.String()
}

// SubmitResult reports what Submit achieved.
type SubmitResult struct {
	RespondedAt    time.Time
	Integrated     bool
	IntegrationErr error
}

// Submit writes the reply and then integrates it into the ledger.
//
// The write is the only step that can fail the call. Integration problems are
// logged and reported in the result so the human's answer is always captured.
func (d *Detector) Submit(answers []string, decision types.Decision, additionalContext string) (SubmitResult, error) {
	log := logging.Get(logging.CategoryDetector)

	at, err := d.mb.WriteResponse(answers, decision, additionalContext)
	if err != nil {
		log.Error("Submit failed, response not written: %v", err)
		return SubmitResult{}, err
	}

	res := SubmitResult{RespondedAt: at}
	if d.integrator == nil {
		return res, nil
	}

	ok, err := d.integrator.Integrate()
	res.Integrated = ok
	res.IntegrationErr = err
	if err != nil {
		log.Warn("Response written but ledger integration failed: %v", err)
	} else {
		log.Info("Response submitted: decision=%s integrated=%v", decision, ok)
	}
	return res, nil
}
