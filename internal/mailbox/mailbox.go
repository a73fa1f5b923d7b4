// Package mailbox implements the two-slot, file-backed gate channel: one slot for
// the outstanding request, one for the human's reply.
//
// Each slot holds at most one artifact. Writing a second request overwrites the
// first without archival, and a response is never removed after it is read.
// Writes go through a temp file and rename so a reader never sees a partial file;
// there is no locking between concurrent writers.
package mailbox

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gatecheck/internal/logging"
	"gatecheck/internal/types"
)

// GateResponse is the human's reply as persisted in the response slot.
type GateResponse struct {
	Answers           []string       `json:"user_responses"`
	Decision          types.Decision `json:"user_decision"`
	AdditionalContext string         `json:"additional_context"`
	Timestamp         float64        `json:"timestamp"` // epoch seconds
}

// Time converts the epoch-seconds timestamp to a time.Time.
func (r *GateResponse) Time() time.Time {
	sec, frac := math.Modf(r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Mailbox is the request/response slot pair for one project.
type Mailbox struct {
	requestPath  string
	responsePath string
	now          func() time.Time
}

// New creates a mailbox over explicit slot paths.
func New(requestPath, responsePath string) *Mailbox {
	return &Mailbox{
		requestPath:  requestPath,
		responsePath: responsePath,
		now:          time.Now,
	}
}

// SetClock replaces the wall clock used to stamp responses.
func (m *Mailbox) SetClock(now func() time.Time) {
	m.now = now
}

// RequestPath returns the request slot location.
func (m *Mailbox) RequestPath() string { return m.requestPath }

// ResponsePath returns the response slot location.
func (m *Mailbox) ResponsePath() string { return m.responsePath }

// WriteRequest persists a request body verbatim, replacing any previous request.
func (m *Mailbox) WriteRequest(body string) error {
	if err := writeAtomic(m.requestPath, []byte(body)); err != nil {
		return fmt.Errorf("write gate request: %w", err)
	}
	logging.Get(logging.CategoryMailbox).Info("Gate request written: %s (%d bytes)", m.requestPath, len(body))
	return nil
}

// ReadRequest returns the current request body.
// An absent slot is reported as a MissingArtifact error.
func (m *Mailbox) ReadRequest() (string, error) {
	data, err := os.ReadFile(m.requestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", types.NewError(types.MissingArtifact, "read_request", m.requestPath, err)
		}
		return "", fmt.Errorf("read gate request: %w", err)
	}
	return string(data), nil
}

// WriteResponse serializes a reply into the response slot and returns its timestamp.
// Any previous response is overwritten.
func (m *Mailbox) WriteResponse(answers []string, decision types.Decision, additionalContext string) (time.Time, error) {
	at := m.now()
	if answers == nil {
		answers = []string{}
	}
	resp := GateResponse{
		Answers:           answers,
		Decision:          decision,
		AdditionalContext: additionalContext,
		Timestamp:         float64(at.UnixNano()) / 1e9,
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return time.Time{}, fmt.Errorf("marshal gate response: %w", err)
	}
	if err := writeAtomic(m.responsePath, data); err != nil {
		return time.Time{}, fmt.Errorf("write gate response: %w", err)
	}

	logging.Get(logging.CategoryMailbox).Info("Gate response written: decision=%s answers=%d", decision, len(answers))
	return at, nil
}

// ReadResponse loads the reply in the response slot.
// Returns a MissingArtifact error when absent and MalformedArtifact when unparseable.
func (m *Mailbox) ReadResponse() (*GateResponse, error) {
	data, err := os.ReadFile(m.responsePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, types.NewError(types.MissingArtifact, "read_response", m.responsePath, err)
		}
		return nil, fmt.Errorf("read gate response: %w", err)
	}

	var resp GateResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		logging.Get(logging.CategoryMailbox).Warn("Malformed gate response at %s: %v", m.responsePath, err)
		return nil, types.NewError(types.MalformedArtifact, "read_response", m.responsePath, err)
	}
	if resp.Answers == nil {
		resp.Answers = []string{}
	}
	return &resp, nil
}

// State reports where the current request sits in its lifecycle.
// A response resolves the request when its file is not older than the request file.
func (m *Mailbox) State() types.GateState {
	reqInfo, err := os.Stat(m.requestPath)
	if err != nil {
		return types.StateNoRequest
	}
	respInfo, err := os.Stat(m.responsePath)
	if err != nil {
		return types.StatePending
	}
	if respInfo.ModTime().Before(reqInfo.ModTime()) {
		return types.StatePending
	}
	return types.StateResolved
}

// writeAtomic writes data to a sibling temp file, syncs it, and renames it over path.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create mailbox directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
