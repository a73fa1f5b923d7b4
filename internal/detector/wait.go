package detector

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"gatecheck/internal/logging"
	"gatecheck/internal/mailbox"
	"gatecheck/internal/types"
)

// DefaultRecheck is how often WaitForResponse re-reads the slot without events.
const DefaultRecheck = 2 * time.Second

// WaitForResponse blocks until the current request is resolved and returns the reply.
//
// The mailbox directory is watched for writes; the slot is also rechecked on a
// fixed interval in case events are missed. Cancelling ctx returns an
// ApprovalTimeout error. With no request written it returns MissingArtifact at once.
func (d *Detector) WaitForResponse(ctx context.Context, recheck time.Duration) (*mailbox.GateResponse, error) {
	log := logging.Get(logging.CategoryDetector)
	if recheck <= 0 {
		recheck = DefaultRecheck
	}

	if resp, done, err := d.poll(); done {
		return resp, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("Watcher unavailable, falling back to periodic recheck: %v", err)
	} else {
		defer watcher.Close()
		dir := filepath.Dir(d.mb.ResponsePath())
		if err := watcher.Add(dir); err != nil {
			log.Warn("Cannot watch %s: %v", dir, err)
		}
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	if watcher != nil {
		events = watcher.Events
		errs = watcher.Errors
	}

	ticker := time.NewTicker(recheck)
	defer ticker.Stop()

	log.Info("Waiting for gate response at %s", d.mb.ResponsePath())
	for {
		select {
		case <-ctx.Done():
			log.Warn("Stopped waiting for gate response: %v", ctx.Err())
			return nil, types.NewError(types.ApprovalTimeout, "wait_for_response", d.mb.ResponsePath(), ctx.Err())

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != filepath.Clean(d.mb.ResponsePath()) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn("Watcher error: %v", err)
			continue

		case <-ticker.C:
		}

		if resp, done, err := d.poll(); done {
			return resp, err
		}
	}
}

// poll reports done once the request is resolved or can never resolve.
func (d *Detector) poll() (*mailbox.GateResponse, bool, error) {
	switch d.mb.State() {
	case types.StateNoRequest:
		return nil, true, types.NewError(types.MissingArtifact, "wait_for_response", d.mb.RequestPath(), nil)
	case types.StatePending:
		return nil, false, nil
	case types.StateResolved:
		resp, err := d.mb.ReadResponse()
		if err != nil {
			if types.IsKind(err, types.MalformedArtifact) {
				return nil, false, nil
			}
			return nil, true, err
		}
		return resp, true, nil
	}
	return nil, false, nil
}
