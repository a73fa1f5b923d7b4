// Package approval is the browser transport for a gate: it serves the request's
// questions as a form on a loopback address and blocks until the human submits
// or the deadline passes.
package approval

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"gatecheck/internal/logging"
	"gatecheck/internal/types"
)

// Defaults for Config fields left zero.
const (
	DefaultPreferredAddr  = "127.0.0.1:8765"
	DefaultTimeout        = 300 * time.Second
	DefaultShutdownGrace  = 2 * time.Second
	DefaultMaxConnections = 8
)

// Config configures a Server.
type Config struct {
	// PreferredAddr is tried first; when taken, an ephemeral loopback port is used.
	PreferredAddr  string
	MaxConnections int
	ShutdownGrace  time.Duration

	// OnReady is called with the form URL once the listener is bound.
	OnReady func(url string)
}

// Request is what the form shows.
type Request struct {
	Title       string
	Description string
	Questions   []string
}

// Result is the outcome of one approval round.
type Result struct {
	Decision types.Decision `json:"user_decision"`
	Answers  []string       `json:"user_responses"`

	// TimedOut is set when no submission arrived before the deadline or cancellation.
	TimedOut bool `json:"timed_out,omitempty"`
}

// Server runs one approval round per RequestApproval call.
type Server struct {
	cfg Config
}

// NewServer creates a server, filling zero config fields with defaults.
func NewServer(cfg Config) *Server {
	if cfg.PreferredAddr == "" {
		cfg.PreferredAddr = DefaultPreferredAddr
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = DefaultMaxConnections
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = DefaultShutdownGrace
	}
	return &Server{cfg: cfg}
}

// stopResult is returned on timeout and cancellation.
func stopResult() Result {
	return Result{Decision: types.DecisionStop, Answers: []string{}, TimedOut: true}
}

// RequestApproval serves the form and blocks until a submission, the timeout,
// or ctx cancellation. Without a submission it returns a stop decision with no
// answers. An error is returned only when no loopback listener can be bound.
func (s *Server) RequestApproval(ctx context.Context, req Request, timeout time.Duration) (Result, error) {
	log := logging.Get(logging.CategoryApproval)
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	ln, err := s.listen()
	if err != nil {
		return stopResult(), err
	}
	url := "http://" + ln.Addr().String() + "/"
	ln = netutil.LimitListener(ln, s.cfg.MaxConnections)

	cell := newResultCell()
	srv := &http.Server{
		Handler:           newHandler(req, cell),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("approval server: %w", err)
		}
		return nil
	})

	// Handlers cannot stop the server that dispatches them, so shutdown is
	// always issued from here.
	g.Go(func() error {
		select {
		case <-cell.done:
			log.Debug("Submission received, shutting down")
		case <-gctx.Done():
			log.Debug("Approval wait ended: %v", gctx.Err())
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("Graceful shutdown failed, closing: %v", err)
			srv.Close()
		}
		return nil
	})

	log.Info("Approval form for %q at %s (timeout %v)", req.Title, url, timeout)
	if s.cfg.OnReady != nil {
		s.cfg.OnReady(url)
	}

	waitErr := g.Wait()

	if res, ok := cell.get(); ok {
		log.Info("Approval submitted: decision=%s answers=%d", res.Decision, len(res.Answers))
		return res, nil
	}

	if waitErr != nil {
		log.Error("Approval server failed: %v", waitErr)
	}
	log.Warn("No approval before deadline; defaulting to stop")
	return stopResult(), nil
}

// listen binds the preferred address, falling back to an ephemeral loopback port.
func (s *Server) listen() (net.Listener, error) {
	log := logging.Get(logging.CategoryApproval)

	ln, err := net.Listen("tcp", s.cfg.PreferredAddr)
	if err == nil {
		return ln, nil
	}
	conflict := types.NewError(types.PortConflict, "listen", s.cfg.PreferredAddr, err)
	log.Debug("Falling back to ephemeral port: %v", conflict)

	ln, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("bind loopback listener: %w", err)
	}
	return ln, nil
}
