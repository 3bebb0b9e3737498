// Package session implements the coordinator's per-connection state
// machine: Connecting -> Identifying -> Active -> Closing -> Closed,
// driving one worker's WebSocket connection from authentication
// through self-refueling dispatch to teardown.
package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/skifli/bruty/pkg/admission"
	"github.com/skifli/bruty/pkg/dispatch"
	"github.com/skifli/bruty/pkg/wire"
	"go.uber.org/zap"
)

// State is one stage of a session's lifecycle.
type State int

const (
	StateConnecting State = iota
	StateIdentifying
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateIdentifying:
		return "Identifying"
	case StateActive:
		return "Active"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// Config wires a Session to the coordinator's shared run state.
type Config struct {
	// HeartbeatTimeout closes a session that sends nothing (heartbeat or
	// otherwise) within this window.
	HeartbeatTimeout time.Duration

	Admission          *admission.Table
	Reconciler         *dispatch.Reconciler
	Gate               *dispatch.ConnectedWorkers
	CheckClientVersion func(string) bool

	Logger *zap.Logger
}

// Session drives one worker connection end to end. Run blocks for the
// life of the connection; callers should invoke it from its own
// goroutine per accepted connection.
type Session struct {
	id   dispatch.SessionID
	conn *wire.Conn
	cfg  Config

	state    State
	user     admission.User
	awaiting string // prefix currently dispatched to this session, "" if none
	gated    bool   // whether Gate.Inc has been called (balances the deferred Dec)
}

// New builds a Session for an accepted, not-yet-authenticated
// connection. id should be unique per connection (e.g. a uuid).
func New(id string, conn *wire.Conn, cfg Config) *Session {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Session{
		id:    dispatch.SessionID(id),
		conn:  conn,
		cfg:   cfg,
		state: StateConnecting,
	}
}

// Run drives the session until the connection closes, a protocol
// violation terminates it, or ctx is canceled. It always releases the
// session's claim on the connected-worker gate and requeues any
// prefix it was still holding.
func (s *Session) Run(ctx context.Context) error {
	defer s.teardown()

	s.state = StateIdentifying
	if err := s.expectIdentify(ctx); err != nil {
		return err
	}

	s.state = StateActive
	s.cfg.Gate.Inc()
	s.gated = true

	if err := s.dispatchNext(ctx); err != nil {
		return err
	}

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatTimeout)); err != nil {
			return err
		}
		env, err := s.conn.ReadEnvelope(ctx)
		if err != nil {
			if isTimeout(err) {
				_ = s.conn.CloseWithError(wire.ErrSessionTimeout)
				return errors.New("session: heartbeat timeout")
			}
			return err
		}

		switch env.Op {
		case wire.OpHeartbeat:
			continue // the deadline reset above is the entire effect
		case wire.OpTestingResult:
			if err := s.handleTestingResult(ctx, env); err != nil {
				return err
			}
		case wire.OpIdentify:
			_ = s.conn.CloseWithError(wire.ErrUnexpectedOp)
			return errors.New("session: unexpected Identify on an active session")
		default:
			_ = s.conn.CloseWithError(wire.ErrUnexpectedOp)
			return errors.New("session: unexpected op code")
		}
	}
}

func (s *Session) expectIdentify(ctx context.Context) error {
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.HeartbeatTimeout)); err != nil {
		return err
	}
	env, err := s.conn.ReadEnvelope(ctx)
	if err != nil {
		return err
	}
	if env.Op != wire.OpIdentify {
		_ = s.conn.CloseWithError(wire.ErrUnexpectedOp)
		return errors.New("session: expected Identify")
	}

	payload, err := env.DecodeIdentify()
	if err != nil {
		_ = s.conn.CloseWithError(wire.ErrDecodeError)
		return err
	}
	if !s.cfg.CheckClientVersion(payload.ClientVersion) {
		_ = s.conn.CloseWithError(wire.ErrUnsupportedClientVersion)
		return errors.New("session: unsupported client version")
	}
	user, ok := s.cfg.Admission.Authenticate(payload.UserID, payload.Secret)
	if !ok {
		_ = s.conn.CloseWithError(wire.ErrAuthenticationFailed)
		return errors.New("session: authentication failed")
	}
	s.user = user
	s.cfg.Logger.Info("worker identified", zap.String("session", string(s.id)), zap.String("user", user.Name))
	return nil
}

// dispatchNext pulls the next prefix for this session and sends it.
// This is the self-refueling step: it runs once right after Identify,
// and again after every acknowledged result, so a worker never sits
// idle waiting on a request it would otherwise have to initiate.
func (s *Session) dispatchNext(ctx context.Context) error {
	prefix, err := s.cfg.Reconciler.RequestNext(ctx, s.id)
	if err != nil {
		return err
	}
	s.awaiting = prefix
	return s.conn.WriteEnvelope(wire.OpTestRequestData, wire.TestRequestPayload{Prefix: prefix})
}

func (s *Session) handleTestingResult(ctx context.Context, env *wire.Envelope) error {
	payload, err := env.DecodeTestingResult()
	if err != nil {
		_ = s.conn.CloseWithError(wire.ErrDecodeError)
		return err
	}
	if s.awaiting == "" {
		_ = s.conn.CloseWithError(wire.ErrNotExpectingResults)
		return errors.New("session: unsolicited result")
	}
	if payload.Prefix != s.awaiting {
		_ = s.conn.CloseWithError(wire.ErrWrongResultString)
		return errors.New("session: result prefix does not match the outstanding request")
	}

	acked := s.awaiting
	s.awaiting = ""
	if err := s.cfg.Reconciler.Acknowledge(ctx, s.id, acked); err != nil {
		if errors.Is(err, dispatch.ErrNotOwner) {
			// The prefix was reassigned after a prior disconnect raced
			// with this result; the other owner's acknowledgment is
			// authoritative, so just move on to new work.
			return s.dispatchNext(ctx)
		}
		return err
	}
	return s.dispatchNext(ctx)
}

// teardown releases everything this session was holding. It is always
// safe to call, even if Run exited before Identify completed.
func (s *Session) teardown() {
	s.state = StateClosing
	if s.gated {
		s.cfg.Gate.Dec()
	}
	s.cfg.Reconciler.OnSessionClose(s.id)
	s.state = StateClosed
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
