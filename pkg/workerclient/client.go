// Package workerclient drives a worker's side of one coordinator
// connection: dial, Identify, then loop TestRequestData ->
// probe.Engine.Run -> TestingResult until the connection closes or ctx
// is canceled. A dropped connection reconnects with backoff; the
// coordinator is the source of truth for what is still outstanding,
// so the worker carries no resumable state of its own.
package workerclient

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skifli/bruty/pkg/probe"
	"github.com/skifli/bruty/pkg/wire"
	"go.uber.org/zap"
)

// Config parameterizes a worker's connection to one coordinator.
type Config struct {
	CoordinatorURL string
	UserID         uint8
	Secret         string
	ClientVersion  string

	Engine *probe.Engine

	HeartbeatInterval time.Duration
	DialTimeout       time.Duration
	MinBackoff        time.Duration
	MaxBackoff        time.Duration

	Logger *zap.Logger
}

func (c *Config) setDefaults() {
	if c.ClientVersion == "" {
		c.ClientVersion = "1.0"
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 5 * time.Second
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.MinBackoff <= 0 {
		c.MinBackoff = 1 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Run connects to the coordinator and serves work until ctx is
// canceled, reconnecting with exponential backoff on any connection
// failure. It returns only when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	cfg.setDefaults()
	backoff := cfg.MinBackoff

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := runOnce(ctx, cfg)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		cfg.Logger.Warn("connection ended, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
}

func runOnce(ctx context.Context, cfg Config) error {
	dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()

	ws, _, err := websocket.DefaultDialer.DialContext(dialCtx, cfg.CoordinatorURL, nil)
	if err != nil {
		return fmt.Errorf("workerclient: dial: %w", err)
	}
	conn := wire.NewConn(ws)
	defer conn.Close(websocket.CloseNormalClosure, "done")

	if err := conn.WriteEnvelope(wire.OpIdentify, wire.IdentifyPayload{
		ClientVersion: cfg.ClientVersion,
		UserID:        cfg.UserID,
		Secret:        cfg.Secret,
	}); err != nil {
		return fmt.Errorf("workerclient: send identify: %w", err)
	}

	stopHeartbeat := make(chan struct{})
	go sendHeartbeats(conn, cfg.HeartbeatInterval, stopHeartbeat)
	defer close(stopHeartbeat)

	for {
		env, err := conn.ReadEnvelope(ctx)
		if err != nil {
			return fmt.Errorf("workerclient: read: %w", err)
		}

		switch env.Op {
		case wire.OpTestRequestData:
			req, err := env.DecodeTestRequest()
			if err != nil {
				return fmt.Errorf("workerclient: decode test request: %w", err)
			}
			cfg.Logger.Info("dispatched prefix received", zap.String("prefix", req.Prefix))

			probedBefore := cfg.Engine.Stats().Probed
			started := time.Now()
			result, err := cfg.Engine.Run(ctx, req.Prefix)
			if err != nil {
				return fmt.Errorf("workerclient: probe %s: %w", req.Prefix, err)
			}
			probed := cfg.Engine.Stats().Probed - probedBefore
			cfg.Logger.Info("batch complete",
				zap.String("prefix", req.Prefix),
				zap.Int("positives", len(result.Positives)),
				zap.Float64("ids_per_sec", float64(probed)/time.Since(started).Seconds()))
			if err := conn.WriteEnvelope(wire.OpTestingResult, result); err != nil {
				return fmt.Errorf("workerclient: send result: %w", err)
			}
		case wire.OpInvalidSession:
			payload, _ := env.DecodeInvalidSession()
			return fmt.Errorf("workerclient: session closed by coordinator: %s (%s)", payload.Code, payload.Description)
		default:
			cfg.Logger.Warn("unexpected op from coordinator", zap.String("op", env.Op.String()))
		}
	}
}

// sendHeartbeats periodically sends OpHeartbeat until stop is closed.
// A write failure here is silently dropped: the read loop in runOnce
// will observe the same dead connection on its next ReadEnvelope and
// trigger reconnection there.
func sendHeartbeats(conn *wire.Conn, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = conn.WriteEnvelope(wire.OpHeartbeat, struct{}{})
		case <-stop:
			return
		}
	}
}
