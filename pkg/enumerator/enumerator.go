// Package enumerator produces the coordinator's base-prefix stream in
// deterministic enumeration order, resuming from a persisted watermark.
package enumerator

import (
	"context"
	"fmt"

	"github.com/skifli/bruty/pkg/alphabet"
)

// Sink receives one base prefix at a time. Accept MUST block when
// downstream is not ready for more work (spec.md §4.1 backpressure);
// it must never drop a prefix.
type Sink interface {
	Accept(ctx context.Context, prefix string) error
}

// Gate blocks the enumerator from producing into an idle queue. In
// production this is dispatch.ConnectedWorkers; tests may supply a
// gate that is always ready.
type Gate interface {
	Wait(ctx context.Context) error
}

// Config parameterizes one enumeration run.
type Config struct {
	StartingPrefix    string
	WatermarkPrefix   string // "" means nothing acknowledged yet
	CoordinatorLength int
}

// frame is one position of the varying suffix below StartingPrefix.
// tied records whether every position up to and including this one
// still equals the watermark's symbol there; once a position picks a
// symbol strictly greater than the watermark's, the constraint drops
// for everything below it (spec.md §4.1 tie-break rule).
type frame struct {
	idx  int
	tied bool
}

// walker holds the fixed parameters of one Run so its helper methods
// don't have to thread them through every call.
type walker struct {
	base      string
	watermark string
	rootTied  bool
}

func (w *walker) parentTied(stack []frame, pos int) bool {
	if pos == 0 {
		return w.rootTied
	}
	return stack[pos-1].tied
}

// floor returns the lowest symbol index position pos may take given
// whether its parent path is still tied to the watermark.
func (w *walker) floor(pos int, parentTied bool) int {
	if !parentTied || w.watermark == "" {
		return 0
	}
	return alphabet.Index(w.watermark[len(w.base)+pos])
}

func (w *walker) pushFresh(stack []frame) []frame {
	pos := len(stack)
	tied := w.parentTied(stack, pos)
	f := w.floor(pos, tied)
	return append(stack, frame{idx: f, tied: tied})
}

func (w *walker) render(stack []frame, capacity int) string {
	buf := make([]byte, 0, capacity)
	buf = append(buf, w.base...)
	for _, f := range stack {
		buf = append(buf, alphabet.At(f.idx))
	}
	return string(buf)
}

// advance moves to the next prefix in enumeration order by incrementing
// the rightmost position, backtracking (popping) on overflow. It
// returns the updated stack and whether the subtree still has work.
func (w *walker) advance(stack []frame, depth int) ([]frame, bool) {
	for len(stack) > 0 {
		pos := len(stack) - 1
		nextIdx := stack[pos].idx + 1
		stack = stack[:pos]
		if nextIdx >= alphabet.Len {
			continue // overflowed; pop and retry the parent position
		}
		tied := w.parentTied(stack, pos)
		stillTied := tied && nextIdx == w.floor(pos, tied)
		stack = append(stack, frame{idx: nextIdx, tied: stillTied})
		for len(stack) < depth {
			stack = w.pushFresh(stack)
		}
		return stack, true
	}
	return stack, false
}

// Run walks the completion tree of cfg.StartingPrefix to length
// cfg.CoordinatorLength in enumeration order, skipping everything at or
// before cfg.WatermarkPrefix, and feeds each base prefix to sink. It
// blocks on gate before every emission so the enumerator does not grow
// an open-loop queue while no worker is connected. Run returns when the
// subtree is exhausted, when ctx is canceled, or when sink/gate return
// an error.
func Run(ctx context.Context, cfg Config, gate Gate, sink Sink) error {
	if len(cfg.StartingPrefix) > cfg.CoordinatorLength {
		return fmt.Errorf("enumerator: starting prefix %q longer than coordinator length %d", cfg.StartingPrefix, cfg.CoordinatorLength)
	}
	if cfg.WatermarkPrefix != "" && !alphabet.HasPrefix(cfg.WatermarkPrefix, cfg.StartingPrefix) {
		return fmt.Errorf("enumerator: watermark %q is not within the subtree of starting prefix %q", cfg.WatermarkPrefix, cfg.StartingPrefix)
	}

	depth := cfg.CoordinatorLength - len(cfg.StartingPrefix)
	if depth == 0 {
		if cfg.WatermarkPrefix == cfg.StartingPrefix {
			return nil // the only prefix in this subtree is already acknowledged
		}
		return emit(ctx, gate, sink, cfg.StartingPrefix)
	}

	w := &walker{
		base:      cfg.StartingPrefix,
		watermark: cfg.WatermarkPrefix,
		rootTied:  cfg.WatermarkPrefix != "",
	}

	stack := make([]frame, 0, depth)
	for len(stack) < depth {
		stack = w.pushFresh(stack)
	}

	if cfg.WatermarkPrefix != "" {
		// The construction above walks straight down the watermark's own
		// digits, so the stack currently renders the watermark itself.
		// Everything at or before it is already acknowledged (W1/W2), so
		// step to its immediate successor before emitting anything.
		var ok bool
		stack, ok = w.advance(stack, depth)
		if !ok {
			return nil // watermark was the last prefix in this subtree
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(ctx, gate, sink, w.render(stack, cfg.CoordinatorLength)); err != nil {
			return err
		}

		var ok bool
		stack, ok = w.advance(stack, depth)
		if !ok {
			return nil // subtree exhausted
		}
	}
}

func emit(ctx context.Context, gate Gate, sink Sink, prefix string) error {
	if err := gate.Wait(ctx); err != nil {
		return err
	}
	return sink.Accept(ctx, prefix)
}
