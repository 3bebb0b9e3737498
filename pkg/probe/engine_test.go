package probe

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineRunClassifiesWholeBatch(t *testing.T) {
	var calls atomic.Int64
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		id := r.URL.Query().Get("id")
		switch id[len(id)-1] {
		case 'a':
			w.Write([]byte(`{"title":"t","author_name":"n","author_url":"u"}`))
		case 'b':
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	o, err := NewOracle(DefaultOracleConfig(srv.URL + "/oembed?id=%s"))
	require.NoError(t, err)

	// A 9-char prefix leaves 2 varying positions: 64*64 identifiers.
	e := NewEngine(o, EngineConfig{Concurrency: 16})
	result, err := e.Run(t.Context(), "aaaaaaaaa")
	require.NoError(t, err)

	assert.Equal(t, int64(64*64), calls.Load())
	assert.Len(t, result.Positives, 64*2) // one 'a'-ending and one 'b'-ending id per first varying symbol
	for _, p := range result.Positives {
		last := p.ID[len(p.ID)-1]
		assert.True(t, last == 'a' || last == 'b')
	}
}

func TestEngineRunRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	o, err := NewOracle(DefaultOracleConfig(srv.URL + "/oembed?id=%s"))
	require.NoError(t, err)

	e := NewEngine(o, EngineConfig{Concurrency: 1, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	result, err := e.Run(t.Context(), "aaaaaaaaaaa") // full-length prefix: a single identifier
	require.NoError(t, err)
	assert.Empty(t, result.Positives)
	assert.GreaterOrEqual(t, calls.Load(), int64(3))
	assert.GreaterOrEqual(t, e.Stats().Retries, int64(2))
}

func TestEngineRunSurfacesPersistentTransientFailureOnCancellation(t *testing.T) {
	o, err := NewOracle(DefaultOracleConfig("http://127.0.0.1:1/oembed?id=%s")) // nothing listens here
	require.NoError(t, err)

	e := NewEngine(o, EngineConfig{Concurrency: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	ctx, cancel := context.WithTimeout(t.Context(), 30*time.Millisecond)
	defer cancel()

	_, err = e.Run(ctx, "aaaaaaaaaaa")
	require.Error(t, err)
}

func TestGenerateEnumeratesFullSubtreeOfLengthOne(t *testing.T) {
	ctx := t.Context()
	out := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- generate(ctx, "aaaaaaaaaaa", out)
	}()

	id, ok := <-out
	require.True(t, ok)
	assert.Equal(t, "aaaaaaaaaaa", id)
	require.NoError(t, <-done)
}

func TestGenerateHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	out := make(chan string)
	err := generate(ctx, "aaaaaaaaa", out)
	assert.Error(t, err)
}
