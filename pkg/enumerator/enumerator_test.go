package enumerator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectSink records every prefix handed to it, in order.
type collectSink struct {
	prefixes []string
}

func (c *collectSink) Accept(_ context.Context, prefix string) error {
	c.prefixes = append(c.prefixes, prefix)
	return nil
}

// alwaysReady never blocks the enumerator.
type alwaysReady struct{}

func (alwaysReady) Wait(context.Context) error { return nil }

func TestRunFromScratchCoversWholeSubtreeInOrder(t *testing.T) {
	sink := &collectSink{}
	err := Run(context.Background(), Config{
		StartingPrefix:    "aa",
		WatermarkPrefix:   "",
		CoordinatorLength: 4,
	}, alwaysReady{}, sink)
	require.NoError(t, err)

	// 2 varying positions over a 64-symbol alphabet.
	assert.Len(t, sink.prefixes, 64*64)
	assert.Equal(t, "aaaa", sink.prefixes[0])
	assert.Equal(t, "aaab", sink.prefixes[1])
	assert.Equal(t, "aaba", sink.prefixes[64])
	assert.Equal(t, "aa__", sink.prefixes[len(sink.prefixes)-1])

	for i := 1; i < len(sink.prefixes); i++ {
		assert.True(t, lessByAlphabet(sink.prefixes[i-1], sink.prefixes[i]),
			"prefixes must be strictly increasing in enumeration order: %s then %s", sink.prefixes[i-1], sink.prefixes[i])
	}
}

func TestRunResumesStrictlyAfterWatermark(t *testing.T) {
	sink := &collectSink{}
	err := Run(context.Background(), Config{
		StartingPrefix:    "aa",
		WatermarkPrefix:   "aaba",
		CoordinatorLength: 4,
	}, alwaysReady{}, sink)
	require.NoError(t, err)

	require.NotEmpty(t, sink.prefixes)
	assert.Equal(t, "aabb", sink.prefixes[0], "must resume at the watermark's immediate successor, not the watermark itself")
	for _, p := range sink.prefixes {
		assert.NotEqual(t, "aaba", p)
		assert.NotEqual(t, "aaaa", p)
	}
}

func TestRunWatermarkAtLastPrefixProducesNothing(t *testing.T) {
	sink := &collectSink{}
	err := Run(context.Background(), Config{
		StartingPrefix:    "a",
		WatermarkPrefix:   "a__",
		CoordinatorLength: 3,
	}, alwaysReady{}, sink)
	require.NoError(t, err)
	assert.Empty(t, sink.prefixes)
}

func TestRunZeroDepthEmitsStartingPrefixOnce(t *testing.T) {
	sink := &collectSink{}
	err := Run(context.Background(), Config{
		StartingPrefix:    "aaaaaaaa",
		WatermarkPrefix:   "",
		CoordinatorLength: 8,
	}, alwaysReady{}, sink)
	require.NoError(t, err)
	assert.Equal(t, []string{"aaaaaaaa"}, sink.prefixes)
}

func TestRunZeroDepthAlreadyAcknowledgedEmitsNothing(t *testing.T) {
	sink := &collectSink{}
	err := Run(context.Background(), Config{
		StartingPrefix:    "aaaaaaaa",
		WatermarkPrefix:   "aaaaaaaa",
		CoordinatorLength: 8,
	}, alwaysReady{}, sink)
	require.NoError(t, err)
	assert.Empty(t, sink.prefixes)
}

func TestRunRejectsWatermarkOutsideSubtree(t *testing.T) {
	sink := &collectSink{}
	err := Run(context.Background(), Config{
		StartingPrefix:    "aa",
		WatermarkPrefix:   "bbbb",
		CoordinatorLength: 4,
	}, alwaysReady{}, sink)
	assert.Error(t, err)
}

func TestRunHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &collectSink{}
	err := Run(ctx, Config{
		StartingPrefix:    "a",
		WatermarkPrefix:   "",
		CoordinatorLength: 4,
	}, alwaysReady{}, sink)
	assert.ErrorIs(t, err, context.Canceled)
}

// blockingGate never becomes ready before ctx is done, to prove the
// enumerator waits on the gate before its first emission.
type blockingGate struct{}

func (blockingGate) Wait(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunBlocksOnGateBeforeFirstEmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	// Cancel only after Run has had time to reach the gate, so the
	// cancellation is observed inside blockingGate.Wait.
	time.AfterFunc(20*time.Millisecond, cancel)

	sink := &collectSink{}
	err := Run(ctx, Config{
		StartingPrefix:    "a",
		WatermarkPrefix:   "",
		CoordinatorLength: 4,
	}, blockingGate{}, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.prefixes)
}

// lessByAlphabet is a second, independent implementation of enumeration
// order used only to cross-check Run's output in the ordering test.
func lessByAlphabet(a, b string) bool {
	order := func(r byte) int {
		for i := 0; i < len(symbolOrder); i++ {
			if symbolOrder[i] == r {
				return i
			}
		}
		return -1
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return order(a[i]) < order(b[i])
		}
	}
	return len(a) < len(b)
}

const symbolOrder = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"
