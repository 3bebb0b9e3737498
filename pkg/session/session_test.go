package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/skifli/bruty/pkg/admission"
	"github.com/skifli/bruty/pkg/dispatch"
	"github.com/skifli/bruty/pkg/store"
	"github.com/skifli/bruty/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer starts an HTTP server that upgrades every connection
// into a Session built from cfg, returning the server and a dialed
// client connection.
func newTestServer(t *testing.T, cfg Config) (*wire.Conn, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s := New("test-session", wire.NewConn(ws), cfg)
		go s.Run(context.Background())
	}))

	url := "ws" + srv.URL[len("http"):]
	clientWS, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	return wire.NewConn(clientWS), srv.Close
}

func testConfig(t *testing.T) Config {
	t.Helper()
	kv, err := store.NewFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	rs := store.NewRunStateStore(kv)
	rec, err := newReconcilerHelper(rs)
	require.NoError(t, err)

	return Config{
		HeartbeatTimeout:   2 * time.Second,
		Admission:          admission.NewTable([]admission.User{{ID: 1, Name: "alice", Secret: "s1"}}),
		Reconciler:         rec,
		Gate:               dispatch.NewConnectedWorkers(),
		CheckClientVersion: admission.CheckClientVersion,
	}
}

// newReconcilerHelper seeds a reconciler with one ready prefix so tests
// can observe dispatch without wiring a full enumerator.
func newReconcilerHelper(rs *store.RunStateStore) (*dispatch.Reconciler, error) {
	rec, err := dispatch.NewReconciler(context.Background(), rs, "aaaaaaaa", 4)
	if err != nil {
		return nil, err
	}
	if err := rec.Accept(context.Background(), "aaaaaaaa"); err != nil {
		return nil, err
	}
	if err := rec.Accept(context.Background(), "aaaaaaab"); err != nil {
		return nil, err
	}
	return rec, nil
}

func TestSessionHappyPathDispatchesAndRefuels(t *testing.T) {
	cfg := testConfig(t)
	client, closeSrv := newTestServer(t, cfg)
	defer closeSrv()

	require.NoError(t, client.WriteEnvelope(wire.OpIdentify, wire.IdentifyPayload{
		ClientVersion: "1.0", UserID: 1, Secret: "s1",
	}))

	env, err := client.ReadEnvelope(t.Context())
	require.NoError(t, err)
	require.Equal(t, wire.OpTestRequestData, env.Op)
	req, err := env.DecodeTestRequest()
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaaa", req.Prefix)

	require.NoError(t, client.WriteEnvelope(wire.OpTestingResult, wire.TestingResultPayload{
		Prefix: req.Prefix,
	}))

	env2, err := client.ReadEnvelope(t.Context())
	require.NoError(t, err)
	require.Equal(t, wire.OpTestRequestData, env2.Op)
	req2, err := env2.DecodeTestRequest()
	require.NoError(t, err)
	assert.Equal(t, "aaaaaaab", req2.Prefix)
}

func TestSessionRejectsBadSecret(t *testing.T) {
	cfg := testConfig(t)
	client, closeSrv := newTestServer(t, cfg)
	defer closeSrv()

	require.NoError(t, client.WriteEnvelope(wire.OpIdentify, wire.IdentifyPayload{
		ClientVersion: "1.0", UserID: 1, Secret: "wrong",
	}))

	env, err := client.ReadEnvelope(t.Context())
	require.NoError(t, err)
	require.Equal(t, wire.OpInvalidSession, env.Op)
	payload, err := env.DecodeInvalidSession()
	require.NoError(t, err)
	assert.Equal(t, wire.ErrAuthenticationFailed, payload.Code)
}

func TestSessionRejectsMismatchedResultPrefix(t *testing.T) {
	cfg := testConfig(t)
	client, closeSrv := newTestServer(t, cfg)
	defer closeSrv()

	require.NoError(t, client.WriteEnvelope(wire.OpIdentify, wire.IdentifyPayload{
		ClientVersion: "1.0", UserID: 1, Secret: "s1",
	}))
	_, err := client.ReadEnvelope(t.Context())
	require.NoError(t, err)

	require.NoError(t, client.WriteEnvelope(wire.OpTestingResult, wire.TestingResultPayload{
		Prefix: "zzzzzzzz",
	}))

	env, err := client.ReadEnvelope(t.Context())
	require.NoError(t, err)
	require.Equal(t, wire.OpInvalidSession, env.Op)
	payload, err := env.DecodeInvalidSession()
	require.NoError(t, err)
	assert.Equal(t, wire.ErrWrongResultString, payload.Code)
}
