package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noor-canvas/backend/internal/models"
)

const (
	testHostToken = "HOSTTOKEN"
	testUserToken = "USERTOKEN"
	testDownToken = "DOWNTOKEN"
	testGuid      = "guid-amina"
	testGuidB     = "guid-bilal"
	testGuidDown  = "guid-down"
)

// errLookupDown stands in for an infrastructure failure (e.g. the database
// being unreachable) during token or identity resolution.
var errLookupDown = errors.New("connection refused")

func newTestServer(t *testing.T, status models.SessionStatus) (*httptest.Server, uuid.UUID) {
	return newTestServerWithStore(t, status, NopStore{})
}

func newTestServerWithStore(t *testing.T, status models.SessionStatus, store EventStore) (*httptest.Server, uuid.UUID) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessionID := uuid.New()
	registered := map[string]string{testGuid: "Amina", testGuidB: "Bilal"}

	validate := func(_ context.Context, token string) (*SessionAccess, error) {
		switch token {
		case testHostToken:
			return &SessionAccess{SessionID: sessionID, Status: status, Role: RoleHost}, nil
		case testUserToken:
			return &SessionAccess{SessionID: sessionID, Status: status, Role: RoleParticipant}, nil
		case testDownToken:
			return nil, errLookupDown
		default:
			return nil, ErrSessionNotFound
		}
	}
	lookup := func(_ context.Context, id uuid.UUID, guid string) (*models.Participant, error) {
		if guid == testGuidDown {
			return nil, errLookupDown
		}
		name, ok := registered[guid]
		if id != sessionID || !ok {
			return nil, ErrUnauthorized
		}
		return &models.Participant{ID: uuid.New(), SessionID: id, UserGuid: guid, Name: name}, nil
	}

	hub := NewHub(nil, nil, nil)
	router := NewRouter(hub, store, nil)

	opts := DefaultOptions()
	opts.PingInterval = 100 * time.Millisecond
	opts.PongWait = time.Second

	engine := gin.New()
	engine.GET("/ws", ServeWs(hub, router, nil, validate, lookup, opts))
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)
	return srv, sessionID
}

func wsURL(srv *httptest.Server, query string) string {
	return strings.Replace(srv.URL, "http", "ws", 1) + "/ws?" + query
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var msg WSMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %q", event)
		if msg.Event == event {
			return msg
		}
	}
}

func TestServeWsRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, models.StatusActive)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "token=NOPE"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServeWsRejectsEndedSession(t *testing.T) {
	srv, _ := newTestServer(t, models.StatusEnded)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+testHostToken), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestServeWsParticipantNeedsIdentity(t *testing.T) {
	srv, _ := newTestServer(t, models.StatusActive)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+testUserToken), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL(srv, "token="+testUserToken+"&guid=stranger"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServeWsSnapshotOnConnect(t *testing.T) {
	srv, sessionID := newTestServer(t, models.StatusActive)

	host := dial(t, srv, "token="+testHostToken)
	msg := readEvent(t, host, EventSessionState)

	var snap StateSnapshot
	require.NoError(t, json.Unmarshal(msg.Data, &snap))
	assert.Equal(t, sessionID, snap.SessionID)
	assert.Equal(t, models.StatusActive, snap.Status)
}

func TestServeWsEndToEnd(t *testing.T) {
	srv, _ := newTestServer(t, models.StatusActive)

	host := dial(t, srv, "token="+testHostToken)
	readEvent(t, host, EventSessionState)

	participant := dial(t, srv, "token="+testUserToken+"&guid="+testGuid)

	// Host sees the participant arrive; the participant gets its snapshot.
	join := readEvent(t, host, EventParticipantJoined)
	var joinData map[string]interface{}
	require.NoError(t, json.Unmarshal(join.Data, &joinData))
	assert.Equal(t, testGuid, joinData["userGuid"])

	var snap StateSnapshot
	state := readEvent(t, participant, EventSessionState)
	require.NoError(t, json.Unmarshal(state.Data, &snap))
	require.Len(t, snap.Participants, 1)

	// Host shares content; the participant receives the normalized payload.
	require.NoError(t, host.WriteJSON(WSMessage{
		Event: InboundShareAsset,
		Data:  json.RawMessage(`{"assetId":"ayah-1","testContent":"<p>bismillah</p>"}`),
	}))
	shared := readEvent(t, participant, EventAssetShared)
	var payload AssetPayload
	require.NoError(t, json.Unmarshal(shared.Data, &payload))
	assert.Equal(t, "ayah-1", payload.AssetID)
	assert.Equal(t, "<p>bismillah</p>", payload.RawHTMLContent)

	// A participant trying a host action gets a private error, and the host
	// never sees a broadcast for it.
	require.NoError(t, participant.WriteJSON(WSMessage{
		Event: InboundShareAsset,
		Data:  json.RawMessage(`{"assetId":"x","rawHtmlContent":"<p>nope</p>"}`),
	}))
	errMsg := readEvent(t, participant, EventError)
	var errData map[string]string
	require.NoError(t, json.Unmarshal(errMsg.Data, &errData))
	assert.Equal(t, InboundShareAsset, errData["event"])

	// Questions flow participant -> everyone.
	require.NoError(t, participant.WriteJSON(WSMessage{
		Event: InboundSubmitQuestion,
		Data:  json.RawMessage(`{"text":"what surah is this?"}`),
	}))
	q := readEvent(t, host, EventQuestionSubmitted)
	var qData map[string]interface{}
	require.NoError(t, json.Unmarshal(q.Data, &qData))
	assert.Equal(t, "what surah is this?", qData["text"])
	assert.Equal(t, "Amina", qData["name"])
}

func TestServeWsTwoParticipantsShareAndLeave(t *testing.T) {
	srv, _ := newTestServer(t, models.StatusActive)

	host := dial(t, srv, "token="+testHostToken)
	readEvent(t, host, EventSessionState)

	// Both participants present the same user token but carry distinct
	// identities from registration.
	a := dial(t, srv, "token="+testUserToken+"&guid="+testGuid)
	readEvent(t, a, EventSessionState)
	b := dial(t, srv, "token="+testUserToken+"&guid="+testGuidB)
	readEvent(t, b, EventSessionState)

	readEvent(t, host, EventParticipantJoined)
	join := readEvent(t, host, EventParticipantJoined)
	var joinData map[string]interface{}
	require.NoError(t, json.Unmarshal(join.Data, &joinData))
	assert.Equal(t, float64(2), joinData["count"])

	require.NoError(t, host.WriteJSON(WSMessage{
		Event: InboundShareAsset,
		Data:  json.RawMessage(`{"assetId":"asset-7","rawHtmlContent":"<p>surah</p>"}`),
	}))
	for _, conn := range []*websocket.Conn{a, b} {
		shared := readEvent(t, conn, EventAssetShared)
		var payload AssetPayload
		require.NoError(t, json.Unmarshal(shared.Data, &payload))
		assert.Equal(t, "asset-7", payload.AssetID)
	}

	// A's question reaches both the host and B.
	require.NoError(t, a.WriteJSON(WSMessage{
		Event: InboundSubmitQuestion,
		Data:  json.RawMessage(`{"text":"What time does this end?"}`),
	}))
	for _, conn := range []*websocket.Conn{host, b} {
		q := readEvent(t, conn, EventQuestionSubmitted)
		var qData map[string]interface{}
		require.NoError(t, json.Unmarshal(q.Data, &qData))
		assert.Equal(t, "What time does this end?", qData["text"])
		assert.Equal(t, testGuid, qData["userGuid"])
	}

	// B leaving drops the host-visible count from 2 to 1.
	require.NoError(t, b.Close())
	left := readEvent(t, host, EventParticipantLeft)
	var leftData map[string]interface{}
	require.NoError(t, json.Unmarshal(left.Data, &leftData))
	assert.Equal(t, testGuidB, leftData["userGuid"])
	assert.Equal(t, float64(1), leftData["count"])
}

func TestServeWsReconnectGetsSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, models.StatusActive)

	host := dial(t, srv, "token="+testHostToken)
	readEvent(t, host, EventSessionState)

	require.NoError(t, host.WriteJSON(WSMessage{
		Event: InboundShareAsset,
		Data:  json.RawMessage(`{"assetId":"ayah-7","rawHtmlContent":"<p>content</p>"}`),
	}))
	readEvent(t, host, EventAssetShared)

	// A participant joining after the share recovers the current asset from
	// the snapshot instead of a replay.
	participant := dial(t, srv, "token="+testUserToken+"&guid="+testGuid)
	state := readEvent(t, participant, EventSessionState)
	var snap StateSnapshot
	require.NoError(t, json.Unmarshal(state.Data, &snap))
	require.NotNil(t, snap.CurrentAsset)
	assert.Equal(t, "ayah-7", snap.CurrentAsset.AssetID)
}

func TestServeWsInfrastructureFailureIsNotUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t, models.StatusActive)

	// Token resolution hitting an unavailable backend is a server fault,
	// not a credential one.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "token="+testDownToken), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	// Same for identity resolution.
	_, resp, err = websocket.DefaultDialer.Dial(
		wsURL(srv, "token="+testUserToken+"&guid="+testGuidDown), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

// ctxCaptureStore records the context each question write runs under.
type ctxCaptureStore struct {
	NopStore

	mu  sync.Mutex
	ctx context.Context
}

func (s *ctxCaptureStore) RecordQuestion(ctx context.Context, _, _ uuid.UUID, _, _ string) (uuid.UUID, error) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return uuid.New(), nil
}

func (s *ctxCaptureStore) captured() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func TestServeWsDisconnectCancelsDispatchContext(t *testing.T) {
	store := &ctxCaptureStore{}
	srv, _ := newTestServerWithStore(t, models.StatusActive, store)

	conn := dial(t, srv, "token="+testUserToken+"&guid="+testGuid)
	readEvent(t, conn, EventSessionState)

	require.NoError(t, conn.WriteJSON(WSMessage{
		Event: InboundSubmitQuestion,
		Data:  json.RawMessage(`{"text":"is this recorded?"}`),
	}))
	readEvent(t, conn, EventQuestionSubmitted)

	ctx := store.captured()
	require.NotNil(t, ctx)
	require.NoError(t, ctx.Err())

	require.NoError(t, conn.Close())
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch context still live after disconnect")
	}
}
