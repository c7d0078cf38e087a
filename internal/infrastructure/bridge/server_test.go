package bridge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

type echoDispatcher struct {
	calls int
}

func (d *echoDispatcher) Dispatch(_ context.Context, tool string, args json.RawMessage) (any, error) {
	d.calls++
	if tool == "fail.me" {
		return nil, pkgerrors.New(pkgerrors.CodeTool, "intentional failure")
	}
	var body map[string]any
	_ = json.Unmarshal(args, &body)
	return map[string]any{"tool": tool, "echo": body}, nil
}

func newTestServer(t *testing.T, dispatcher Dispatcher, token string) (*httptest.Server, string) {
	cfg := Config{SharedToken: token, MaxConcurrency: 4, AdmissionRate: 1000, DedupTTLSec: 30, DedupMaxEntry: 100, DedupMaxBytes: 1 << 20}
	srv := NewServer(cfg, dispatcher, prometheus.NewRegistry(), nil)
	ts := httptest.NewServer(srv.Router())
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	return ts, wsURL
}

func dialWS(t *testing.T, url, token string) *websocket.Conn {
	dialURL := url
	if token != "" {
		dialURL += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(dialURL, nil)
	require.NoError(t, err)
	return conn
}

func TestBridge_InvokeRoundTripsSuccess(t *testing.T) {
	ts, wsURL := newTestServer(t, &echoDispatcher{}, "secret")
	defer ts.Close()

	conn := dialWS(t, wsURL, "secret")
	defer conn.Close()

	req := RequestFrame{Type: FrameRequest, ID: "r1", Tool: "fs.read_text", Args: json.RawMessage(`{"path":"a.txt"}`)}
	require.NoError(t, conn.WriteJSON(req))

	var sawFinished bool
	for i := 0; i < 5; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var generic map[string]any
		require.NoError(t, json.Unmarshal(msg, &generic))

		if generic["type"] == "event" && generic["event"] == EventInvokeFinished {
			sawFinished = true
			continue
		}
		if _, hasOK := generic["ok"]; hasOK {
			require.Equal(t, true, generic["ok"])
			require.Equal(t, "r1", generic["id"])
			break
		}
	}
	require.True(t, sawFinished)
}

func TestBridge_InvokeFailureReturnsErrorFrame(t *testing.T) {
	ts, wsURL := newTestServer(t, &echoDispatcher{}, "secret")
	defer ts.Close()

	conn := dialWS(t, wsURL, "secret")
	defer conn.Close()

	req := RequestFrame{Type: FrameRequest, ID: "r2", Tool: "fail.me", Args: json.RawMessage(`{}`)}
	require.NoError(t, conn.WriteJSON(req))

	for i := 0; i < 5; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var generic map[string]any
		require.NoError(t, json.Unmarshal(msg, &generic))
		if ok, has := generic["ok"]; has {
			require.Equal(t, false, ok)
			errBody := generic["error"].(map[string]any)
			require.Equal(t, string(pkgerrors.CodeTool), errBody["code"])
			return
		}
	}
	t.Fatal("never received a failure frame")
}

func TestBridge_WSHandshakeRejectsBadToken(t *testing.T) {
	ts, wsURL := newTestServer(t, &echoDispatcher{}, "secret")
	defer ts.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=wrong", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 401, resp.StatusCode)
}

func TestBridge_DedupAcrossTwoInvocationsWithSameFingerprint(t *testing.T) {
	dispatcher := &echoDispatcher{}
	ts, wsURL := newTestServer(t, dispatcher, "secret")
	defer ts.Close()

	conn := dialWS(t, wsURL, "secret")
	defer conn.Close()

	send := func(id string) {
		req := RequestFrame{Type: FrameRequest, ID: id, InvocationID: "inv-1", SessionID: "s1", Fingerprint: "fp1", Tool: "fs.read_text", Args: json.RawMessage(`{"path":"a.txt"}`)}
		require.NoError(t, conn.WriteJSON(req))
	}

	send("r1")
	drainUntilOK(t, conn)
	send("r2")
	drainUntilOK(t, conn)

	require.Equal(t, 1, dispatcher.calls)
}

func drainUntilOK(t *testing.T, conn *websocket.Conn) {
	for i := 0; i < 5; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var generic map[string]any
		require.NoError(t, json.Unmarshal(msg, &generic))
		if _, has := generic["ok"]; has {
			return
		}
	}
	t.Fatal("never saw a response frame")
}

func TestBridge_HealthAndVersionEndpoints(t *testing.T) {
	ts, _ := newTestServer(t, &echoDispatcher{}, "")
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	resp2, err := ts.Client().Get(ts.URL + "/dev/version")
	require.NoError(t, err)
	require.Equal(t, 200, resp2.StatusCode)
}
