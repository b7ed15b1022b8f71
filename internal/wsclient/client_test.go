package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"InterviewPulse/internal/protocol"
)

// scriptedServer 第一个连接在开始面试后断开，之后的连接要求先恢复会话
func scriptedServer(t *testing.T, resumed *atomic.Int32) *httptest.Server {
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		n := connections.Add(1)

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				ws.WriteJSON(protocol.NewError(err.Error()))
				continue
			}
			switch m := msg.(type) {
			case protocol.StartInterview:
				ws.WriteJSON(protocol.NewSessionStarted("s-1", []string{"q0", "q1"}, 0))
				if n == 1 {
					return
				}
			case protocol.ResumeInterview:
				if m.SessionID == "s-1" && m.Token == "alice" {
					resumed.Add(1)
				}
				ws.WriteJSON(protocol.NewSessionStarted(m.SessionID, []string{"q0", "q1"}, 0))
			case protocol.Frame:
				ws.WriteJSON(protocol.NewFrameProcessed(nil, 0.5, 1))
			default:
				ws.WriteJSON(protocol.NewError("unexpected"))
			}
		}
	}))
}

func TestClientStateString(t *testing.T) {
	assert.Equal(t, "CONNECTED", StateConnected.String())
	assert.Equal(t, "UNKNOWN", ClientState(42).String())
}

func TestReconnectResumesSession(t *testing.T) {
	var resumed atomic.Int32
	ts := scriptedServer(t, &resumed)
	defer ts.Close()

	cfg := DefaultClientConfig("ws"+strings.TrimPrefix(ts.URL, "http"), "alice")
	cfg.ReconnectInterval = 20 * time.Millisecond
	c := New(cfg)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Connect(ctx))

	started, err := c.StartInterview(ctx, "Software Engineer", 2)
	require.NoError(t, err)
	assert.Equal(t, "s-1", started.SessionID)

	require.Eventually(t, func() bool {
		return c.Reconnects() == 1 && c.State() == StateConnected
	}, 5*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, resumed.Load())
	assert.Equal(t, "s-1", c.SessionID())

	fp, err := c.SendFrame(ctx, "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, 1, fp.FrameCount)

	stats := c.GetStats()
	assert.Equal(t, "CONNECTED", stats["state"])
}

func TestServerErrorReply(t *testing.T) {
	var resumed atomic.Int32
	ts := scriptedServer(t, &resumed)
	defer ts.Close()

	c := New(DefaultClientConfig("ws"+strings.TrimPrefix(ts.URL, "http"), "bob"))
	defer c.Close()
	require.NoError(t, c.Connect(context.Background()))

	_, err := c.EndInterview(context.Background())
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "unexpected", se.Message)
}

func TestRequestWhenNotConnected(t *testing.T) {
	c := New(DefaultClientConfig("ws://127.0.0.1:1/ws", "x"))
	_, err := c.Request(context.Background(), protocol.EndInterview{})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestParseReply(t *testing.T) {
	raw, _ := json.Marshal(protocol.NewError("boom"))
	r, err := parseReply(raw)
	require.NoError(t, err)
	assert.Equal(t, protocol.TypeError, r.Type)
}
