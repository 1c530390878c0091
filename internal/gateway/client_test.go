package gateway

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/localcoworker/engine/internal/config"
	"github.com/localcoworker/engine/internal/model"
	"github.com/localcoworker/engine/internal/tools"
	"github.com/localcoworker/engine/pkg/protocol"
)

// startTestServer boots a Server on a loopback listener and returns the
// resolved ws:// URL, matching the teacher's in-process server test idiom.
func startTestServer(t *testing.T, provider model.Provider) (string, *Server) {
	t.Helper()

	workspace := t.TempDir()
	cfg := &config.Config{
		Gateway: config.GatewayConfig{ListenAddr: "127.0.0.1:0"},
	}
	defaults := config.AgentDefaults{
		Provider:  "fake",
		Model:     "fake-model",
		Workspace: workspace,
		MaxSteps:  10,
	}

	toolsFactory := func(cfg *config.AgentConfig) *tools.Registry {
		return tools.NewRegistry()
	}

	srv := NewServer(cfg, defaults, provider, toolsFactory, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	httpSrv := httptest.NewUnstartedServer(srv.BuildMux())
	httpSrv.Listener.Close()
	httpSrv.Listener = ln
	httpSrv.Start()
	t.Cleanup(httpSrv.Close)

	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	return wsURL, srv
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.ServerFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame protocol.ServerFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestGateway_NonWebSocketPathReturnsOK(t *testing.T) {
	url, _ := startTestServer(t, &model.FakeProvider{})
	httpURL := "http" + strings.TrimPrefix(url, "ws")
	httpURL = strings.TrimSuffix(httpURL, "/ws")

	resp, err := http.Get(httpURL + "/anything")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGateway_ConnectSendsHelloAndSnapshots(t *testing.T) {
	url, _ := startTestServer(t, &model.FakeProvider{})
	conn := dial(t, url)

	hello := readFrame(t, conn)
	require.Equal(t, protocol.ServerHello, hello.Type)
	require.NotEmpty(t, hello.SessionID)

	settings := readFrame(t, conn)
	require.Equal(t, protocol.ServerSessionSettings, settings.Type)
}

func TestGateway_PingReceivesPong(t *testing.T) {
	url, _ := startTestServer(t, &model.FakeProvider{})
	conn := dial(t, url)

	drainHello(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{Type: string(protocol.ClientPing)}))
	frame := readFrame(t, conn)
	require.Equal(t, protocol.ServerPong, frame.Type)
}

func TestGateway_UnknownTypeReturnsErrorEvent(t *testing.T) {
	url, _ := startTestServer(t, &model.FakeProvider{})
	conn := dial(t, url)
	drainHello(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{Type: "not_a_real_type"}))
	frame := readFrame(t, conn)
	require.Equal(t, protocol.ServerError, frame.Type)
}

func TestGateway_UserMessageRunsFullTurnEventSequence(t *testing.T) {
	fake := &model.FakeProvider{Steps: []model.FakeStep{{Text: "hello back"}}}
	url, _ := startTestServer(t, fake)
	conn := dial(t, url)
	drainHello(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{
		Type: string(protocol.ClientUserMessage),
		Data: mustJSON(t, protocol.UserMessagePayload{Text: "hi there"}),
	}))

	var types []protocol.ServerType
	for i := 0; i < 5; i++ {
		frame := readFrame(t, conn)
		types = append(types, frame.Type)
		if frame.Type == protocol.ServerSessionBusy {
			data, _ := frame.Data.(map[string]interface{})
			if busy, _ := data["busy"].(bool); !busy {
				break
			}
		}
	}

	require.Contains(t, types, protocol.ServerUserMessage)
	require.Contains(t, types, protocol.ServerAgentStarted)
	require.Contains(t, types, protocol.ServerAgentFinished)
}

func TestGateway_HarnessSLOEvaluateValidWindow(t *testing.T) {
	url, _ := startTestServer(t, &model.FakeProvider{})
	conn := dial(t, url)
	drainHello(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{
		Type: string(protocol.ClientHarnessSLOEvaluate),
		Data: mustJSON(t, protocol.HarnessSLOEvaluatePayload{SLO: "p99_latency", Window: "*/5 * * * *"}),
	}))

	frame := readFrame(t, conn)
	require.Equal(t, protocol.ServerHarnessSLOResult, frame.Type)
	data, _ := frame.Data.(map[string]interface{})
	require.Equal(t, "ok", data["status"])
	require.Contains(t, data, "windowFromMs")
	require.Contains(t, data, "windowToMs")
}

func TestGateway_HarnessSLOEvaluateInvalidWindow(t *testing.T) {
	url, _ := startTestServer(t, &model.FakeProvider{})
	conn := dial(t, url)
	drainHello(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{
		Type: string(protocol.ClientHarnessSLOEvaluate),
		Data: mustJSON(t, protocol.HarnessSLOEvaluatePayload{SLO: "p99_latency", Window: "not a cron"}),
	}))

	frame := readFrame(t, conn)
	require.Equal(t, protocol.ServerHarnessSLOResult, frame.Type)
	data, _ := frame.Data.(map[string]interface{})
	require.Equal(t, "error", data["status"])
}

func TestGateway_ObservabilityQueryFindsRecordedTurnEvents(t *testing.T) {
	fake := &model.FakeProvider{Steps: []model.FakeStep{{Text: "hello back"}}}
	url, _ := startTestServer(t, fake)
	conn := dial(t, url)
	drainHello(t, conn)

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{
		Type: string(protocol.ClientUserMessage),
		Data: mustJSON(t, protocol.UserMessagePayload{Text: "hi there"}),
	}))
	for i := 0; i < 5; i++ {
		frame := readFrame(t, conn)
		if frame.Type == protocol.ServerSessionBusy {
			data, _ := frame.Data.(map[string]interface{})
			if busy, _ := data["busy"].(bool); !busy {
				break
			}
		}
	}

	require.NoError(t, conn.WriteJSON(protocol.ClientFrame{
		Type: string(protocol.ClientObservabilityQuery),
		Data: mustJSON(t, protocol.ObservabilityQueryPayload{Query: "turn.step"}),
	}))
	frame := readFrame(t, conn)
	require.Equal(t, protocol.ServerObservabilityResult, frame.Type)
	data, _ := frame.Data.(map[string]interface{})
	require.Equal(t, "ok", data["status"])
	results, _ := data["results"].([]interface{})
	require.NotEmpty(t, results)
}

func drainHello(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	for i := 0; i < 6; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame protocol.ServerFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type == protocol.ServerProviderStatus {
			return
		}
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
