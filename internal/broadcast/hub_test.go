package broadcast

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialPair spins up a throwaway websocket server backed by hub and
// returns the registered *Client plus a client-side connection the
// test can read frames from, mirroring how the teacher's ws tests
// exercise Hub against a real (if ephemeral) socket.
func dialPair(t *testing.T, hub *Hub, role Role) (*Client, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}

	serverClientCh := make(chan *Client, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		serverClientCh <- hub.AddClient(conn, role)
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { clientConn.Close() })

	select {
	case c := <-serverClientCh:
		return c, clientConn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side client registration")
	}
	return nil, nil
}

func TestAuthenticateAgentReplacesStaleConnection(t *testing.T) {
	hub := NewHub()
	first, firstConn := dialPair(t, hub, RoleAgent)
	hub.AuthenticateAgent(first, "0xAAA", "agent-a")

	second, _ := dialPair(t, hub, RoleAgent)
	hub.AuthenticateAgent(second, "0xaaa", "agent-a-reconnect")

	if !hub.IsAgentConnected("0xAAA") {
		t.Error("expected address to still be connected after reconnect")
	}
	name, ok := hub.LookupAgentName("0xaaa")
	if !ok || name != "agent-a-reconnect" {
		t.Errorf("expected the newer registration's name to win, got %q (ok=%v)", name, ok)
	}

	firstConn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := firstConn.ReadMessage(); err == nil {
		t.Error("expected the stale connection to be closed on reconnect")
	}
}

func TestRemoveClientClearsAddressIndex(t *testing.T) {
	hub := NewHub()
	client, _ := dialPair(t, hub, RoleAgent)
	hub.AuthenticateAgent(client, "0xBBB", "agent-b")

	hub.RemoveClient(client)

	if hub.IsAgentConnected("0xBBB") {
		t.Error("expected address to be cleared after RemoveClient")
	}
	if _, ok := hub.LookupAgentName("0xBBB"); ok {
		t.Error("expected LookupAgentName to miss after removal")
	}
}

func TestGetStatsCountsByRole(t *testing.T) {
	hub := NewHub()
	dialPair(t, hub, RoleAgent)
	dialPair(t, hub, RoleSpectator)
	dialPair(t, hub, RoleSpectator)
	dialPair(t, hub, RoleBettor)

	stats := hub.GetStats()
	if stats.Agents != 1 || stats.Spectators != 2 || stats.Bettors != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestSendToAgentDeliversEnvelope(t *testing.T) {
	hub := NewHub()
	client, conn := dialPair(t, hub, RoleAgent)
	hub.AuthenticateAgent(client, "0xCCC", "agent-c")

	hub.SendToAgent("0xccc", "TEST_EVENT", map[string]string{"hello": "world"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected a frame to be delivered: %v", err)
	}
	if !strings.Contains(string(data), "TEST_EVENT") {
		t.Errorf("expected envelope to contain event type, got %s", data)
	}
}

func TestBroadcastPublicExcludesAgents(t *testing.T) {
	hub := NewHub()
	agentClient, agentConn := dialPair(t, hub, RoleAgent)
	hub.AuthenticateAgent(agentClient, "0xDDD", "agent-d")
	_, spectatorConn := dialPair(t, hub, RoleSpectator)

	hub.BroadcastPublic("PUBLIC_EVENT", map[string]string{"k": "v"})

	spectatorConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, data, err := spectatorConn.ReadMessage(); err != nil || !strings.Contains(string(data), "PUBLIC_EVENT") {
		t.Fatalf("expected spectator to receive the public broadcast: data=%s err=%v", data, err)
	}

	agentConn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, _, err := agentConn.ReadMessage(); err == nil {
		t.Error("expected agent connection to not receive a BroadcastPublic frame")
	}
}
