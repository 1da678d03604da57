// Package gateway implements C9: the WebSocket/HTTP front door. It
// upgrades connections (gorilla/websocket, same as the teacher's
// internal/ws), dispatches inbound frames by type to the matching
// component, and serves a handful of read-only HTTP endpoints. The
// teacher's gin route groups (internal/api/routes.go) are not carried
// over — its value there was binding/validation middleware for a large
// REST CRUD surface, which doesn't apply to this package's small,
// implementation-defined read endpoints — so plain net/http.ServeMux
// takes its place, with gorilla/websocket kept for the socket itself.
package gateway

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/signalsgame/orchestrator/internal/auth"
	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/config"
	"github.com/signalsgame/orchestrator/internal/ledger"
	"github.com/signalsgame/orchestrator/internal/match"
	"github.com/signalsgame/orchestrator/internal/protocol"
	"github.com/signalsgame/orchestrator/internal/quickqueue"
	"github.com/signalsgame/orchestrator/internal/tournament"
	"github.com/signalsgame/orchestrator/internal/tournamentqueue"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires every component to the wire protocol and HTTP surface.
type Server struct {
	cfg        *config.Config
	hub        *broadcast.Hub
	ledger     *ledger.Gateway
	engine     *match.Engine
	quick      *quickqueue.Queue
	tournaments *tournament.Controller
	tqueue     *tournamentqueue.Queue
	challenges *auth.ChallengeStore
	sessions   *auth.SessionIssuer

	pendingMu sync.Mutex
	pendingChallenge map[*broadcast.Client]string
}

// New builds the gateway over its fully-wired collaborators.
func New(cfg *config.Config, hub *broadcast.Hub, gw *ledger.Gateway, engine *match.Engine, quick *quickqueue.Queue, tournaments *tournament.Controller, tqueue *tournamentqueue.Queue, challenges *auth.ChallengeStore, sessions *auth.SessionIssuer) *Server {
	return &Server{
		cfg: cfg, hub: hub, ledger: gw, engine: engine, quick: quick,
		tournaments: tournaments, tqueue: tqueue, challenges: challenges, sessions: sessions,
		pendingChallenge: make(map[*broadcast.Client]string),
	}
}

// Routes builds the HTTP mux: one WS upgrade endpoint and the
// implementation-defined read endpoints.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/match/", s.handleMatch)
	mux.HandleFunc("/queue", s.handleQueueStats)
	mux.HandleFunc("/tournament/", s.handleTournament)
	mux.HandleFunc("/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

func roleFromQuery(r *http.Request) broadcast.Role {
	switch r.URL.Query().Get("role") {
	case "spectator":
		return broadcast.RoleSpectator
	case "bettor":
		return broadcast.RoleBettor
	default:
		return broadcast.RoleAgent
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[GATEWAY] upgrade failed: %v", err)
		return
	}

	role := roleFromQuery(r)
	client := s.hub.AddClient(conn, role)

	if role == broadcast.RoleAgent {
		s.beginAuth(client, r.URL.Query().Get("session"))
	}

	go s.readLoop(client)
}

// beginAuth either resumes a session from a still-valid token or issues
// a fresh challenge — the reconnect-without-re-auth affordance.
func (s *Server) beginAuth(client *broadcast.Client, sessionToken string) {
	if sessionToken != "" {
		if address, name, err := s.sessions.Verify(sessionToken); err == nil {
			s.hub.AuthenticateAgent(client, address, name)
			s.hub.SendTo(client, protocol.EventAuthSuccess, authSuccessPayload{Address: address, Name: name})
			return
		}
	}

	ch, err := s.challenges.Generate()
	if err != nil {
		log.Printf("[GATEWAY] challenge generation failed: %v", err)
		s.hub.SendTo(client, protocol.EventAuthFailed, authFailedPayload{Reason: "challenge generation failed"})
		return
	}
	s.pendingMu.Lock()
	s.pendingChallenge[client] = ch.ChallengeID
	s.pendingMu.Unlock()
	s.hub.SendTo(client, protocol.EventAuthChallenge, authChallengePayload{
		Challenge: ch.Challenge, ChallengeID: ch.ChallengeID, ExpiresAt: ch.ExpiresAt.UnixMilli(),
	})
}

// readLoop reads frames off one connection until it closes, mirroring
// the teacher's Client.readPump read-deadline/pong-handler pattern.
func (s *Server) readLoop(client *broadcast.Client) {
	defer func() {
		s.pendingMu.Lock()
		delete(s.pendingChallenge, client)
		s.pendingMu.Unlock()
		s.hub.RemoveClient(client)
		if client.Address != "" {
			s.quick.Leave(client.Address)
			s.tqueue.Leave(client.Address)
		}
	}()

	client.Conn.SetReadLimit(65536)
	client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[GATEWAY] unexpected close for %s: %v", client.Address, err)
			}
			return
		}
		s.dispatch(client, data)
	}
}

type inboundFrame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func (s *Server) dispatch(client *broadcast.Client, data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: "malformed frame"})
		return
	}

	if frame.Type == protocol.InAuthResponse {
		s.handleAuthResponse(client, frame.Payload)
		return
	}

	if client.Role == broadcast.RoleAgent && client.Address == "" {
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: "not authenticated"})
		return
	}

	switch frame.Type {
	case protocol.InJoinQueue:
		if err := s.quick.Join(client.Address); err != nil {
			s.hub.SendTo(client, protocol.EventError, errorPayload{Message: err.Error()})
		}
	case protocol.InLeaveQueue:
		s.quick.Leave(client.Address)
	case protocol.InJoinTournamentQueue:
		if err := s.tqueue.Join(client.Address); err != nil {
			s.hub.SendTo(client, protocol.EventError, errorPayload{Message: err.Error()})
		}
	case protocol.InLeaveTournamentQueue:
		s.tqueue.Leave(client.Address)
	case protocol.InMatchMessage:
		s.handleMatchMessage(client, frame.Payload)
	case protocol.InChoiceSubmitted:
		s.handleChoiceSubmitted(client, frame.Payload)
	case protocol.InTournamentJoinSigned:
		s.handleTournamentJoinSigned(client, frame.Payload)
	case protocol.InDisconnect:
		s.hub.RemoveClient(client)
	default:
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: "unknown event type " + frame.Type})
	}
}

func (s *Server) handleAuthResponse(client *broadcast.Client, payload json.RawMessage) {
	var body struct {
		ChallengeID string `json:"challengeId"`
		Address     string `json:"address"`
		Signature   string `json:"signature"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		s.hub.SendTo(client, protocol.EventAuthFailed, authFailedPayload{Reason: "malformed payload"})
		return
	}

	sig, err := decodeHex(body.Signature)
	if err != nil {
		s.hub.SendTo(client, protocol.EventAuthFailed, authFailedPayload{Reason: "malformed signature"})
		return
	}

	result := s.challenges.VerifyChallenge(body.ChallengeID, body.Address, sig)
	if !result.Valid {
		s.hub.SendTo(client, protocol.EventAuthFailed, authFailedPayload{Reason: "signature verification failed"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	registered, err := s.ledger.IsRegistered(ctx, result.Address)
	if err != nil || !registered {
		s.hub.SendTo(client, protocol.EventAuthFailed, authFailedPayload{Reason: "address not registered"})
		return
	}

	info, err := s.ledger.GetAgentByWallet(ctx, result.Address)
	name := ""
	if err == nil {
		name = info.Name
	}

	s.hub.AuthenticateAgent(client, result.Address, name)

	token, err := s.sessions.Issue(result.Address, name)
	if err != nil {
		log.Printf("[GATEWAY] session issue failed for %s: %v", result.Address, err)
	}
	s.hub.SendTo(client, protocol.EventAuthSuccess, authSuccessPayload{Address: result.Address, Name: name, SessionToken: token})
}

func (s *Server) handleMatchMessage(client *broadcast.Client, payload json.RawMessage) {
	var body struct {
		MatchID uint64 `json:"matchId"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: "malformed payload"})
		return
	}
	if err := s.engine.HandleMessage(body.MatchID, client.Address, body.Message); err != nil {
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: err.Error()})
	}
}

func (s *Server) handleChoiceSubmitted(client *broadcast.Client, payload json.RawMessage) {
	var body struct {
		MatchID   uint64 `json:"matchId"`
		Choice    int    `json:"choice"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: "malformed payload"})
		return
	}
	sig, err := decodeHex(body.Signature)
	if err != nil {
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: "malformed signature"})
		return
	}
	if err := s.engine.SubmitChoice(body.MatchID, client.Address, protocolChoice(body.Choice), sig); err != nil {
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: err.Error()})
	}
}

func (s *Server) handleTournamentJoinSigned(client *broadcast.Client, payload json.RawMessage) {
	var body tournamentqueue.JoinSignedMessage
	if err := json.Unmarshal(payload, &body); err != nil {
		s.hub.SendTo(client, protocol.EventError, errorPayload{Message: "malformed payload"})
		return
	}
	s.tqueue.OnJoinSigned(client.Address, body)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}

func protocolChoice(n int) protocol.Choice {
	return protocol.Choice(n)
}

type authChallengePayload struct {
	Challenge   string `json:"challenge"`
	ChallengeID string `json:"challengeId"`
	ExpiresAt   int64  `json:"expiresAt"`
}

type authSuccessPayload struct {
	Address      string `json:"address"`
	Name         string `json:"name"`
	SessionToken string `json:"sessionToken,omitempty"`
}

type authFailedPayload struct {
	Reason string `json:"reason"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func parseUint64Path(path, prefix string) (uint64, bool) {
	raw := strings.TrimPrefix(path, prefix)
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	return id, err == nil
}
