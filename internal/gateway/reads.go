package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorPayload{Message: message})
}

// handleMatch serves GET /match/{id}: the live in-memory snapshot if
// the match is still active, falling back to the ledger's settled view.
func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint64Path(r.URL.Path, "/match/")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid match id")
		return
	}

	if snap, ok := s.engine.Snapshot(id); ok {
		writeJSON(w, http.StatusOK, matchSnapshotPayload{
			MatchID: snap.MatchID, TournamentID: snap.TournamentID, Round: snap.Round,
			State: int(snap.State), AgentA: snap.A.Address, AgentB: snap.B.Address,
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	view, err := s.ledger.GetMatch(ctx, id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "match not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleQueueStats serves GET /queue. It writes the hub's connection
// counts by role, the same body as GET /stats; the quick-match queue
// size is not reported.
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.GetStats())
}

// handleTournament serves GET /tournament/{id}: the ledger's on-chain
// tournament view.
func (s *Server) handleTournament(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUint64Path(r.URL.Path, "/tournament/")
	if !ok {
		writeErr(w, http.StatusBadRequest, "invalid tournament id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	view, err := s.ledger.GetTournament(ctx, id)
	if err != nil {
		writeErr(w, http.StatusNotFound, "tournament not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleLeaderboard serves GET /leaderboard?limit=N.
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, ok := parseLimit(raw); ok {
			limit = n
		}
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	entries, err := s.ledger.GetLeaderboard(ctx, limit)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleStats serves GET /stats: the aggregate connection counts the
// original system surfaces to spectators.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.GetStats())
}

func parseLimit(raw string) (int, bool) {
	id, ok := parseUint64Path(raw, "")
	if !ok || id > 1<<20 {
		return 0, false
	}
	return int(id), true
}

type matchSnapshotPayload struct {
	MatchID      uint64 `json:"matchId"`
	TournamentID uint64 `json:"tournamentId,omitempty"`
	Round        uint64 `json:"round,omitempty"`
	State        int    `json:"state"`
	AgentA       string `json:"agentA"`
	AgentB       string `json:"agentB"`
}
