// Package match implements C5: the per-match state machine that drives
// one pairing from negotiation through on-chain settlement. Grounded on
// the teacher's GameState/GameManager split (internal/game/manager.go)
// — one struct per live game guarded by its own mutex, a manager-level
// registry keyed by id, and timer-driven phase transitions — adapted
// from a turn-based card game's phases to commit-reveal negotiation,
// choice, and settlement phases.
package match

import (
	"time"

	"github.com/signalsgame/orchestrator/internal/ledger"
	"github.com/signalsgame/orchestrator/internal/protocol"
)

// State is a match's position in its lifecycle.
type State int

const (
	StateNegotiation State = iota
	StateAwaitingChoices
	StateSettling
	StateComplete
)

// Message is one negotiation-phase chat line.
type Message struct {
	From      string `json:"from"`
	FromName  string `json:"fromName"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// sideState holds everything the engine tracks for one participant.
type sideState struct {
	Address    string
	Name       string
	Submitted  bool
	Choice     protocol.Choice
	Signature  []byte
	Nonce      uint64
	CommitHash [32]byte

	msgTokens     float64
	msgLastRefill time.Time
}

// allowMessage applies a token-bucket cap of burst tokens refilling at
// burst/windowSecs per second, so one side can't flood the opponent with
// negotiation chat. Callers must hold the owning match's entry lock.
func (s *sideState) allowMessage(burst, windowSecs int, now time.Time) bool {
	if burst <= 0 {
		return true
	}
	if s.msgLastRefill.IsZero() {
		s.msgTokens = float64(burst)
		s.msgLastRefill = now
	} else if elapsed := now.Sub(s.msgLastRefill).Seconds(); elapsed > 0 {
		rate := float64(burst) / float64(windowSecs)
		s.msgTokens += elapsed * rate
		if s.msgTokens > float64(burst) {
			s.msgTokens = float64(burst)
		}
		s.msgLastRefill = now
	}
	if s.msgTokens < 1 {
		return false
	}
	s.msgTokens--
	return true
}

// Match is one live pairing. All reads/writes go through the owning
// Engine, which serializes access per matchId (§5) — Match itself holds
// no lock, mirroring the teacher's GameState being mutated only while
// the manager holds the relevant entry.
type Match struct {
	MatchID      uint64
	TournamentID uint64
	Round        uint64

	A, B sideState

	State         State
	PhaseDeadline time.Time
	MatchSalt     [32]byte
	ChoiceWindow  time.Duration

	Messages []Message

	CreatedAt   time.Time
	CompletedAt time.Time

	timer *time.Timer
}

func (m *Match) side(address string) (*sideState, *sideState, bool) {
	switch {
	case equalAddr(m.A.Address, address):
		return &m.A, &m.B, true
	case equalAddr(m.B.Address, address):
		return &m.B, &m.A, true
	default:
		return nil, nil, false
	}
}

func (m *Match) isParticipant(address string) bool {
	return equalAddr(m.A.Address, address) || equalAddr(m.B.Address, address)
}

func equalAddr(a, b string) bool {
	return lower(a) == lower(b)
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

// toSettlement converts a complete match into the ledger.Settlement tuple
// C1's settlement buffer expects.
func (m *Match) toSettlement() ledger.Settlement {
	return ledger.Settlement{
		MatchID: m.MatchID,
		ChoiceA: m.A.Choice,
		NonceA:  m.A.Nonce,
		SigA:    m.A.Signature,
		ChoiceB: m.B.Choice,
		NonceB:  m.B.Nonce,
		SigB:    m.B.Signature,
	}
}
