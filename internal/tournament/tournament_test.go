package tournament

import (
	"testing"

	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/match"
	"github.com/signalsgame/orchestrator/internal/protocol"
)

func TestPayoutForBothSubmittedUsesSettle(t *testing.T) {
	var m match.Match
	m.A.Submitted = true
	m.A.Choice = protocol.ChoiceSteal
	m.B.Submitted = true
	m.B.Choice = protocol.ChoiceSplit

	result, payout := payoutFor(m)
	if result != protocol.ResultAgentASteals {
		t.Errorf("expected ResultAgentASteals, got %v", result)
	}
	if payout != (protocol.Payout{A: 5, B: 1}) {
		t.Errorf("expected 5/1 payout, got %+v", payout)
	}
}

func TestPayoutForPartialTimeout(t *testing.T) {
	var m match.Match
	m.A.Submitted = true
	m.A.Choice = protocol.ChoiceSplit
	// B never submitted.

	_, payout := payoutFor(m)
	if payout != (protocol.Payout{A: 1, B: 0}) {
		t.Errorf("expected 1/0 partial-timeout payout, got %+v", payout)
	}
}

func TestPayoutForFullTimeout(t *testing.T) {
	var m match.Match
	_, payout := payoutFor(m)
	if payout != (protocol.Payout{A: 0, B: 0}) {
		t.Errorf("expected 0/0 full-timeout payout, got %+v", payout)
	}
}

func TestRegisterPlayerAddsToRosterOnce(t *testing.T) {
	c := &Controller{
		hub:         broadcast.NewHub(),
		tournaments: map[uint64]*Tournament{1: newBareTournament(1)},
	}

	c.RegisterPlayer(1, "0xAAA", "agent-a")
	c.RegisterPlayer(1, "0xaaa", "agent-a-dup")

	tour := c.tournaments[1]
	if len(tour.order) != 1 {
		t.Fatalf("expected a duplicate join to be a no-op, got order=%v", tour.order)
	}
	if tour.players["0xaaa"].Name != "agent-a" {
		t.Errorf("expected first registration's name to stick, got %q", tour.players["0xaaa"].Name)
	}
}

func TestRegisterPlayerUnknownTournamentIsNoop(t *testing.T) {
	c := &Controller{
		hub:         broadcast.NewHub(),
		tournaments: map[uint64]*Tournament{},
	}
	// Must not panic even though tournament 99 doesn't exist.
	c.RegisterPlayer(99, "0xaaa", "agent-a")
}

func newBareTournament(id uint64) *Tournament {
	return &Tournament{
		ID:            id,
		players:       make(map[string]*Player),
		pastOpponents: make(map[string]map[string]bool),
		roundMatches:  make(map[uint64]*roundMatch),
	}
}
