package match

import (
	"testing"
	"time"

	"github.com/signalsgame/orchestrator/internal/protocol"
)

func TestSideResolvesParticipantRegardlessOfCase(t *testing.T) {
	m := &Match{
		A: sideState{Address: "0xaaa"},
		B: sideState{Address: "0xbbb"},
	}

	self, opponent, ok := m.side("0xAAA")
	if !ok {
		t.Fatal("expected 0xAAA to resolve to side A case-insensitively")
	}
	if self != &m.A {
		t.Error("expected self to point at m.A")
	}
	if opponent != &m.B {
		t.Error("expected opponent to point at m.B")
	}
}

func TestSideRejectsNonParticipant(t *testing.T) {
	m := &Match{A: sideState{Address: "0xaaa"}, B: sideState{Address: "0xbbb"}}

	if _, _, ok := m.side("0xccc"); ok {
		t.Error("expected a non-participant address to fail side lookup")
	}
}

func TestIsParticipant(t *testing.T) {
	m := &Match{A: sideState{Address: "0xaaa"}, B: sideState{Address: "0xbbb"}}

	if !m.isParticipant("0xAAA") {
		t.Error("expected A to be a participant case-insensitively")
	}
	if !m.isParticipant("0xBBB") {
		t.Error("expected B to be a participant")
	}
	if m.isParticipant("0xccc") {
		t.Error("expected an unrelated address to not be a participant")
	}
}

func TestToSettlementCarriesBothSides(t *testing.T) {
	m := &Match{
		MatchID: 7,
		A:       sideState{Choice: protocol.ChoiceSplit, Nonce: 1, Signature: []byte{1}},
		B:       sideState{Choice: protocol.ChoiceSteal, Nonce: 2, Signature: []byte{2}},
	}

	s := m.toSettlement()
	if s.MatchID != 7 {
		t.Errorf("expected matchId 7, got %d", s.MatchID)
	}
	if s.ChoiceA != protocol.ChoiceSplit || s.NonceA != 1 {
		t.Errorf("unexpected side A settlement data: %+v", s)
	}
	if s.ChoiceB != protocol.ChoiceSteal || s.NonceB != 2 {
		t.Errorf("unexpected side B settlement data: %+v", s)
	}
}

func TestLowerIsASCIIOnly(t *testing.T) {
	if got := lower("0xABCDEF"); got != "0xabcdef" {
		t.Errorf("lower(0xABCDEF) = %q, want 0xabcdef", got)
	}
}

func TestAllowMessageCapsBurstThenRefills(t *testing.T) {
	var s sideState
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !s.allowMessage(3, 1, now) {
			t.Fatalf("expected message %d within burst to be allowed", i+1)
		}
	}
	if s.allowMessage(3, 1, now) {
		t.Error("expected a 4th message with no elapsed time to be rejected")
	}

	// A full window later the bucket should be back to full.
	if !s.allowMessage(3, 1, now.Add(time.Second)) {
		t.Error("expected a message one window later to be allowed")
	}
}

func TestAllowMessageZeroBurstDisablesLimit(t *testing.T) {
	var s sideState
	now := time.Now()
	for i := 0; i < 10; i++ {
		if !s.allowMessage(0, 1, now) {
			t.Errorf("expected burst=0 to mean unlimited, rejected at message %d", i+1)
		}
	}
}
