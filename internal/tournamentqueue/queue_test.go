package tournamentqueue

import (
	"testing"

	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/config"
)

type stubQuickQueue struct{ queued map[string]bool }

func (s stubQuickQueue) IsQueued(address string) bool { return s.queued[address] }

type stubInMatch struct{ inMatch map[string]uint64 }

func (s stubInMatch) MatchIDForAddress(address string) (uint64, bool) {
	id, ok := s.inMatch[address]
	return id, ok
}

func newTestQueue() *Queue {
	return &Queue{
		cfg: &config.Config{
			TournamentMinPlayers:          4,
			TournamentMaxPlayers:          8,
			TournamentTriggerDelaySeconds: 60,
		},
		hub:        broadcast.NewHub(),
		quickQueue: stubQuickQueue{queued: map[string]bool{}},
		inMatch:    stubInMatch{inMatch: map[string]uint64{}},
	}
}

func TestJoinAddsAddressToWaitingList(t *testing.T) {
	q := newTestQueue()

	if err := q.Join("0xAAA"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(q.waiting) != 1 || q.waiting[0] != "0xaaa" {
		t.Errorf("expected waiting=[0xaaa], got %v", q.waiting)
	}
}

func TestJoinRejectsDuplicate(t *testing.T) {
	q := newTestQueue()

	if err := q.Join("0xaaa"); err != nil {
		t.Fatalf("unexpected error on first join: %v", err)
	}
	if err := q.Join("0xAAA"); err == nil {
		t.Error("expected a duplicate join to be rejected")
	}
	if len(q.waiting) != 1 {
		t.Errorf("expected the duplicate join to leave the queue at size 1, got %d", len(q.waiting))
	}
}

func TestJoinRejectsAlreadyQueuedInQuickMatch(t *testing.T) {
	q := newTestQueue()
	q.quickQueue = stubQuickQueue{queued: map[string]bool{"0xaaa": true}}

	if err := q.Join("0xaaa"); err == nil {
		t.Error("expected join to be rejected when already in the quick-match queue")
	}
	if len(q.waiting) != 0 {
		t.Errorf("expected nothing to be queued, got %v", q.waiting)
	}
}

func TestJoinRejectsAlreadyInMatch(t *testing.T) {
	q := newTestQueue()
	q.inMatch = stubInMatch{inMatch: map[string]uint64{"0xaaa": 42}}

	if err := q.Join("0xaaa"); err == nil {
		t.Error("expected join to be rejected when already in a live match")
	}
}

func TestJoinRejectsWhileAssemblyPending(t *testing.T) {
	q := newTestQueue()
	q.pending = &pendingTournament{tournamentID: 1, invited: map[string]*invitee{}}

	if err := q.Join("0xaaa"); err == nil {
		t.Error("expected join to be rejected while a tournament is already being assembled")
	}
}

func TestJoinArmsTriggerAtMinPlayers(t *testing.T) {
	q := newTestQueue()

	for _, addr := range []string{"0xaaa", "0xbbb", "0xccc"} {
		if err := q.Join(addr); err != nil {
			t.Fatalf("unexpected error joining %s: %v", addr, err)
		}
	}
	if q.trigger != nil {
		t.Error("expected no trigger armed below MinPlayers")
	}

	if err := q.Join("0xddd"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.trigger == nil {
		t.Error("expected trigger to be armed once MinPlayers is reached")
	}
}

func TestLeaveRemovesAddress(t *testing.T) {
	q := newTestQueue()
	q.Join("0xaaa")
	q.Join("0xbbb")

	q.Leave("0xAAA")

	if len(q.waiting) != 1 || q.waiting[0] != "0xbbb" {
		t.Errorf("expected only 0xbbb to remain, got %v", q.waiting)
	}
}

func TestLeaveUnknownAddressIsNoop(t *testing.T) {
	q := newTestQueue()
	q.Join("0xaaa")

	q.Leave("0xzzz")

	if len(q.waiting) != 1 {
		t.Errorf("expected waiting list to be unaffected, got %v", q.waiting)
	}
}

func TestOnJoinSignedRejectsUninvitedAddress(t *testing.T) {
	q := newTestQueue()
	q.pending = &pendingTournament{tournamentID: 1, invited: map[string]*invitee{"0xaaa": {nonce: 0}}}

	// 0xbbb was never invited; this must not panic and must not mark
	// anything joined.
	q.OnJoinSigned("0xbbb", JoinSignedMessage{TournamentID: 1})

	if q.pending.invited["0xaaa"].joined {
		t.Error("expected the uninvited call to leave the real invitee untouched")
	}
}

func TestOnJoinSignedIgnoresStaleTournamentID(t *testing.T) {
	q := newTestQueue()
	q.pending = &pendingTournament{tournamentID: 1, invited: map[string]*invitee{"0xaaa": {nonce: 0}}}

	q.OnJoinSigned("0xaaa", JoinSignedMessage{TournamentID: 999})

	if q.pending.invited["0xaaa"].joined {
		t.Error("expected a stale tournamentId to be ignored")
	}
}

func TestOnJoinSignedRejectsMalformedSignature(t *testing.T) {
	q := newTestQueue()
	q.pending = &pendingTournament{tournamentID: 1, invited: map[string]*invitee{"0xaaa": {nonce: 0}}}

	q.OnJoinSigned("0xaaa", JoinSignedMessage{TournamentID: 1, Signature: "not-hex"})

	if q.pending.invited["0xaaa"].joined {
		t.Error("expected a malformed signature to be rejected before touching the ledger")
	}
}
