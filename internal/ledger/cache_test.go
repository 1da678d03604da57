package ledger

import (
	"math/big"
	"testing"
	"time"
)

func TestTTLCacheGetSetRoundTrip(t *testing.T) {
	c := newTTLCache[string, int](time.Minute)
	c.set("a", 1)

	v, ok := c.get("a")
	if !ok || v != 1 {
		t.Errorf("expected (1, true), got (%d, %v)", v, ok)
	}
	if _, ok := c.get("missing"); ok {
		t.Error("expected a miss for an unknown key")
	}
}

func TestTTLCacheExpires(t *testing.T) {
	c := newTTLCache[string, int](time.Millisecond)
	c.set("a", 1)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.get("a"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestTTLCacheSetForeverNeverExpires(t *testing.T) {
	c := newTTLCache[string, int](time.Nanosecond)
	c.setForever("a", 1)
	time.Sleep(5 * time.Millisecond)

	v, ok := c.get("a")
	if !ok || v != 1 {
		t.Errorf("expected setForever entry to survive, got (%d, %v)", v, ok)
	}
}

func TestTTLCacheDelete(t *testing.T) {
	c := newTTLCache[string, int](time.Minute)
	c.set("a", 1)
	c.delete("a")

	if _, ok := c.get("a"); ok {
		t.Error("expected deleted entry to miss")
	}
}

func TestTTLCacheClear(t *testing.T) {
	c := newTTLCache[string, int](time.Minute)
	c.set("a", 1)
	c.set("b", 2)
	c.clear()

	if _, ok := c.get("a"); ok {
		t.Error("expected clear to remove all entries")
	}
	if _, ok := c.get("b"); ok {
		t.Error("expected clear to remove all entries")
	}
}

func TestInvalidateOnSettlementClearsStatsAndLeaderboardOnly(t *testing.T) {
	cs := &cacheSet{
		agentStats:   newTTLCache[string, AgentStats](time.Minute),
		leaderboard:  newTTLCache[string, []LeaderboardEntry](time.Minute),
		agentNames:   newTTLCache[string, string](0),
		choiceNonce:  newTTLCache[string, uint64](time.Minute),
		registration: newTTLCache[string, bool](time.Minute),
		matches:      newTTLCache[uint64, MatchView](0),
	}
	cs.agentStats.set("0xa", AgentStats{Wins: big.NewInt(1)})
	cs.leaderboard.set("top", []LeaderboardEntry{{Agent: "0xa"}})
	cs.agentNames.set("0xa", "agent-a")

	cs.invalidateOnSettlement()

	if _, ok := cs.agentStats.get("0xa"); ok {
		t.Error("expected agentStats to be cleared on settlement")
	}
	if _, ok := cs.leaderboard.get("top"); ok {
		t.Error("expected leaderboard to be cleared on settlement")
	}
	if _, ok := cs.agentNames.get("0xa"); !ok {
		t.Error("expected agentNames to survive settlement invalidation")
	}
}
