package match

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/config"
	"github.com/signalsgame/orchestrator/internal/ledger"
	"github.com/signalsgame/orchestrator/internal/protocol"
	"github.com/signalsgame/orchestrator/internal/signing"
)

// CompleteFunc is invoked once a match finishes, successfully or by
// timeout, so the queue/tournament controller that created it can react
// (release the agents, update standings).
type CompleteFunc func(matchID uint64, agentA, agentB string)

// Engine owns every live match. Exactly one goroutine touches a given
// match's state at a time — enforced by locking the entry's own mutex
// for the duration of any handler, the same per-entity serialization
// the teacher's GameManager uses via its games map mutex plus each
// GameState carrying its own internal lock.
type Engine struct {
	cfg    *config.Config
	hub    *broadcast.Hub
	ledger *ledger.Gateway
	domain signing.Domain

	mu          sync.RWMutex
	matches     map[uint64]*entry
	byAddress   map[string]uint64

	completeMu sync.RWMutex
	onComplete []CompleteFunc
}

type entry struct {
	mu    sync.Mutex
	match *Match
}

// NewEngine wires the match engine to its collaborators.
func NewEngine(cfg *config.Config, hub *broadcast.Hub, gw *ledger.Gateway, domain signing.Domain) *Engine {
	e := &Engine{
		cfg:       cfg,
		hub:       hub,
		ledger:    gw,
		domain:    domain,
		matches:   make(map[uint64]*entry),
		byAddress: make(map[string]uint64),
	}
	gw.SetOnSettled(e.onSettled)
	return e
}

// OnComplete registers an observer fired once per finished match.
func (e *Engine) OnComplete(fn CompleteFunc) {
	e.completeMu.Lock()
	defer e.completeMu.Unlock()
	e.onComplete = append(e.onComplete, fn)
}

func (e *Engine) fireComplete(matchID uint64, agentA, agentB string) {
	e.completeMu.RLock()
	defer e.completeMu.RUnlock()
	for _, fn := range e.onComplete {
		fn(matchID, agentA, agentB)
	}
}

// MatchIDForAddress returns the live match an address is currently
// participating in, if any.
func (e *Engine) MatchIDForAddress(address string) (uint64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	id, ok := e.byAddress[strings.ToLower(address)]
	return id, ok
}

func (e *Engine) getEntry(matchID uint64) (*entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	en, ok := e.matches[matchID]
	return en, ok
}

// Snapshot returns a read-only copy of the match's public fields for
// HTTP/WS read endpoints; it's taken under the entry's lock so it never
// races a concurrent transition.
func (e *Engine) Snapshot(matchID uint64) (Match, bool) {
	en, ok := e.getEntry(matchID)
	if !ok {
		return Match{}, false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return *en.match, true
}

// CreateMatch constructs a new match in NEGOTIATION, resolves display
// names and stats, emits MATCH_STARTED, and arms the negotiation timer.
// choiceWindow overrides the default choice-phase duration for
// tournament matches; pass 0 to use the configured default.
func (e *Engine) CreateMatch(ctx context.Context, matchID, tournamentID, round uint64, agentA, agentB string, choiceWindow time.Duration) {
	if choiceWindow == 0 {
		choiceWindow = time.Duration(e.cfg.ChoiceSeconds) * time.Second
	}

	salt, err := signing.GenerateMatchSalt()
	if err != nil {
		log.Printf("[MATCH] failed to generate salt for match %d: %v", matchID, err)
	}

	m := &Match{
		MatchID:      matchID,
		TournamentID: tournamentID,
		Round:        round,
		A:            sideState{Address: strings.ToLower(agentA), Name: e.resolveName(agentA)},
		B:            sideState{Address: strings.ToLower(agentB), Name: e.resolveName(agentB)},
		State:        StateNegotiation,
		MatchSalt:    salt,
		ChoiceWindow: choiceWindow,
		CreatedAt:    time.Now(),
	}

	en := &entry{match: m}
	e.mu.Lock()
	e.matches[matchID] = en
	e.byAddress[m.A.Address] = matchID
	e.byAddress[m.B.Address] = matchID
	e.mu.Unlock()

	en.mu.Lock()
	defer en.mu.Unlock()

	statsA, errA := e.ledger.GetAgentStats(ctx, m.A.Address)
	statsB, errB := e.ledger.GetAgentStats(ctx, m.B.Address)

	negotiationSeconds := e.cfg.NegotiationSeconds
	e.emitMatchStarted(m, m.A, m.B, statsB, errB == nil, negotiationSeconds, choiceWindow)
	e.emitMatchStarted(m, m.B, m.A, statsA, errA == nil, negotiationSeconds, choiceWindow)
	e.hub.BroadcastPublic(protocol.EventMatchStarted, matchStartedPayload{
		MatchID:             matchID,
		AgentA:              m.A.Address,
		AgentB:              m.B.Address,
		AgentAName:          m.A.Name,
		AgentBName:          m.B.Name,
		TournamentID:        tournamentID,
		NegotiationDuration: negotiationSeconds,
		ChoiceDuration:      int(choiceWindow.Seconds()),
	})

	e.armTimer(en, time.Duration(negotiationSeconds)*time.Second, func() { e.transitionToAwaitingChoices(matchID) })
}

func (e *Engine) resolveName(address string) string {
	addr := strings.ToLower(address)
	if c, ok := e.hub.LookupAgentName(addr); ok && c != "" {
		return c
	}
	a := common.HexToAddress(address).Hex()
	if len(a) > 10 {
		return a[:6] + "…" + a[len(a)-4:]
	}
	return a
}

// armTimer cancels any existing timer on the entry and arms a new one,
// enforcing the "exactly one timer per match" invariant. Callers must
// already hold en.mu.
func (e *Engine) armTimer(en *entry, d time.Duration, fn func()) {
	if en.match.timer != nil {
		en.match.timer.Stop()
	}
	en.match.timer = time.AfterFunc(d, fn)
}

func (e *Engine) stopTimer(en *entry) {
	if en.match.timer != nil {
		en.match.timer.Stop()
		en.match.timer = nil
	}
}

// cleanupAfter drops a completed match's bookkeeping 5 minutes after
// completion so late read requests can still resolve it.
func (e *Engine) cleanupAfter(matchID uint64, agentA, agentB string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.matches, matchID)
		if e.byAddress[strings.ToLower(agentA)] == matchID {
			delete(e.byAddress, strings.ToLower(agentA))
		}
		if e.byAddress[strings.ToLower(agentB)] == matchID {
			delete(e.byAddress, strings.ToLower(agentB))
		}
	})
}

var errNotFound = fmt.Errorf("match not found")
