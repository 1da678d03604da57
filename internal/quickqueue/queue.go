// Package quickqueue implements C6: the single-process FIFO quick-match
// queue. Grounded on the teacher's matchmakingQueue map[int][]QueueEntry
// plus its debounced StartMatchmakerWorker (internal/game/manager.go,
// internal/game/matchmaker_worker.go) — generalized from the teacher's
// DB-polling, stake-bucketed queue (`FOR UPDATE SKIP LOCKED`) to a single
// in-memory FIFO with an idempotent debounce timer, since this domain has
// no relational datastore and every agent plays at the same stake.
package quickqueue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/config"
	"github.com/signalsgame/orchestrator/internal/ledger"
	"github.com/signalsgame/orchestrator/internal/match"
	"github.com/signalsgame/orchestrator/internal/protocol"
)

// InMatchChecker reports whether an address is currently in a live match,
// so the queue can reject an agent trying to queue while playing.
type InMatchChecker interface {
	MatchIDForAddress(address string) (uint64, bool)
}

type entry struct {
	address      string
	lastOpponent string
}

// Queue is C6's actor: one FIFO, one debounce timer, serialized by mu.
type Queue struct {
	cfg    *config.Config
	hub    *broadcast.Hub
	ledger *ledger.Gateway
	engine *match.Engine
	inMatch InMatchChecker

	mu           sync.Mutex
	waiting      []entry
	timer        *time.Timer
	lastOpponent map[string]string // address -> last paired opponent, survives across re-queues
}

// New wires the quick-match queue to its collaborators.
func New(cfg *config.Config, hub *broadcast.Hub, gw *ledger.Gateway, engine *match.Engine, inMatch InMatchChecker) *Queue {
	return &Queue{cfg: cfg, hub: hub, ledger: gw, engine: engine, inMatch: inMatch, lastOpponent: make(map[string]string)}
}

// Join adds an address to the queue, rejecting if already queued or
// already in a live match. Arms the debounced pairing timer.
func (q *Queue) Join(address string) error {
	addr := strings.ToLower(address)

	q.mu.Lock()
	if q.isQueuedLocked(addr) {
		q.mu.Unlock()
		return fmt.Errorf("already queued")
	}
	q.mu.Unlock()

	if _, inMatch := q.inMatch.MatchIDForAddress(addr); inMatch {
		return fmt.Errorf("already in a match")
	}

	q.mu.Lock()
	q.waiting = append(q.waiting, entry{address: addr, lastOpponent: q.lastOpponent[addr]})
	position := len(q.waiting)
	size := len(q.waiting)
	q.armLocked()
	q.mu.Unlock()

	q.hub.SendToAgent(addr, protocol.EventQueueJoined, queueJoinedPayload{Position: position, QueueSize: size})
	q.hub.BroadcastPublic(protocol.EventQueueUpdate, queueUpdatePayload{QueueSize: size})
	return nil
}

// Leave removes an address from the queue, if present.
func (q *Queue) Leave(address string) {
	addr := strings.ToLower(address)
	q.mu.Lock()
	for i, e := range q.waiting {
		if e.address == addr {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	size := len(q.waiting)
	q.mu.Unlock()
	q.hub.BroadcastPublic(protocol.EventQueueUpdate, queueUpdatePayload{QueueSize: size})
}

func (q *Queue) isQueuedLocked(addr string) bool {
	for _, e := range q.waiting {
		if e.address == addr {
			return true
		}
	}
	return false
}

// IsQueued reports whether an address currently sits in the queue, used
// by C8 to reject an agent trying to join the tournament queue too.
func (q *Queue) IsQueued(address string) bool {
	addr := strings.ToLower(address)
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isQueuedLocked(addr)
}

// armLocked arms the debounce timer idempotently. Callers must hold mu.
func (q *Queue) armLocked() {
	if q.timer != nil {
		return
	}
	delay := time.Duration(q.cfg.QuickPairDebounceMillis) * time.Millisecond
	q.timer = time.AfterFunc(delay, q.runPairingPass)
}

// runPairingPass is the debounce timer's callback: pair as many waiting
// agents as possible, submit them to the ledger in one batch, and spin
// up Match State Machines for whatever matchIds come back.
func (q *Queue) runPairingPass() {
	q.mu.Lock()
	q.timer = nil
	pairs, remaining := q.pairLocked()
	q.mu.Unlock()

	if len(remaining) >= 2 {
		q.mu.Lock()
		q.armLocked()
		q.mu.Unlock()
	}

	if len(pairs) == 0 {
		return
	}

	ledgerPairs := make([]ledger.MatchPair, len(pairs))
	for i, p := range pairs {
		ledgerPairs[i] = ledger.MatchPair{AgentA: p[0], AgentB: p[1]}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	matchIDs, err := q.ledger.CreateQuickMatchBatch(ctx, ledgerPairs)
	if err != nil {
		log.Printf("[QUICKQUEUE] createQuickMatchBatch failed for %d pairs: %v", len(pairs), err)
		return
	}
	if len(matchIDs) != len(pairs) {
		log.Printf("[QUICKQUEUE] matchId count %d does not match pair count %d, creating what we can", len(matchIDs), len(pairs))
	}

	for i, id := range matchIDs {
		if i >= len(pairs) {
			break
		}
		q.engine.CreateMatch(ctx, id, 0, 0, pairs[i][0], pairs[i][1], 0)
	}
}

// pairLocked runs the greedy FIFO-biased pairing pass: each unpaired
// agent, in arrival order, takes the first later unpaired agent whose
// last opponent is not it, a rule dropped when two or fewer agents are
// queued. Callers must hold mu; the returned pairs have
// already been removed from q.waiting and their lastOpponent updated.
func (q *Queue) pairLocked() ([][2]string, []entry) {
	relaxRematch := len(q.waiting) <= 2
	paired := make(map[int]bool, len(q.waiting))
	var pairs [][2]string

	for i := range q.waiting {
		if paired[i] {
			continue
		}
		a := q.waiting[i]
		for j := i + 1; j < len(q.waiting); j++ {
			if paired[j] {
				continue
			}
			b := q.waiting[j]
			if !relaxRematch && b.lastOpponent == a.address {
				continue
			}
			paired[i] = true
			paired[j] = true
			pairs = append(pairs, [2]string{a.address, b.address})
			break
		}
	}

	var remaining []entry
	for i, e := range q.waiting {
		if !paired[i] {
			remaining = append(remaining, e)
		}
	}
	q.waiting = remaining

	for _, p := range pairs {
		q.lastOpponent[p[0]] = p[1]
		q.lastOpponent[p[1]] = p[0]
	}
	return pairs, remaining
}

type queueJoinedPayload struct {
	Position  int `json:"position"`
	QueueSize int `json:"queueSize"`
}

type queueUpdatePayload struct {
	QueueSize int `json:"queueSize"`
}
