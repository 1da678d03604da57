package ledger

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalsgame/orchestrator/internal/config"
)

// settlementDeadlineKey is the sorted-set Redis key holding one member
// per matchId currently buffered, scored by its flush deadline (unix
// millis). A restart can diff this set against the ledger's settled
// view to tell a crashed flush from an idle buffer.
const settlementDeadlineKey = "orchestrator:settlement:deadlines"

// settlementBuffer implements C1's settlement batching contract: a
// single-shot debounce timer armed on the first enqueue, a flush that
// chunks the buffer to batchCap, and whole-chunk re-queue with a
// shorter retry delay on failure. Modeled on the mev-oracle Settler's
// restart-on-error executor loop, adapted from a subscribed channel to
// a directly-armed timer since settlements arrive from match timers
// rather than a pub/sub feed.
type settlementBuffer struct {
	gw  *Gateway
	cfg *config.Config

	mu      sync.Mutex
	pending []Settlement
	timer   *time.Timer

	flushDelay time.Duration
	retryDelay time.Duration

	redisClient *redis.Client
}

func newSettlementBuffer(gw *Gateway, cfg *config.Config, redisClient *redis.Client) *settlementBuffer {
	return &settlementBuffer{
		gw:          gw,
		cfg:         cfg,
		flushDelay:  time.Duration(cfg.SettlementFlushMillis) * time.Millisecond,
		retryDelay:  time.Duration(cfg.SettlementFlushMillis) * time.Millisecond / 2,
		redisClient: redisClient,
	}
}

// persistDeadlineLocked best-effort records the chunk's flush deadline
// in Redis so a crashed process can be told apart from an idle buffer
// on restart. Never blocks the in-memory flush path on Redis errors.
func (b *settlementBuffer) persistDeadlineLocked(deadline time.Time) {
	if b.redisClient == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	members := make([]redis.Z, 0, len(b.pending))
	for _, s := range b.pending {
		members = append(members, redis.Z{Score: float64(deadline.UnixMilli()), Member: s.MatchID})
	}
	if len(members) == 0 {
		return
	}
	if err := b.redisClient.ZAdd(ctx, settlementDeadlineKey, members...).Err(); err != nil {
		log.Printf("[LEDGER] redis zadd for settlement deadline failed (continuing in-memory only): %v", err)
	}
}

// clearDeadlines best-effort removes a flushed chunk's entries from the
// deadline set once it has been submitted successfully. A failed chunk
// keeps its entries; requeue re-scores them with the retry deadline.
func (b *settlementBuffer) clearDeadlines(chunk []Settlement) {
	if b.redisClient == nil || len(chunk) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	members := make([]interface{}, len(chunk))
	for i, s := range chunk {
		members[i] = s.MatchID
	}
	if err := b.redisClient.ZRem(ctx, settlementDeadlineKey, members...).Err(); err != nil {
		log.Printf("[LEDGER] redis zrem for settlement deadline failed (continuing): %v", err)
	}
}

// Enqueue adds a settlement to the buffer, arming the flush timer if it
// is not already armed (idempotent per the spec's "arming a timer" language).
func (b *settlementBuffer) Enqueue(s Settlement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, s)
	armed := b.armLocked(b.flushDelay)
	if armed {
		b.persistDeadlineLocked(time.Now().Add(b.flushDelay))
	}
}

// armLocked arms the debounce timer if it is not already armed,
// reporting whether this call did the arming.
func (b *settlementBuffer) armLocked(delay time.Duration) bool {
	if b.timer != nil {
		return false
	}
	b.timer = time.AfterFunc(delay, b.flush)
	return true
}

func (b *settlementBuffer) flush() {
	b.mu.Lock()
	batch := b.pending
	b.pending = nil
	b.timer = nil
	b.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	for _, chunk := range chunkSettlements(batch, b.cfg.BatchCap) {
		b.submitChunk(chunk)
	}
}

func (b *settlementBuffer) submitChunk(chunk []Settlement) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids := make([]uint64, len(chunk))
	for i, s := range chunk {
		ids[i] = s.MatchID
	}

	// Best-effort: a pool with no bets is already auto-closed.
	if err := b.gw.CloseBettingBatch(ctx, ids); err != nil {
		log.Printf("[LEDGER] closeBettingBatch failed before settlement (continuing): %v", err)
	}

	if _, _, err := b.gw.SettleMultiple(ctx, chunk); err != nil {
		log.Printf("[LEDGER] settlement chunk of %d failed, re-queuing whole chunk: %v", len(chunk), err)
		b.requeue(chunk)
		return
	}
	b.clearDeadlines(chunk)
	log.Printf("[LEDGER] settled %d match(es)", len(chunk))
}

func (b *settlementBuffer) requeue(chunk []Settlement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(chunk, b.pending...)
	b.armLocked(b.retryDelay)
	b.persistDeadlineLocked(time.Now().Add(b.retryDelay))
}

func chunkSettlements(settlements []Settlement, size int) [][]Settlement {
	if size <= 0 {
		return [][]Settlement{settlements}
	}
	var chunks [][]Settlement
	for i := 0; i < len(settlements); i += size {
		end := i + size
		if end > len(settlements) {
			end = len(settlements)
		}
		chunks = append(chunks, settlements[i:end])
	}
	return chunks
}

// EnqueueSettlement is the public entry point match state machines use
// to hand off a revealed match for batched on-chain settlement.
func (g *Gateway) EnqueueSettlement(s Settlement) {
	g.settlement.Enqueue(s)
}
