// Package tournamentqueue implements C8: the tournament lobby queue
// that accumulates agents until a quorum is reached, invites them to
// sign a gasless join, and hands a confirmed roster to C7. Structurally
// it is the same debounced-FIFO shape as package quickqueue (itself
// grounded on the teacher's matchmakingQueue/StartMatchmakerWorker),
// with an added invite/response phase the quick-match queue doesn't
// need since tournament entry requires an on-chain stake permit.
package tournamentqueue

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/config"
	"github.com/signalsgame/orchestrator/internal/ledger"
	"github.com/signalsgame/orchestrator/internal/protocol"
	"github.com/signalsgame/orchestrator/internal/signing"
	"github.com/signalsgame/orchestrator/internal/tournament"
)

// InMatchChecker reports whether an address is in a live match.
type InMatchChecker interface {
	MatchIDForAddress(address string) (uint64, bool)
}

// QuickQueueChecker reports whether an address is in the quick-match
// queue, so C8 can enforce the "not already queued elsewhere" rule.
type QuickQueueChecker interface {
	IsQueued(address string) bool
}

// JoinSignedMessage is the payload of an inbound TOURNAMENT_JOIN_SIGNED
// frame: the agent's signature over the join payload plus the stake
// permit components the ledger's joinTournamentFor expects.
type JoinSignedMessage struct {
	TournamentID   uint64   `json:"tournamentId"`
	Signature      string   `json:"signature"`
	PermitDeadline uint64   `json:"permitDeadline"`
	V              uint8    `json:"v"`
	R              [32]byte `json:"r"`
	S              [32]byte `json:"s"`
}

type invitee struct {
	name   string
	nonce  uint64
	joined bool
}

type pendingTournament struct {
	tournamentID uint64
	invited      map[string]*invitee
	joinedCount  int
	timer        *time.Timer
}

// Queue is C8's actor.
type Queue struct {
	cfg         *config.Config
	hub         *broadcast.Hub
	ledger      *ledger.Gateway
	domain      signing.Domain
	tournaments *tournament.Controller
	quickQueue  QuickQueueChecker
	inMatch     InMatchChecker

	mu      sync.Mutex
	waiting []string
	trigger *time.Timer
	pending *pendingTournament
}

// New wires the tournament queue to its collaborators.
func New(cfg *config.Config, hub *broadcast.Hub, gw *ledger.Gateway, domain signing.Domain, tc *tournament.Controller, qq QuickQueueChecker, inMatch InMatchChecker) *Queue {
	return &Queue{cfg: cfg, hub: hub, ledger: gw, domain: domain, tournaments: tc, quickQueue: qq, inMatch: inMatch}
}

// Join adds an address to the lobby queue, subject to the exclusivity
// rules in spec §4.8.
func (q *Queue) Join(address string) error {
	addr := strings.ToLower(address)

	if q.quickQueue.IsQueued(addr) {
		return fmt.Errorf("already in quick-match queue")
	}
	if _, inMatch := q.inMatch.MatchIDForAddress(addr); inMatch {
		return fmt.Errorf("already in a match")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.pending != nil {
		return fmt.Errorf("a tournament is already being assembled")
	}
	for _, a := range q.waiting {
		if a == addr {
			return fmt.Errorf("already in tournament queue")
		}
	}

	q.waiting = append(q.waiting, addr)
	position := len(q.waiting)
	size := len(q.waiting)

	q.hub.SendToAgent(addr, protocol.EventTournamentQueueJoined, tournamentQueueJoinedPayload{
		Position: position, QueueSize: size, MinPlayers: q.cfg.TournamentMinPlayers,
	})
	q.broadcastUpdateLocked()

	if size >= q.cfg.TournamentMinPlayers && q.trigger == nil {
		delay := time.Duration(q.cfg.TournamentTriggerDelaySeconds) * time.Second
		q.trigger = time.AfterFunc(delay, q.runTrigger)
	}
	return nil
}

// Leave removes an address from the lobby queue, if present.
func (q *Queue) Leave(address string) {
	addr := strings.ToLower(address)
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, a := range q.waiting {
		if a == addr {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			break
		}
	}
	q.broadcastUpdateLocked()
}

func (q *Queue) broadcastUpdateLocked() {
	agents := make([]string, len(q.waiting))
	copy(agents, q.waiting)
	q.hub.BroadcastPublic(protocol.EventTournamentQueueUpdate, tournamentQueueUpdatePayload{
		Size: len(agents), MinPlayers: q.cfg.TournamentMinPlayers, Agents: agents,
	})
}

// runTrigger is the 3s TRIGGER timer's callback: take up to MAX_PLAYERS
// from the queue and invite them to sign a join.
func (q *Queue) runTrigger() {
	q.mu.Lock()
	q.trigger = nil
	if q.pending != nil || len(q.waiting) < q.cfg.TournamentMinPlayers {
		q.mu.Unlock()
		return
	}
	take := q.cfg.TournamentMaxPlayers
	if take > len(q.waiting) {
		take = len(q.waiting)
	}
	invited := append([]string(nil), q.waiting[:take]...)
	q.waiting = q.waiting[take:]
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entryStake := big.NewInt(q.cfg.TournamentEntryStake)
	tournamentID, err := q.tournaments.Create(ctx, entryStake, q.cfg.TournamentMinPlayers, q.cfg.TournamentMaxPlayers, q.cfg.TournamentTotalRounds, q.cfg.TournamentChoiceWindowSeconds)
	if err != nil {
		log.Printf("[TOURNAMENTQUEUE] createTournament failed: %v", err)
		q.mu.Lock()
		q.waiting = append(invited, q.waiting...)
		q.mu.Unlock()
		return
	}

	pending := &pendingTournament{tournamentID: tournamentID, invited: make(map[string]*invitee, len(invited))}
	for _, addr := range invited {
		nonce, err := q.ledger.ChoiceNonce(ctx, addr)
		if err != nil {
			log.Printf("[TOURNAMENTQUEUE] nonce read failed for %s: %v", addr, err)
		}
		name, _ := q.hub.LookupAgentName(addr)
		pending.invited[addr] = &invitee{name: name, nonce: nonce}

		permitDeadline := time.Now().Add(time.Duration(q.cfg.TournamentRegistrationSeconds) * time.Second).Unix()
		q.hub.SendToAgent(addr, protocol.EventTournamentJoinRequest, tournamentJoinRequestPayload{
			TournamentID:   tournamentID,
			EntryStake:     entryStake.String(),
			Nonce:          nonce,
			SigningPayload: signing.BuildTournamentJoinPayload(q.domain, tournamentID, nonce),
			PermitData: permitDataPayload{
				Token:    q.cfg.TokenContractAddress,
				Spender:  q.cfg.GameContractAddress,
				Value:    entryStake.String(),
				Deadline: uint64(permitDeadline),
			},
			RegistrationDuration: q.cfg.TournamentRegistrationSeconds,
			MinPlayers:           q.cfg.TournamentMinPlayers,
			MaxPlayers:           q.cfg.TournamentMaxPlayers,
			TotalRounds:          q.cfg.TournamentTotalRounds,
		})
	}

	deadline := time.Duration(q.cfg.TournamentJoinResponseSeconds) * time.Second
	q.mu.Lock()
	pending.timer = time.AfterFunc(deadline, func() { q.onJoinResponseTimeout(tournamentID) })
	q.pending = pending
	q.mu.Unlock()
}

// OnJoinSigned handles an inbound TOURNAMENT_JOIN_SIGNED frame.
func (q *Queue) OnJoinSigned(address string, msg JoinSignedMessage) {
	addr := strings.ToLower(address)

	q.mu.Lock()
	pending := q.pending
	if pending == nil || pending.tournamentID != msg.TournamentID {
		q.mu.Unlock()
		return
	}
	inv, ok := pending.invited[addr]
	if !ok || inv.joined {
		q.mu.Unlock()
		q.hub.SendToAgent(addr, protocol.EventTournamentJoinFailed, tournamentJoinFailedPayload{TournamentID: msg.TournamentID, Reason: "not invited"})
		return
	}
	q.mu.Unlock()

	sig, err := hex.DecodeString(strings.TrimPrefix(msg.Signature, "0x"))
	if err != nil {
		q.hub.SendToAgent(addr, protocol.EventTournamentJoinFailed, tournamentJoinFailedPayload{TournamentID: msg.TournamentID, Reason: "malformed signature"})
		return
	}

	valid, err := signing.VerifyTournamentJoin(q.domain, msg.TournamentID, inv.nonce, sig, common.HexToAddress(addr))
	if err != nil || !valid {
		q.hub.SendToAgent(addr, protocol.EventTournamentJoinFailed, tournamentJoinFailedPayload{TournamentID: msg.TournamentID, Reason: "invalid signature"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	txHash, err := q.ledger.JoinTournamentFor(ctx, msg.TournamentID, addr, inv.nonce, sig, msg.PermitDeadline, msg.V, msg.R, msg.S)
	if err != nil {
		q.hub.SendToAgent(addr, protocol.EventTournamentJoinFailed, tournamentJoinFailedPayload{TournamentID: msg.TournamentID, Reason: err.Error()})
		return
	}

	q.tournaments.RegisterPlayer(msg.TournamentID, addr, inv.name)

	q.mu.Lock()
	inv.joined = true
	pending.joinedCount++
	joined, minPlayers := pending.joinedCount, q.cfg.TournamentMinPlayers
	earlyStart := joined >= minPlayers
	if earlyStart && pending.timer != nil {
		pending.timer.Stop()
	}
	q.mu.Unlock()

	q.hub.SendToAgent(addr, protocol.EventTournamentJoined, tournamentJoinedPayload{TournamentID: msg.TournamentID, TxHash: strings.ToLower(txHash.Hex())})

	if earlyStart {
		q.startPending(msg.TournamentID)
	}
}

// onJoinResponseTimeout is the JOIN_RESPONSE_TIMEOUT timer's callback.
func (q *Queue) onJoinResponseTimeout(tournamentID uint64) {
	q.mu.Lock()
	pending := q.pending
	if pending == nil || pending.tournamentID != tournamentID {
		q.mu.Unlock()
		return
	}
	joined, minPlayers := pending.joinedCount, q.cfg.TournamentMinPlayers
	q.mu.Unlock()

	if joined >= minPlayers {
		q.startPending(tournamentID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := q.ledger.CancelTournament(ctx, tournamentID); err != nil {
		log.Printf("[TOURNAMENTQUEUE] cancelTournament(%d) failed: %v", tournamentID, err)
	}

	q.mu.Lock()
	var requeue []string
	for addr, inv := range pending.invited {
		if inv.joined {
			requeue = append(requeue, addr)
		}
	}
	q.waiting = append(requeue, q.waiting...)
	q.pending = nil
	if len(q.waiting) >= q.cfg.TournamentMinPlayers && q.trigger == nil {
		delay := time.Duration(q.cfg.TournamentTriggerDelaySeconds) * time.Second
		q.trigger = time.AfterFunc(delay, q.runTrigger)
	}
	q.broadcastUpdateLocked()
	q.mu.Unlock()
}

// startPending finalizes a quorum-reached pending tournament by
// starting it on C7 and clearing the pending state.
func (q *Queue) startPending(tournamentID uint64) {
	q.mu.Lock()
	if q.pending == nil || q.pending.tournamentID != tournamentID {
		q.mu.Unlock()
		return
	}
	q.pending = nil
	q.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := q.tournaments.Start(ctx, tournamentID); err != nil {
		log.Printf("[TOURNAMENTQUEUE] startTournament(%d) failed: %v", tournamentID, err)
	}
}

type tournamentQueueJoinedPayload struct {
	Position   int `json:"position"`
	QueueSize  int `json:"queueSize"`
	MinPlayers int `json:"minPlayers"`
}

type tournamentQueueUpdatePayload struct {
	Size       int      `json:"size"`
	MinPlayers int      `json:"minPlayers"`
	Agents     []string `json:"agents"`
}

type permitDataPayload struct {
	Token    string `json:"token"`
	Spender  string `json:"spender"`
	Value    string `json:"value"`
	Deadline uint64 `json:"deadline"`
}

type tournamentJoinRequestPayload struct {
	TournamentID         uint64            `json:"tournamentId"`
	EntryStake           string            `json:"entryStake"`
	Nonce                uint64            `json:"nonce"`
	SigningPayload       interface{}       `json:"signingPayload"`
	PermitData           permitDataPayload `json:"permitData"`
	RegistrationDuration int               `json:"registrationDuration"`
	MinPlayers           int               `json:"minPlayers"`
	MaxPlayers           int               `json:"maxPlayers"`
	TotalRounds          int               `json:"totalRounds"`
}

type tournamentJoinedPayload struct {
	TournamentID uint64 `json:"tournamentId"`
	TxHash       string `json:"txHash"`
}

type tournamentJoinFailedPayload struct {
	TournamentID uint64 `json:"tournamentId"`
	Reason       string `json:"reason"`
}
