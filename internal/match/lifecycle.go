package match

import (
	"context"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/signalsgame/orchestrator/internal/protocol"
	"github.com/signalsgame/orchestrator/internal/signing"
)

// HandleMessage relays a negotiation-phase chat line between
// participants. Returns an error, and records nothing, outside
// NEGOTIATION, from a non-participant, or once the sender's message
// rate limit is spent.
func (e *Engine) HandleMessage(matchID uint64, from, message string) error {
	en, ok := e.getEntry(matchID)
	if !ok {
		return errNotFound
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	m := en.match

	if m.State != StateNegotiation {
		return fmt.Errorf("match %d is not accepting messages", matchID)
	}
	if !m.isParticipant(from) {
		return fmt.Errorf("not a participant in match %d", matchID)
	}

	self, _, _ := m.side(from)
	now := time.Now()
	if !self.allowMessage(e.cfg.NegotiationMessageBurst, e.cfg.NegotiationMessageWindowSecs, now) {
		return fmt.Errorf("message rate limit exceeded for match %d", matchID)
	}
	m.Messages = append(m.Messages, Message{From: self.Address, FromName: self.Name, Message: message, Timestamp: now.UnixMilli()})

	payload := negotiationMessagePayload{MatchID: matchID, From: self.Address, FromName: self.Name, Message: message, Timestamp: now.UnixMilli()}
	e.hub.SendToAgent(otherOf(m, self.Address), protocol.EventNegotiationMessage, payload)
	e.hub.BroadcastPublic(protocol.EventNegotiationMessage, payload)
	return nil
}

func otherOf(m *Match, address string) string {
	if equalAddr(m.A.Address, address) {
		return m.B.Address
	}
	return m.A.Address
}

// transitionToAwaitingChoices is the negotiation timer's callback.
func (e *Engine) transitionToAwaitingChoices(matchID uint64) {
	en, ok := e.getEntry(matchID)
	if !ok {
		return
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	m := en.match
	if m.State != StateNegotiation {
		return
	}
	m.State = StateAwaitingChoices

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	nonceA, errA := e.ledger.ChoiceNonce(ctx, m.A.Address)
	if errA != nil {
		log.Printf("[MATCH] nonce read failed for %s in match %d, defaulting to 0: %v", m.A.Address, matchID, errA)
	}
	nonceB, errB := e.ledger.ChoiceNonce(ctx, m.B.Address)
	if errB != nil {
		log.Printf("[MATCH] nonce read failed for %s in match %d, defaulting to 0: %v", m.B.Address, matchID, errB)
	}
	m.A.Nonce = nonceA
	m.B.Nonce = nonceB

	m.PhaseDeadline = time.Now().Add(m.ChoiceWindow)
	deadlineMillis := m.PhaseDeadline.UnixMilli()

	e.sendSignChoice(m, m.A)
	e.sendSignChoice(m, m.B)

	e.hub.BroadcastPublic(protocol.EventChoicePhaseStarted, choicePhaseStartedPayload{
		MatchID: matchID, AgentA: m.A.Address, AgentB: m.B.Address,
		AgentAName: m.A.Name, AgentBName: m.B.Name, Deadline: deadlineMillis,
	})

	e.armTimer(en, m.ChoiceWindow, func() { e.handleChoiceTimeout(matchID) })
}

func (e *Engine) sendSignChoice(m *Match, side sideState) {
	payload := signChoicePayload{
		MatchID:   m.MatchID,
		Nonce:     side.Nonce,
		Deadline:  m.PhaseDeadline.UnixMilli(),
		TypedData: signing.BuildChoicePayload(e.domain, m.MatchID, side.Nonce),
	}
	e.hub.SendToAgent(side.Address, protocol.EventSignChoice, payload)
}

// SubmitChoice validates and locks in one participant's choice. On the
// second submission of a pair it transitions the match to SETTLING.
func (e *Engine) SubmitChoice(matchID uint64, from string, choice protocol.Choice, signature []byte) error {
	en, ok := e.getEntry(matchID)
	if !ok {
		return errNotFound
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	m := en.match

	if m.State != StateAwaitingChoices {
		return fmt.Errorf("match %d is not awaiting choices", matchID)
	}
	if choice != protocol.ChoiceSplit && choice != protocol.ChoiceSteal {
		return fmt.Errorf("choice must be SPLIT or STEAL")
	}
	self, _, ok := m.side(from)
	if !ok {
		return fmt.Errorf("not a participant in match %d", matchID)
	}
	if self.Submitted {
		return fmt.Errorf("choice already submitted for match %d", matchID)
	}

	valid, err := signing.VerifyChoice(e.domain, matchID, uint8(choice), self.Nonce, signature, common.HexToAddress(self.Address))
	if err != nil || !valid {
		return fmt.Errorf("invalid signature")
	}

	self.Submitted = true
	self.Choice = choice
	self.Signature = signature
	self.CommitHash = signing.GenerateCommitHash(signature, m.MatchSalt)

	e.hub.Broadcast(protocol.EventChoiceLocked, choiceLockedPayload{
		MatchID: matchID, Agent: self.Address, AgentName: self.Name,
		CommitHash: "0x" + hex.EncodeToString(self.CommitHash[:]),
	})
	e.hub.SendToAgent(self.Address, protocol.EventChoiceAccepted, choiceAcceptedPayload{MatchID: matchID, Choice: choice.String()})

	if m.A.Submitted && m.B.Submitted {
		e.transitionToSettlingLocked(en)
	}
	return nil
}

// transitionToSettlingLocked moves a fully-locked match to SETTLING and
// enqueues its settlement. Callers must hold en.mu.
func (e *Engine) transitionToSettlingLocked(en *entry) {
	m := en.match
	m.State = StateSettling
	e.stopTimer(en)

	result, _ := protocol.Settle(m.A.Choice, m.B.Choice)

	e.hub.Broadcast(protocol.EventChoicesRevealed, choicesRevealedPayload{
		MatchID:    m.MatchID,
		AgentA:     m.A.Address,
		AgentB:     m.B.Address,
		ChoiceA:    m.A.Choice.String(),
		ChoiceB:    m.B.Choice.String(),
		SigA:       "0x" + hex.EncodeToString(m.A.Signature),
		SigB:       "0x" + hex.EncodeToString(m.B.Signature),
		NonceA:     m.A.Nonce,
		NonceB:     m.B.Nonce,
		Result:     int(result),
		ResultName: result.String(),
		MatchSalt:  "0x" + hex.EncodeToString(m.MatchSalt[:]),
	})

	e.ledger.EnqueueSettlement(m.toSettlement())
}

// handleChoiceTimeout is the choice timer's callback.
func (e *Engine) handleChoiceTimeout(matchID uint64) {
	en, ok := e.getEntry(matchID)
	if !ok {
		return
	}
	en.mu.Lock()
	m := en.match
	if m.State != StateAwaitingChoices {
		en.mu.Unlock()
		return
	}
	m.State = StateSettling
	aSubmitted, bSubmitted := m.A.Submitted, m.B.Submitted
	var partial *sideState
	var aTimedOut bool
	switch {
	case aSubmitted && !bSubmitted:
		partial, aTimedOut = &m.A, false
	case bSubmitted && !aSubmitted:
		partial, aTimedOut = &m.B, true
	}
	en.mu.Unlock()

	e.hub.BroadcastPublic(protocol.EventChoiceTimeout, choiceTimeoutPayload{
		MatchID: matchID, AgentA: m.A.Address, AgentB: m.B.Address,
		AgentASubmitted: aSubmitted, AgentBSubmitted: bSubmitted,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if partial != nil {
		if _, err := e.ledger.SettlePartialTimeout(ctx, matchID, partial.Choice, partial.Nonce, partial.Signature, aTimedOut); err != nil {
			log.Printf("[MATCH] settlePartialTimeout failed for match %d: %v", matchID, err)
		}
		return
	}
	if _, err := e.ledger.SettleTimeout(ctx, matchID); err != nil {
		log.Printf("[MATCH] settleTimeout failed for match %d: %v", matchID, err)
	}
}

// onSettled is the callback C1 fires once per settled matchId inside a
// successful settlement batch. It finalizes the match to COMPLETE,
// notifies both sides and spectators, fires the completion observer,
// and schedules the 5-minute cleanup window.
func (e *Engine) onSettled(matchID uint64, txHash common.Hash) {
	en, ok := e.getEntry(matchID)
	if !ok {
		return
	}
	en.mu.Lock()
	m := en.match
	if m.State == StateComplete {
		en.mu.Unlock()
		return
	}
	m.State = StateComplete
	m.CompletedAt = time.Now()
	e.stopTimer(en)

	var resultName, choiceAName, choiceBName *string
	var timedOut bool
	if m.A.Submitted && m.B.Submitted {
		result, _ := protocol.Settle(m.A.Choice, m.B.Choice)
		rn, ca, cb := result.String(), m.A.Choice.String(), m.B.Choice.String()
		resultName, choiceAName, choiceBName = &rn, &ca, &cb
	} else {
		timedOut = true
	}
	agentA, agentB := m.A.Address, m.B.Address
	en.mu.Unlock()

	e.hub.Broadcast(protocol.EventMatchConfirmed, matchConfirmedPayload{
		MatchID: matchID, TxHash: strings.ToLower(txHash.Hex()),
		AgentA: agentA, AgentB: agentB,
		Result: resultName, ChoiceA: choiceAName, ChoiceB: choiceBName, TimedOut: timedOut,
	})

	e.fireComplete(matchID, agentA, agentB)
	e.cleanupAfter(matchID, agentA, agentB, 5*time.Minute)
}
