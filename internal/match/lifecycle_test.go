package match

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/config"
	"github.com/signalsgame/orchestrator/internal/protocol"
	"github.com/signalsgame/orchestrator/internal/signing"
)

var lifecycleTestDomain = signing.Domain{ChainID: 1337, VerifyingContract: common.HexToAddress("0x01")}

func newLifecycleTestEngine() (*Engine, *ecdsaFixture, *ecdsaFixture) {
	e := &Engine{
		cfg:       &config.Config{NegotiationMessageBurst: 5, NegotiationMessageWindowSecs: 1},
		hub:       broadcast.NewHub(),
		domain:    lifecycleTestDomain,
		matches:   make(map[uint64]*entry),
		byAddress: make(map[string]uint64),
	}
	a := newFixture()
	b := newFixture()
	return e, a, b
}

type ecdsaFixture struct {
	address string
	sign    func(matchID uint64, choice uint8, nonce uint64) []byte
}

func newFixture() *ecdsaFixture {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey).Hex()
	return &ecdsaFixture{
		address: addr,
		sign: func(matchID uint64, choice uint8, nonce uint64) []byte {
			td := signing.BuildChoicePayload(lifecycleTestDomain, matchID, nonce)
			td.Message["choice"] = itoa(uint64(choice))
			hash, _, err := apitypes.TypedDataAndHash(td)
			if err != nil {
				panic(err)
			}
			sig, err := crypto.Sign(hash, key)
			if err != nil {
				panic(err)
			}
			return sig
		},
	}
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func newTestMatch(matchID uint64, a, b string) *Match {
	return &Match{
		MatchID:      matchID,
		A:            sideState{Address: a},
		B:            sideState{Address: b},
		State:        StateNegotiation,
		ChoiceWindow: time.Second,
	}
}

func TestHandleMessageRejectsOutsideNegotiation(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	m := newTestMatch(1, a.address, b.address)
	m.State = StateAwaitingChoices
	e.matches[1] = &entry{match: m}

	if err := e.HandleMessage(1, a.address, "hi"); err == nil {
		t.Error("expected HandleMessage to reject outside negotiation phase")
	}
}

func TestHandleMessageRejectsNonParticipant(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	m := newTestMatch(1, a.address, b.address)
	e.matches[1] = &entry{match: m}

	if err := e.HandleMessage(1, "0xdeadbeef", "hi"); err == nil {
		t.Error("expected HandleMessage to reject a non-participant")
	}
}

func TestHandleMessageAppendsMessage(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	m := newTestMatch(1, a.address, b.address)
	e.matches[1] = &entry{match: m}

	if err := e.HandleMessage(1, a.address, "let's split"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(m.Messages) != 1 || m.Messages[0].Message != "let's split" {
		t.Errorf("expected message to be recorded, got %+v", m.Messages)
	}
}

func TestHandleMessageRejectsOnceRateLimitExhausted(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	e.cfg.NegotiationMessageBurst = 2
	m := newTestMatch(1, a.address, b.address)
	e.matches[1] = &entry{match: m}

	if err := e.HandleMessage(1, a.address, "one"); err != nil {
		t.Fatalf("unexpected error on message 1: %v", err)
	}
	if err := e.HandleMessage(1, a.address, "two"); err != nil {
		t.Fatalf("unexpected error on message 2: %v", err)
	}
	if err := e.HandleMessage(1, a.address, "three"); err == nil {
		t.Error("expected the third message within the window to be rate-limited")
	}
	if len(m.Messages) != 2 {
		t.Errorf("expected only 2 messages to be recorded, got %d", len(m.Messages))
	}

	// The other side has its own independent bucket.
	if err := e.HandleMessage(1, b.address, "hi"); err != nil {
		t.Errorf("expected the opponent's independent bucket to allow a message: %v", err)
	}
}

func TestSubmitChoiceRejectsWrongState(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	m := newTestMatch(1, a.address, b.address) // still StateNegotiation
	e.matches[1] = &entry{match: m}

	sig := a.sign(1, uint8(protocol.ChoiceSplit), 0)
	if err := e.SubmitChoice(1, a.address, protocol.ChoiceSplit, sig); err == nil {
		t.Error("expected SubmitChoice to reject outside AwaitingChoices")
	}
}

func TestSubmitChoiceRejectsInvalidChoiceValue(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	m := newTestMatch(1, a.address, b.address)
	m.State = StateAwaitingChoices
	e.matches[1] = &entry{match: m}

	sig := a.sign(1, uint8(protocol.ChoiceNone), 0)
	if err := e.SubmitChoice(1, a.address, protocol.ChoiceNone, sig); err == nil {
		t.Error("expected SubmitChoice to reject ChoiceNone")
	}
}

func TestSubmitChoiceRejectsBadSignature(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	m := newTestMatch(1, a.address, b.address)
	m.State = StateAwaitingChoices
	e.matches[1] = &entry{match: m}

	badSig := make([]byte, 65)
	if err := e.SubmitChoice(1, a.address, protocol.ChoiceSplit, badSig); err == nil {
		t.Error("expected SubmitChoice to reject an invalid signature")
	}
}

func TestSubmitChoiceAcceptsValidSignatureAndLocksIn(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	m := newTestMatch(1, a.address, b.address)
	m.State = StateAwaitingChoices
	e.matches[1] = &entry{match: m}

	sig := a.sign(1, uint8(protocol.ChoiceSteal), 0)
	if err := e.SubmitChoice(1, a.address, protocol.ChoiceSteal, sig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !m.A.Submitted || m.A.Choice != protocol.ChoiceSteal {
		t.Errorf("expected side A locked in STEAL, got %+v", m.A)
	}
	if m.State == StateSettling {
		t.Error("expected match to stay AwaitingChoices until both sides submit")
	}
}

func TestSubmitChoiceRejectsDoubleSubmission(t *testing.T) {
	e, a, b := newLifecycleTestEngine()
	m := newTestMatch(1, a.address, b.address)
	m.State = StateAwaitingChoices
	e.matches[1] = &entry{match: m}

	sig := a.sign(1, uint8(protocol.ChoiceSplit), 0)
	if err := e.SubmitChoice(1, a.address, protocol.ChoiceSplit, sig); err != nil {
		t.Fatalf("unexpected error on first submit: %v", err)
	}
	if err := e.SubmitChoice(1, a.address, protocol.ChoiceSplit, sig); err == nil {
		t.Error("expected the second submission from the same side to be rejected")
	}
}
