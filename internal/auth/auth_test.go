package auth

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestChallengeVerifyRoundTrip(t *testing.T) {
	store := NewChallengeStore(time.Minute)
	c, err := store.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)

	hash := accounts.TextHash([]byte(c.Challenge))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	result := store.VerifyChallenge(c.ChallengeID, addr.Hex(), sig)
	if !result.Valid {
		t.Fatal("expected challenge to verify as valid")
	}
	if result.Address == "" {
		t.Error("expected a recovered address")
	}
}

func TestChallengeCannotBeReplayed(t *testing.T) {
	store := NewChallengeStore(time.Minute)
	c, err := store.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey)
	hash := accounts.TextHash([]byte(c.Challenge))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	first := store.VerifyChallenge(c.ChallengeID, addr.Hex(), sig)
	if !first.Valid {
		t.Fatal("expected first verification to succeed")
	}

	second := store.VerifyChallenge(c.ChallengeID, addr.Hex(), sig)
	if second.Valid {
		t.Error("expected a consumed challenge to reject a replayed signature")
	}
}

func TestChallengeRejectsWrongSigner(t *testing.T) {
	store := NewChallengeStore(time.Minute)
	c, err := store.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	signerKey, _ := crypto.GenerateKey()
	claimantKey, _ := crypto.GenerateKey()
	claimant := crypto.PubkeyToAddress(claimantKey.PublicKey)

	hash := accounts.TextHash([]byte(c.Challenge))
	sig, err := crypto.Sign(hash, signerKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	result := store.VerifyChallenge(c.ChallengeID, claimant.Hex(), sig)
	if result.Valid {
		t.Error("expected verification to fail when claimed address didn't sign")
	}
}

func TestChallengeExpires(t *testing.T) {
	store := NewChallengeStore(time.Millisecond)
	c, err := store.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	key, _ := crypto.GenerateKey()
	addr := crypto.PubkeyToAddress(key.PublicKey)
	hash := accounts.TextHash([]byte(c.Challenge))
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	result := store.VerifyChallenge(c.ChallengeID, addr.Hex(), sig)
	if result.Valid {
		t.Error("expected an expired challenge to fail verification")
	}
}

func TestSweepEvictsExpiredOnly(t *testing.T) {
	store := NewChallengeStore(time.Millisecond)
	if _, err := store.Generate(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	store.ttl = time.Minute
	freshChallenge, err := store.Generate()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	if n := store.Sweep(); n != 1 {
		t.Errorf("expected 1 expired challenge evicted, got %d", n)
	}
	if _, ok := store.Peek(freshChallenge.ChallengeID); !ok {
		t.Error("expected an unexpired challenge to survive the sweep")
	}
}

func TestSessionIssueAndVerifyRoundTrip(t *testing.T) {
	issuer := NewSessionIssuer("test-secret", time.Hour)
	token, err := issuer.Issue("0xABCDEF0000000000000000000000000000000001", "agent-7")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	addr, name, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if addr != "0xabcdef0000000000000000000000000000000001" {
		t.Errorf("expected lowercased address, got %q", addr)
	}
	if name != "agent-7" {
		t.Errorf("expected name agent-7, got %q", name)
	}
}

func TestSessionVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewSessionIssuer("secret-a", time.Hour)
	token, err := issuer.Issue("0x01", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	other := NewSessionIssuer("secret-b", time.Hour)
	if _, _, err := other.Verify(token); err == nil {
		t.Error("expected verification with a different secret to fail")
	}
}

func TestSessionVerifyRejectsExpiredToken(t *testing.T) {
	issuer := NewSessionIssuer("secret", time.Millisecond)
	token, err := issuer.Issue("0x01", "agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, _, err := issuer.Verify(token); err == nil {
		t.Error("expected verification of an expired token to fail")
	}
}
