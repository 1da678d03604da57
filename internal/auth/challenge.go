// Package auth implements C4: wallet-signature authentication. Agents
// prove control of an address by signing a server-issued challenge
// instead of presenting a password, grounded on the teacher's OTP→JWT
// handlers (internal/api/handlers/auth.go) — generate a short-lived
// server-side secret, verify a client-submitted proof against it, then
// issue a JWT session token.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Challenge is a pending auth challenge awaiting a signed response.
type Challenge struct {
	ChallengeID string
	Challenge   string
	ExpiresAt   time.Time
}

// ChallengeStore holds outstanding challenges with auto-expiry, the way
// the teacher's OTP store holds outstanding one-time codes.
type ChallengeStore struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]Challenge
}

// NewChallengeStore creates an empty store with the given challenge TTL.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{ttl: ttl, m: make(map[string]Challenge)}
}

// Generate mints a new challenge: a random 16-byte id and a message
// embedding a random 32-byte nonce and the issue time, so a captured
// signature can never be replayed against a later challenge.
func (s *ChallengeStore) Generate() (Challenge, error) {
	idBytes := make([]byte, 16)
	if _, err := rand.Read(idBytes); err != nil {
		return Challenge{}, fmt.Errorf("generate challenge id: %w", err)
	}
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return Challenge{}, fmt.Errorf("generate challenge nonce: %w", err)
	}

	now := time.Now()
	c := Challenge{
		ChallengeID: hex.EncodeToString(idBytes),
		Challenge:   fmt.Sprintf("Sign in to Signals\nnonce:%s\nissued:%d", hex.EncodeToString(nonceBytes), now.Unix()),
		ExpiresAt:   now.Add(s.ttl),
	}

	s.mu.Lock()
	s.m[c.ChallengeID] = c
	s.mu.Unlock()
	return c, nil
}

// Peek returns a pending challenge without consuming it, or false if
// missing/expired.
func (s *ChallengeStore) Peek(challengeID string) (Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[challengeID]
	if !ok || time.Now().After(c.ExpiresAt) {
		return Challenge{}, false
	}
	return c, true
}

// Consume removes a challenge so it cannot be verified twice.
func (s *ChallengeStore) Consume(challengeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, challengeID)
}

// Sweep evicts expired challenges. Intended to run on a ticker, matching
// the teacher's periodic checker goroutines.
func (s *ChallengeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	evicted := 0
	for id, c := range s.m {
		if now.After(c.ExpiresAt) {
			delete(s.m, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs Sweep on an interval until the returned stop
// function is called.
func (s *ChallengeStore) StartSweeper(intervalSeconds int) func() {
	ticker := time.NewTicker(time.Duration(intervalSeconds) * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

func normalizeAddress(addr string) string {
	return strings.ToLower(addr)
}
