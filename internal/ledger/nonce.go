package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// nonceSigner is the serialized actor every write goes through: it owns
// the operator's key and the next nonce to use, and retries a send on
// nonce and rate-limit errors with exponential back-off, the way the
// mev-oracle Settler retries a stale nonce by re-reading PendingNonceAt.
type nonceSigner struct {
	mu   sync.Mutex
	key  *ecdsa.PrivateKey
	addr common.Address

	client  *ethclient.Client
	chainID *big.Int

	nonceRetryMax     int
	rateLimitRetryMax int

	nextNonce uint64
	haveNonce bool
}

func newNonceSigner(key *ecdsa.PrivateKey, client *ethclient.Client, chainID *big.Int, nonceRetryMax, rateLimitRetryMax int) *nonceSigner {
	pub, ok := key.Public().(*ecdsa.PublicKey)
	if !ok {
		panic("operator key is not ECDSA")
	}
	return &nonceSigner{
		key:               key,
		addr:              crypto.PubkeyToAddress(*pub),
		client:            client,
		chainID:           chainID,
		nonceRetryMax:     nonceRetryMax,
		rateLimitRetryMax: rateLimitRetryMax,
	}
}

func (s *nonceSigner) address() common.Address {
	return s.addr
}

type sendFunc func(opts *bind.TransactOpts) (*types.Transaction, error)

// send serializes one write: assigns a nonce, builds TransactOpts,
// invokes fn, and retries on nonce-collision or rate-limit errors up to
// the configured budgets with exponential back-off capped at 3s/5s.
func (s *nonceSigner) send(ctx context.Context, fn sendFunc) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonceAttempts := 0
	rateLimitAttempts := 0

	for {
		nonce, err := s.resolveNonce(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve nonce: %w", err)
		}

		opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
		if err != nil {
			return nil, fmt.Errorf("build transactor: %w", err)
		}
		opts.Context = ctx
		opts.Nonce = new(big.Int).SetUint64(nonce)

		tx, err := fn(opts)
		if err == nil {
			s.nextNonce = nonce + 1
			s.haveNonce = true
			return tx, nil
		}

		switch {
		case isNonceError(err):
			nonceAttempts++
			s.haveNonce = false // force a fresh PendingNonceAt read next loop
			if nonceAttempts > s.nonceRetryMax {
				return nil, fmt.Errorf("nonce retries exhausted: %w", err)
			}
			backoff := expoBackoff(nonceAttempts, 3*time.Second)
			log.Printf("[LEDGER] nonce error, retrying in %s (attempt %d/%d): %v", backoff, nonceAttempts, s.nonceRetryMax, err)
			s.sleep(ctx, backoff)

		case isRateLimitError(err):
			rateLimitAttempts++
			if rateLimitAttempts > s.rateLimitRetryMax {
				return nil, fmt.Errorf("rate limit retries exhausted: %w", err)
			}
			backoff := expoBackoff(rateLimitAttempts, 5*time.Second)
			log.Printf("[LEDGER] rate limited, retrying in %s (attempt %d/%d): %v", backoff, rateLimitAttempts, s.rateLimitRetryMax, err)
			s.sleep(ctx, backoff)

		default:
			return nil, err
		}
	}
}

func (s *nonceSigner) resolveNonce(ctx context.Context) (uint64, error) {
	if s.haveNonce {
		return s.nextNonce, nil
	}
	n, err := s.client.PendingNonceAt(ctx, s.addr)
	if err != nil {
		return 0, err
	}
	s.nextNonce = n
	s.haveNonce = true
	return n, nil
}

func (s *nonceSigner) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func expoBackoff(attempt int, cap time.Duration) time.Duration {
	d := time.Duration(1<<uint(attempt-1)) * 250 * time.Millisecond
	if d > cap {
		d = cap
	}
	return d
}

func isNonceError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "nonce too high") ||
		strings.Contains(msg, "already known") ||
		strings.Contains(msg, "replacement transaction underpriced")
}

func isRateLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "-32007") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}
