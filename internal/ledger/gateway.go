// Package ledger implements C1: the orchestrator's sole gateway to the
// on-chain game contract and identity registry. One Gateway owns a
// nonce-managing signer, a debounced settlement write buffer, and a set
// of TTL read caches, grounded on the teacher's escrow/accounts
// double-entry pattern and on the settler actor in the mev-oracle
// example (serialized transactor, nonce tracking, chunked batch
// submission, restart-on-error loop).
package ledger

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"

	"github.com/signalsgame/orchestrator/internal/config"
)

// OnSettledFunc is invoked once per matchId inside a successful
// settlement batch.
type OnSettledFunc func(matchID uint64, txHash common.Hash)

// Gateway is the single point of contact with the chain. All reads and
// writes for the rest of the orchestrator go through it.
type Gateway struct {
	cfg *config.Config

	primary  *ethclient.Client
	fallback *ethclient.Client

	gameABI     abi.ABI
	identityABI abi.ABI
	gameAddr    common.Address
	identityAddr common.Address

	gameContract     *bind.BoundContract
	identityContract *bind.BoundContract

	signer *nonceSigner

	caches *cacheSet

	// redisClient persists the settlement buffer's debounce deadline as
	// a sorted-set entry so a restart can tell a crashed flush from an
	// idle buffer; nil when REDIS_URL is unset (pure in-memory then,
	// matching ttlCache's default).
	redisClient *redis.Client

	settlement *settlementBuffer

	onSettledMu sync.RWMutex
	onSettled   []OnSettledFunc
}

// New dials the configured RPC endpoints, parses contract ABIs, and
// wires the nonce signer and batch buffers. It does not block on chain
// connectivity beyond the initial dial.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	primary, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial primary rpc: %w", err)
	}

	var fallback *ethclient.Client
	if cfg.FallbackRPCURL != "" {
		fallback, err = ethclient.DialContext(ctx, cfg.FallbackRPCURL)
		if err != nil {
			log.Printf("[LEDGER] fallback rpc dial failed, continuing without it: %v", err)
		}
	}

	gameABI, err := parseGameContractABI()
	if err != nil {
		return nil, fmt.Errorf("parse game abi: %w", err)
	}
	identityABI, err := parseIdentityRegistryABI()
	if err != nil {
		return nil, fmt.Errorf("parse identity abi: %w", err)
	}

	gameAddr := common.HexToAddress(cfg.GameContractAddress)
	identityAddr := common.HexToAddress(cfg.IdentityRegistryAddress)

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.OperatorPrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Printf("[LEDGER] invalid REDIS_URL, continuing without deadline persistence: %v", err)
		} else {
			rdb = redis.NewClient(opt)
			if err := rdb.Ping(ctx).Err(); err != nil {
				log.Printf("[LEDGER] redis ping failed, continuing without deadline persistence: %v", err)
				rdb = nil
			}
		}
	}

	g := &Gateway{
		cfg:              cfg,
		primary:          primary,
		fallback:         fallback,
		gameABI:          gameABI,
		identityABI:      identityABI,
		gameAddr:         gameAddr,
		identityAddr:     identityAddr,
		gameContract:     bind.NewBoundContract(gameAddr, gameABI, primary, primary, primary),
		identityContract: bind.NewBoundContract(identityAddr, identityABI, primary, primary, primary),
		caches:           newCacheSet(cfg),
		redisClient:      rdb,
	}

	g.signer = newNonceSigner(key, primary, big.NewInt(cfg.ChainID), cfg.NonceRetryMax, cfg.RateLimitRetryMax)
	g.settlement = newSettlementBuffer(g, cfg, rdb)

	return g, nil
}

// OperatorAddress returns the address the gateway signs transactions
// with.
func (g *Gateway) OperatorAddress() common.Address {
	return g.signer.address()
}

// SetOnSettled registers a callback fired once per settled matchId.
func (g *Gateway) SetOnSettled(fn OnSettledFunc) {
	g.onSettledMu.Lock()
	defer g.onSettledMu.Unlock()
	g.onSettled = append(g.onSettled, fn)
}

func (g *Gateway) fireOnSettled(matchID uint64, txHash common.Hash) {
	g.onSettledMu.RLock()
	defer g.onSettledMu.RUnlock()
	for _, fn := range g.onSettled {
		fn(matchID, txHash)
	}
}

// transact serializes a single write through the nonce signer, against
// the game contract, retrying per the nonce/rate-limit discipline.
func (g *Gateway) transact(ctx context.Context, method string, args ...interface{}) (*types.Transaction, error) {
	return g.signer.send(ctx, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return g.gameContract.Transact(opts, method, args...)
	})
}

// callGame performs a read against the game contract. The primary call
// is made once, without retries; if it fails and a fallback RPC is
// configured, the read is repeated once on the fallback.
func (g *Gateway) callGame(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	opts := &bind.CallOpts{Context: ctx}
	err := g.gameContract.Call(opts, out, method, args...)
	if err == nil || g.fallback == nil {
		return err
	}
	log.Printf("[LEDGER] primary read failed for %s, retrying on fallback: %v", method, err)
	fallbackContract := bind.NewBoundContract(g.gameAddr, g.gameABI, g.fallback, g.fallback, g.fallback)
	return fallbackContract.Call(opts, out, method, args...)
}

func (g *Gateway) callIdentity(ctx context.Context, out *[]interface{}, method string, args ...interface{}) error {
	opts := &bind.CallOpts{Context: ctx}
	err := g.identityContract.Call(opts, out, method, args...)
	if err == nil || g.fallback == nil {
		return err
	}
	log.Printf("[LEDGER] primary read failed for %s, retrying on fallback: %v", method, err)
	fallbackContract := bind.NewBoundContract(g.identityAddr, g.identityABI, g.fallback, g.fallback, g.fallback)
	return fallbackContract.Call(opts, out, method, args...)
}

// decodeMatchCreated recovers assigned matchIds from MatchCreated logs
// in a transaction receipt, in log order.
func (g *Gateway) decodeMatchCreated(receipt *types.Receipt) ([]uint64, error) {
	eventID := g.gameABI.Events["MatchCreated"].ID
	var ids []uint64
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != eventID {
			continue
		}
		if len(l.Topics) < 2 {
			continue
		}
		ids = append(ids, new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64())
	}
	return ids, nil
}

func (g *Gateway) decodeTournamentCreated(receipt *types.Receipt) (uint64, bool) {
	eventID := g.gameABI.Events["TournamentCreated"].ID
	for _, l := range receipt.Logs {
		if len(l.Topics) == 0 || l.Topics[0] != eventID {
			continue
		}
		if len(l.Topics) < 2 {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[1].Bytes()).Uint64(), true
	}
	return 0, false
}

