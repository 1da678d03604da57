package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/signalsgame/orchestrator/internal/protocol"
)

func toABIPairs(pairs []MatchPair) []struct {
	AgentA common.Address
	AgentB common.Address
} {
	abiPairs := make([]struct {
		AgentA common.Address
		AgentB common.Address
	}, len(pairs))
	for i, p := range pairs {
		abiPairs[i] = struct {
			AgentA common.Address
			AgentB common.Address
		}{common.HexToAddress(p.AgentA), common.HexToAddress(p.AgentB)}
	}
	return abiPairs
}

// CreateQuickMatchBatch submits pairings chunked to at most batchCap per
// transaction and decodes the assigned matchIds from the resulting
// MatchCreated logs, in pairing order. A failed chunk aborts the
// remainder — the caller (C6) does not re-queue on failure.
func (g *Gateway) CreateQuickMatchBatch(ctx context.Context, pairs []MatchPair) ([]uint64, error) {
	var ids []uint64
	for _, chunk := range chunkPairs(pairs, g.cfg.BatchCap) {
		tx, err := g.transact(ctx, "createQuickMatchBatch", toABIPairs(chunk))
		if err != nil {
			return ids, fmt.Errorf("createQuickMatchBatch: %w", err)
		}
		receipt, err := g.waitMined(ctx, tx)
		if err != nil {
			return ids, err
		}
		chunkIDs, err := g.decodeMatchCreated(receipt)
		if err != nil {
			return ids, err
		}
		ids = append(ids, chunkIDs...)
	}
	return ids, nil
}

// CreateTournamentMatchBatch submits one round's pairings, chunked to at
// most batchCap per transaction, and decodes the assigned matchIds in
// pairing order.
func (g *Gateway) CreateTournamentMatchBatch(ctx context.Context, tournamentID uint64, pairs []MatchPair, windowSec uint64) ([]uint64, error) {
	var ids []uint64
	for _, chunk := range chunkPairs(pairs, g.cfg.BatchCap) {
		tx, err := g.transact(ctx, "createTournamentMatchBatch", new(big.Int).SetUint64(tournamentID), toABIPairs(chunk), new(big.Int).SetUint64(windowSec))
		if err != nil {
			return ids, fmt.Errorf("createTournamentMatchBatch(%d): %w", tournamentID, err)
		}
		receipt, err := g.waitMined(ctx, tx)
		if err != nil {
			return ids, err
		}
		chunkIDs, err := g.decodeMatchCreated(receipt)
		if err != nil {
			return ids, err
		}
		ids = append(ids, chunkIDs...)
	}
	return ids, nil
}

func chunkPairs(pairs []MatchPair, size int) [][]MatchPair {
	if size <= 0 || len(pairs) == 0 {
		if len(pairs) == 0 {
			return nil
		}
		return [][]MatchPair{pairs}
	}
	var chunks [][]MatchPair
	for i := 0; i < len(pairs); i += size {
		end := i + size
		if end > len(pairs) {
			end = len(pairs)
		}
		chunks = append(chunks, pairs[i:end])
	}
	return chunks
}

// SettleMultiple submits a batch of completed matches' reveal signatures
// for on-chain settlement. Callers should enqueue through the
// settlement buffer (EnqueueSettlement) rather than calling this
// directly, so the 200ms debounce/30-item chunking/retry contract is
// honored; it is exported for the buffer's own use and for tests.
func (g *Gateway) SettleMultiple(ctx context.Context, settlements []Settlement) (common.Hash, []uint64, error) {
	abiSettlements := make([]struct {
		MatchId *big.Int
		ChoiceA uint8
		NonceA  *big.Int
		SigA    []byte
		ChoiceB uint8
		NonceB  *big.Int
		SigB    []byte
	}, len(settlements))
	ids := make([]uint64, len(settlements))
	for i, s := range settlements {
		abiSettlements[i] = struct {
			MatchId *big.Int
			ChoiceA uint8
			NonceA  *big.Int
			SigA    []byte
			ChoiceB uint8
			NonceB  *big.Int
			SigB    []byte
		}{
			MatchId: new(big.Int).SetUint64(s.MatchID),
			ChoiceA: uint8(s.ChoiceA),
			NonceA:  new(big.Int).SetUint64(s.NonceA),
			SigA:    s.SigA,
			ChoiceB: uint8(s.ChoiceB),
			NonceB:  new(big.Int).SetUint64(s.NonceB),
			SigB:    s.SigB,
		}
		ids[i] = s.MatchID
	}

	tx, err := g.transact(ctx, "settleMultiple", abiSettlements)
	if err != nil {
		return common.Hash{}, nil, fmt.Errorf("settleMultiple: %w", err)
	}
	receipt, err := g.waitMined(ctx, tx)
	if err != nil {
		return tx.Hash(), nil, err
	}

	g.caches.invalidateOnSettlement()
	for _, id := range ids {
		g.fireOnSettled(id, receipt.TxHash)
	}
	return receipt.TxHash, ids, nil
}

// SettleTimeout settles a match where neither agent submitted a choice.
func (g *Gateway) SettleTimeout(ctx context.Context, matchID uint64) (common.Hash, error) {
	tx, err := g.transact(ctx, "settleTimeout", new(big.Int).SetUint64(matchID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("settleTimeout(%d): %w", matchID, err)
	}
	receipt, err := g.waitMined(ctx, tx)
	if err != nil {
		return tx.Hash(), err
	}
	g.caches.invalidateOnSettlement()
	g.fireOnSettled(matchID, receipt.TxHash)
	return receipt.TxHash, nil
}

// SettlePartialTimeout settles a match where exactly one agent
// submitted a choice before its opponent's deadline passed.
func (g *Gateway) SettlePartialTimeout(ctx context.Context, matchID uint64, choice protocol.Choice, nonce uint64, sig []byte, aTimedOut bool) (common.Hash, error) {
	tx, err := g.transact(ctx, "settlePartialTimeout", new(big.Int).SetUint64(matchID), uint8(choice), new(big.Int).SetUint64(nonce), sig, aTimedOut)
	if err != nil {
		return common.Hash{}, fmt.Errorf("settlePartialTimeout(%d): %w", matchID, err)
	}
	receipt, err := g.waitMined(ctx, tx)
	if err != nil {
		return tx.Hash(), err
	}
	g.caches.invalidateOnSettlement()
	g.fireOnSettled(matchID, receipt.TxHash)
	return receipt.TxHash, nil
}

// CloseBetting closes one match's betting pool ahead of settlement.
// Failure is non-fatal — a pool with no bets auto-closes on its own.
func (g *Gateway) CloseBetting(ctx context.Context, matchID uint64) error {
	tx, err := g.transact(ctx, "closeBetting", new(big.Int).SetUint64(matchID))
	if err != nil {
		return fmt.Errorf("closeBetting(%d): %w", matchID, err)
	}
	_, err = g.waitMined(ctx, tx)
	return err
}

// CloseBettingBatch closes several matches' betting pools in one
// transaction. Failure is non-fatal for the same reason as CloseBetting.
func (g *Gateway) CloseBettingBatch(ctx context.Context, matchIDs []uint64) error {
	if len(matchIDs) == 0 {
		return nil
	}
	ids := make([]*big.Int, len(matchIDs))
	for i, id := range matchIDs {
		ids[i] = new(big.Int).SetUint64(id)
	}
	tx, err := g.transact(ctx, "closeBettingBatch", ids)
	if err != nil {
		return fmt.Errorf("closeBettingBatch: %w", err)
	}
	_, err = g.waitMined(ctx, tx)
	return err
}

// CreateTournament opens registration for a new tournament and returns
// its assigned id, decoded from the TournamentCreated log.
func (g *Gateway) CreateTournament(ctx context.Context, entryStake *big.Int, minPlayers, maxPlayers, totalRounds uint64) (uint64, error) {
	tx, err := g.transact(ctx, "createTournament", entryStake, new(big.Int).SetUint64(minPlayers), new(big.Int).SetUint64(maxPlayers), new(big.Int).SetUint64(totalRounds))
	if err != nil {
		return 0, fmt.Errorf("createTournament: %w", err)
	}
	receipt, err := g.waitMined(ctx, tx)
	if err != nil {
		return 0, err
	}
	id, ok := g.decodeTournamentCreated(receipt)
	if !ok {
		return 0, fmt.Errorf("createTournament: no TournamentCreated log in receipt")
	}
	return id, nil
}

// StartTournament transitions a tournament from REGISTRATION to ACTIVE.
func (g *Gateway) StartTournament(ctx context.Context, tournamentID uint64) error {
	return g.simpleTournamentCall(ctx, "startTournament", tournamentID)
}

// CancelTournament aborts a tournament (e.g. under-subscribed at
// registration deadline).
func (g *Gateway) CancelTournament(ctx context.Context, tournamentID uint64) error {
	return g.simpleTournamentCall(ctx, "cancelTournament", tournamentID)
}

// AdvanceToFinal transitions a tournament into its final standings
// phase once every round has settled.
func (g *Gateway) AdvanceToFinal(ctx context.Context, tournamentID uint64) error {
	return g.simpleTournamentCall(ctx, "advanceToFinal", tournamentID)
}

// CompleteTournament marks a tournament COMPLETE after rankings are set.
func (g *Gateway) CompleteTournament(ctx context.Context, tournamentID uint64) error {
	return g.simpleTournamentCall(ctx, "completeTournament", tournamentID)
}

func (g *Gateway) simpleTournamentCall(ctx context.Context, method string, tournamentID uint64) error {
	tx, err := g.transact(ctx, method, new(big.Int).SetUint64(tournamentID))
	if err != nil {
		return fmt.Errorf("%s(%d): %w", method, tournamentID, err)
	}
	_, err = g.waitMined(ctx, tx)
	return err
}

// SetFinalRankings records a tournament's final agent ordering on-chain.
func (g *Gateway) SetFinalRankings(ctx context.Context, tournamentID uint64, ranked []string) error {
	addrs := make([]common.Address, len(ranked))
	for i, a := range ranked {
		addrs[i] = common.HexToAddress(a)
	}
	tx, err := g.transact(ctx, "setFinalRankings", new(big.Int).SetUint64(tournamentID), addrs)
	if err != nil {
		return fmt.Errorf("setFinalRankings(%d): %w", tournamentID, err)
	}
	_, err = g.waitMined(ctx, tx)
	return err
}

// JoinTournamentFor submits a gasless join on behalf of an agent, using
// the agent's own signature over the join payload plus a stake permit.
func (g *Gateway) JoinTournamentFor(ctx context.Context, tournamentID uint64, agent string, nonce uint64, joinSig []byte, permitDeadline uint64, v uint8, r, s [32]byte) (common.Hash, error) {
	tx, err := g.transact(ctx, "joinTournamentFor",
		new(big.Int).SetUint64(tournamentID), common.HexToAddress(agent), new(big.Int).SetUint64(nonce),
		joinSig, new(big.Int).SetUint64(permitDeadline), v, r, s)
	if err != nil {
		return common.Hash{}, fmt.Errorf("joinTournamentFor(%d,%s): %w", tournamentID, agent, err)
	}
	receipt, err := g.waitMined(ctx, tx)
	if err != nil {
		return tx.Hash(), err
	}
	return receipt.TxHash, nil
}

// waitMined blocks for the transaction's receipt using the primary RPC.
func (g *Gateway) waitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, g.primary, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return receipt, nil
}
