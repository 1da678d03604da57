package ledger

import (
	"math/big"

	"github.com/signalsgame/orchestrator/internal/protocol"
)

// MatchView mirrors the ledger contract's Match struct for read
// consumers (gateway HTTP/WS handlers, match state machine bootstrap).
type MatchView struct {
	MatchID       uint64
	AgentA        string
	AgentB        string
	TournamentID  uint64
	Round         uint64
	State         uint8
	Result        protocol.Result
	PhaseDeadline uint64
}

// PoolView mirrors the ledger's betting pool state for one match.
type PoolView struct {
	State      protocol.PoolState
	TotalStake *big.Int
}

// OddsView mirrors the ledger's per-outcome odds, expressed in basis
// points.
type OddsView struct {
	SplitSplitBps *big.Int
	AStealsBps    *big.Int
	BStealsBps    *big.Int
	StealStealBps *big.Int
}

// AgentStats mirrors the ledger's cumulative per-agent record.
type AgentStats struct {
	Wins   *big.Int
	Losses *big.Int
	Draws  *big.Int
	Points *big.Int
}

// BetView mirrors one stored bet.
type BetView struct {
	Bettor  string
	MatchID uint64
	Outcome uint8
	Amount  *big.Int
}

// TournamentView mirrors the ledger's tournament record.
type TournamentView struct {
	State        protocol.TournamentState
	Round        uint64
	TotalRounds  uint64
	EntryStake   *big.Int
}

// PlayerStatsView mirrors a player's standing within one tournament.
type PlayerStatsView struct {
	Points *big.Int
	Played *big.Int
}

// AgentInfo mirrors the identity registry's agent record.
type AgentInfo struct {
	ID     uint64
	Wallet string
	Name   string
}

// LeaderboardEntry is a ranked row of the aggregate leaderboard read.
type LeaderboardEntry struct {
	Agent  string
	Name   string
	Points int64
	Wins   int64
	Losses int64
	Draws  int64
}

// MatchPair is one quick-match or tournament-match pairing submitted in
// a creation batch.
type MatchPair struct {
	AgentA string
	AgentB string
}

// Settlement is one match's settlement submitted in a settle-multiple
// batch.
type Settlement struct {
	MatchID uint64
	ChoiceA protocol.Choice
	NonceA  uint64
	SigA    []byte
	ChoiceB protocol.Choice
	NonceB  uint64
	SigB    []byte
}
