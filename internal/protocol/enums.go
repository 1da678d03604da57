// Package protocol holds the wire-identical enums, event envelopes, and
// scoring rules shared by every component — the ledger gateway, the
// match engine, the queues, and the gateway dispatcher.
package protocol

// Choice is a participant's committed action. Wire-identical to the
// ledger contract's Choice enum.
type Choice uint8

const (
	ChoiceNone Choice = iota
	ChoiceSplit
	ChoiceSteal
)

func (c Choice) String() string {
	switch c {
	case ChoiceSplit:
		return "SPLIT"
	case ChoiceSteal:
		return "STEAL"
	default:
		return "NONE"
	}
}

// Result is the settled outcome of a match. Wire-identical to the
// ledger contract's Result enum.
type Result uint8

const (
	ResultBothSplit Result = iota
	ResultAgentASteals
	ResultAgentBSteals
	ResultBothSteal
)

func (r Result) String() string {
	switch r {
	case ResultBothSplit:
		return "BOTH_SPLIT"
	case ResultAgentASteals:
		return "AGENT_A_STEALS"
	case ResultAgentBSteals:
		return "AGENT_B_STEALS"
	case ResultBothSteal:
		return "BOTH_STEAL"
	default:
		return "UNKNOWN"
	}
}

// PoolState mirrors the ledger contract's betting-pool lifecycle.
type PoolState uint8

const (
	PoolNone PoolState = iota
	PoolOpen
	PoolClosed
	PoolSettled
)

// TournamentState mirrors the ledger contract's tournament lifecycle.
type TournamentState uint8

const (
	TournamentNone TournamentState = iota
	TournamentRegistration
	TournamentActive
	TournamentFinal
	TournamentComplete
	TournamentCancelled
)

func (s TournamentState) String() string {
	switch s {
	case TournamentRegistration:
		return "REGISTRATION"
	case TournamentActive:
		return "ACTIVE"
	case TournamentFinal:
		return "FINAL"
	case TournamentComplete:
		return "COMPLETE"
	case TournamentCancelled:
		return "CANCELLED"
	default:
		return "NONE"
	}
}

// Payout is the per-side point award from the §3 scoring table.
type Payout struct {
	A int
	B int
}

// Settle computes (result, payoutA, payoutB) for a completed pair of
// choices. Total and bijective on the 4-element input domain.
func Settle(choiceA, choiceB Choice) (Result, Payout) {
	switch {
	case choiceA == ChoiceSplit && choiceB == ChoiceSplit:
		return ResultBothSplit, Payout{A: 3, B: 3}
	case choiceA == ChoiceSplit && choiceB == ChoiceSteal:
		return ResultAgentBSteals, Payout{A: 1, B: 5}
	case choiceA == ChoiceSteal && choiceB == ChoiceSplit:
		return ResultAgentASteals, Payout{A: 5, B: 1}
	default: // both STEAL
		return ResultBothSteal, Payout{A: 0, B: 0}
	}
}

// TimeoutPayout computes the award for a choice-phase timeout.
// Exactly one of aSubmitted/bSubmitted may be true for a partial
// timeout; both false is a full timeout.
func TimeoutPayout(aSubmitted, bSubmitted bool) Payout {
	switch {
	case aSubmitted && !bSubmitted:
		return Payout{A: 1, B: 0}
	case bSubmitted && !aSubmitted:
		return Payout{A: 0, B: 1}
	default:
		return Payout{A: 0, B: 0}
	}
}

// ByePoints is the credit awarded to an unpaired tournament player.
const ByePoints = 1
