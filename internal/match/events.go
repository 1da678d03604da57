package match

import (
	"time"

	"github.com/signalsgame/orchestrator/internal/ledger"
	"github.com/signalsgame/orchestrator/internal/protocol"
)

type agentStatsPayload struct {
	Wins   string `json:"wins"`
	Losses string `json:"losses"`
	Draws  string `json:"draws"`
	Points string `json:"points"`
}

type matchStartedPayload struct {
	MatchID             uint64             `json:"matchId"`
	AgentA              string             `json:"agentA"`
	AgentB              string             `json:"agentB"`
	AgentAName          string             `json:"agentAName"`
	AgentBName          string             `json:"agentBName"`
	TournamentID        uint64             `json:"tournamentId,omitempty"`
	NegotiationDuration int                `json:"negotiationDuration"`
	ChoiceDuration      int                `json:"choiceDuration"`
	You                 string             `json:"you,omitempty"`
	Opponent            string             `json:"opponent,omitempty"`
	OpponentName        string             `json:"opponentName,omitempty"`
	OpponentStats       *agentStatsPayload `json:"opponentStats,omitempty"`
}

// emitMatchStarted sends a personalized MATCH_STARTED to one side. The
// public broadcast in CreateMatch omits You/Opponent/OpponentStats.
func (e *Engine) emitMatchStarted(m *Match, self, opponent sideState, oppStats ledger.AgentStats, haveStats bool, negotiationSeconds int, choiceWindow time.Duration) {
	payload := matchStartedPayload{
		MatchID:             m.MatchID,
		AgentA:              m.A.Address,
		AgentB:              m.B.Address,
		AgentAName:          m.A.Name,
		AgentBName:          m.B.Name,
		TournamentID:        m.TournamentID,
		NegotiationDuration: negotiationSeconds,
		ChoiceDuration:      int(choiceWindow.Seconds()),
		You:                 self.Address,
		Opponent:            opponent.Address,
		OpponentName:        opponent.Name,
	}
	if haveStats {
		payload.OpponentStats = &agentStatsPayload{
			Wins:   oppStats.Wins.String(),
			Losses: oppStats.Losses.String(),
			Draws:  oppStats.Draws.String(),
			Points: oppStats.Points.String(),
		}
	}
	e.hub.SendToAgent(self.Address, protocol.EventMatchStarted, payload)
}

type negotiationMessagePayload struct {
	MatchID   uint64 `json:"matchId"`
	From      string `json:"from"`
	FromName  string `json:"fromName"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type choicePhaseStartedPayload struct {
	MatchID    uint64 `json:"matchId"`
	AgentA     string `json:"agentA"`
	AgentB     string `json:"agentB"`
	AgentAName string `json:"agentAName"`
	AgentBName string `json:"agentBName"`
	Deadline   int64  `json:"deadline"`
}

type signChoicePayload struct {
	MatchID   uint64      `json:"matchId"`
	Nonce     uint64      `json:"nonce"`
	Deadline  int64       `json:"deadline"`
	TypedData interface{} `json:"typedData"`
}

type choiceLockedPayload struct {
	MatchID    uint64 `json:"matchId"`
	Agent      string `json:"agent"`
	AgentName  string `json:"agentName"`
	CommitHash string `json:"commitHash"`
}

type choiceAcceptedPayload struct {
	MatchID uint64 `json:"matchId"`
	Choice  string `json:"choice"`
}

type choicesRevealedPayload struct {
	MatchID    uint64 `json:"matchId"`
	AgentA     string `json:"agentA"`
	AgentB     string `json:"agentB"`
	ChoiceA    string `json:"choiceA"`
	ChoiceB    string `json:"choiceB"`
	SigA       string `json:"sigA"`
	SigB       string `json:"sigB"`
	NonceA     uint64 `json:"nonceA"`
	NonceB     uint64 `json:"nonceB"`
	Result     int    `json:"result"`
	ResultName string `json:"resultName"`
	MatchSalt  string `json:"matchSalt"`
}

type choiceTimeoutPayload struct {
	MatchID        uint64 `json:"matchId"`
	AgentA         string `json:"agentA"`
	AgentB         string `json:"agentB"`
	AgentASubmitted bool  `json:"agentASubmitted"`
	AgentBSubmitted bool  `json:"agentBSubmitted"`
}

type matchConfirmedPayload struct {
	MatchID   uint64  `json:"matchId"`
	TxHash    string  `json:"txHash"`
	AgentA    string  `json:"agentA"`
	AgentB    string  `json:"agentB"`
	Result    *string `json:"result,omitempty"`
	ChoiceA   *string `json:"choiceA,omitempty"`
	ChoiceB   *string `json:"choiceB,omitempty"`
	TimedOut  bool    `json:"timedOut,omitempty"`
}
