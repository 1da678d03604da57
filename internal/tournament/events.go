package tournament

type tournamentCreatedPayload struct {
	TournamentID uint64 `json:"tournamentId"`
	MinPlayers   int    `json:"minPlayers"`
	MaxPlayers   int    `json:"maxPlayers"`
	TotalRounds  int    `json:"totalRounds"`
}

type tournamentPlayerJoinedPayload struct {
	TournamentID uint64 `json:"tournamentId"`
	Agent        string `json:"agent"`
	Name         string `json:"name"`
}

type tournamentStartedPayload struct {
	TournamentID uint64 `json:"tournamentId"`
}

type tournamentRoundStartedPayload struct {
	TournamentID uint64 `json:"tournamentId"`
	Round        uint64 `json:"round"`
	MatchCount   int    `json:"matchCount"`
}

type tournamentUpdatePayload struct {
	TournamentID uint64 `json:"tournamentId"`
	MatchID      uint64 `json:"matchId"`
	AgentA       string `json:"agentA"`
	AgentB       string `json:"agentB"`
}

type tournamentRoundCompletePayload struct {
	TournamentID uint64 `json:"tournamentId"`
	Round        uint64 `json:"round"`
}

type tournamentCompletePayload struct {
	TournamentID uint64   `json:"tournamentId"`
	Rankings     []string `json:"rankings"`
}
