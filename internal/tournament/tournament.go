// Package tournament implements C7: Swiss-paired multi-round tournaments
// built on top of the match engine. The teacher has no tournament
// analog (its games are single-elimination 1v1), so the round
// lifecycle and pairing algorithm are new; the match-completion
// observer style follows the teacher's GameManager.EndGame plus its
// Redis pub/sub fan-out in internal/ws/redis.go, generalized here to a
// direct Go callback registered via match.Engine.OnComplete.
package tournament

import (
	"context"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/config"
	"github.com/signalsgame/orchestrator/internal/ledger"
	"github.com/signalsgame/orchestrator/internal/match"
	"github.com/signalsgame/orchestrator/internal/protocol"
)

// Player is one roster entry's in-memory standing.
type Player struct {
	Address string
	Name    string
	Points  int
	Played  int
	HadBye  bool
}

type roundMatch struct {
	AgentA, AgentB string
	Completed      bool
}

// Tournament is one in-memory tournament record. All access is
// serialized through Controller's per-tournament lock, mirroring the
// per-match actor lock in package match.
type Tournament struct {
	ID                  uint64
	State               protocol.TournamentState
	Round               uint64
	TotalRounds         uint64
	ChoiceWindowSeconds int
	EntryStake          *big.Int
	MinPlayers          int
	MaxPlayers          int

	mu            sync.Mutex
	players       map[string]*Player
	order         []string // roster arrival order, for stable tie-breaks
	pastOpponents map[string]map[string]bool
	roundMatches  map[uint64]*roundMatch // matchId -> state, current round only
}

// Controller owns every live tournament (C7).
type Controller struct {
	cfg    *config.Config
	hub    *broadcast.Hub
	ledger *ledger.Gateway
	engine *match.Engine

	mu             sync.RWMutex
	tournaments    map[uint64]*Tournament
	matchOwner     map[uint64]uint64 // matchId -> tournamentId, current round only
}

// New wires the tournament controller and subscribes to match
// completion so round progress can be tracked without polling.
func New(cfg *config.Config, hub *broadcast.Hub, gw *ledger.Gateway, engine *match.Engine) *Controller {
	c := &Controller{
		cfg:         cfg,
		hub:         hub,
		ledger:      gw,
		engine:      engine,
		tournaments: make(map[uint64]*Tournament),
		matchOwner:  make(map[uint64]uint64),
	}
	engine.OnComplete(c.onMatchComplete)
	return c
}

func (c *Controller) get(tournamentID uint64) (*Tournament, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tournaments[tournamentID]
	return t, ok
}

// Create registers a new tournament on the ledger and stores its
// in-memory record in REGISTRATION.
func (c *Controller) Create(ctx context.Context, entryStake *big.Int, minPlayers, maxPlayers, totalRounds int, choiceWindowSeconds int) (uint64, error) {
	id, err := c.ledger.CreateTournament(ctx, entryStake, uint64(minPlayers), uint64(maxPlayers), uint64(totalRounds))
	if err != nil {
		return 0, err
	}

	t := &Tournament{
		ID:                  id,
		State:               protocol.TournamentRegistration,
		TotalRounds:         uint64(totalRounds),
		ChoiceWindowSeconds: choiceWindowSeconds,
		EntryStake:          entryStake,
		MinPlayers:          minPlayers,
		MaxPlayers:          maxPlayers,
		players:             make(map[string]*Player),
		pastOpponents:       make(map[string]map[string]bool),
		roundMatches:        make(map[uint64]*roundMatch),
	}

	c.mu.Lock()
	c.tournaments[id] = t
	c.mu.Unlock()

	c.hub.Broadcast(protocol.EventTournamentCreated, tournamentCreatedPayload{
		TournamentID: id, MinPlayers: minPlayers, MaxPlayers: maxPlayers, TotalRounds: totalRounds,
	})
	return id, nil
}

// RegisterPlayer adds a confirmed joiner to the roster. Invoked by C8
// once a TOURNAMENT_JOIN_SIGNED has been verified and the join is
// confirmed on the ledger.
func (c *Controller) RegisterPlayer(tournamentID uint64, address, name string) {
	t, ok := c.get(tournamentID)
	if !ok {
		return
	}
	addr := strings.ToLower(address)

	t.mu.Lock()
	if _, exists := t.players[addr]; !exists {
		t.players[addr] = &Player{Address: addr, Name: name}
		t.order = append(t.order, addr)
	}
	t.mu.Unlock()

	c.hub.Broadcast(protocol.EventTournamentPlayerJoined, tournamentPlayerJoinedPayload{TournamentID: tournamentID, Agent: addr, Name: name})
}

// Start moves a tournament to ACTIVE and runs round 1.
func (c *Controller) Start(ctx context.Context, tournamentID uint64) error {
	t, ok := c.get(tournamentID)
	if !ok {
		return errUnknownTournament
	}
	if err := c.ledger.StartTournament(ctx, tournamentID); err != nil {
		return err
	}

	t.mu.Lock()
	t.State = protocol.TournamentActive
	t.Round = 1
	t.mu.Unlock()

	c.hub.Broadcast(protocol.EventTournamentStarted, tournamentStartedPayload{TournamentID: tournamentID})
	c.runRound(ctx, t)
	return nil
}

// runRound generates this round's pairings, submits them as a single
// chunked batch, and constructs a Match State Machine for each matchId
// the ledger returns.
func (c *Controller) runRound(ctx context.Context, t *Tournament) {
	t.mu.Lock()
	round := t.Round
	roster := make([]*Player, 0, len(t.players))
	for _, addr := range t.order {
		roster = append(roster, t.players[addr])
	}

	var pairs [][2]string
	var byeAgent string
	if round == 1 {
		pairs, byeAgent = pairRoundOne(roster)
	} else {
		pairs, byeAgent = pairSwiss(roster, t.pastOpponents)
	}

	if byeAgent != "" {
		t.players[byeAgent].Points += protocol.ByePoints
		t.players[byeAgent].HadBye = true
	}

	t.roundMatches = make(map[uint64]*roundMatch, len(pairs))
	for _, p := range pairs {
		if t.pastOpponents[p[0]] == nil {
			t.pastOpponents[p[0]] = make(map[string]bool)
		}
		if t.pastOpponents[p[1]] == nil {
			t.pastOpponents[p[1]] = make(map[string]bool)
		}
		t.pastOpponents[p[0]][p[1]] = true
		t.pastOpponents[p[1]][p[0]] = true
	}
	choiceWindow := time.Duration(t.ChoiceWindowSeconds) * time.Second
	tournamentID := t.ID
	t.mu.Unlock()

	if len(pairs) == 0 {
		// Nobody to pair (e.g. a heads-up final bye round); treat the
		// round as immediately complete.
		c.advanceRound(ctx, t)
		return
	}

	ledgerPairs := make([]ledger.MatchPair, len(pairs))
	for i, p := range pairs {
		ledgerPairs[i] = ledger.MatchPair{AgentA: p[0], AgentB: p[1]}
	}

	matchIDs, err := c.ledger.CreateTournamentMatchBatch(ctx, tournamentID, ledgerPairs, uint64(t.ChoiceWindowSeconds))
	if err != nil {
		return
	}

	t.mu.Lock()
	for i, id := range matchIDs {
		if i >= len(pairs) {
			break
		}
		t.roundMatches[id] = &roundMatch{AgentA: pairs[i][0], AgentB: pairs[i][1]}
	}
	t.mu.Unlock()

	c.mu.Lock()
	for _, id := range matchIDs {
		c.matchOwner[id] = tournamentID
	}
	c.mu.Unlock()

	for i, id := range matchIDs {
		if i >= len(pairs) {
			break
		}
		c.engine.CreateMatch(ctx, id, tournamentID, round, pairs[i][0], pairs[i][1], choiceWindow)
	}

	c.hub.Broadcast(protocol.EventTournamentRoundStarted, tournamentRoundStartedPayload{
		TournamentID: tournamentID, Round: round, MatchCount: len(matchIDs),
	})
}

// onMatchComplete is the match engine's completion observer (§4.7).
func (c *Controller) onMatchComplete(matchID uint64, agentA, agentB string) {
	c.mu.RLock()
	tournamentID, ok := c.matchOwner[matchID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	t, ok := c.get(tournamentID)
	if !ok {
		return
	}

	snap, ok := c.engine.Snapshot(matchID)
	if !ok {
		return
	}

	_, payout := payoutFor(snap)

	t.mu.Lock()
	rm, tracked := t.roundMatches[matchID]
	if !tracked || rm.Completed {
		t.mu.Unlock()
		return
	}
	rm.Completed = true
	if p, ok := t.players[strings.ToLower(agentA)]; ok {
		p.Points += payout.A
		p.Played++
	}
	if p, ok := t.players[strings.ToLower(agentB)]; ok {
		p.Points += payout.B
		p.Played++
	}
	allDone := true
	roundMatchIDs := make([]uint64, 0, len(t.roundMatches))
	for id, m := range t.roundMatches {
		roundMatchIDs = append(roundMatchIDs, id)
		if !m.Completed {
			allDone = false
		}
	}
	round := t.Round
	t.mu.Unlock()

	c.hub.Broadcast(protocol.EventTournamentUpdate, tournamentUpdatePayload{
		TournamentID: tournamentID, MatchID: matchID, AgentA: agentA, AgentB: agentB,
	})

	if allDone {
		c.mu.Lock()
		for _, id := range roundMatchIDs {
			delete(c.matchOwner, id)
		}
		c.mu.Unlock()

		c.hub.Broadcast(protocol.EventTournamentRoundComplete, tournamentRoundCompletePayload{TournamentID: tournamentID, Round: round})

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		c.advanceRound(ctx, t)
	}
}

// advanceRound increments the round counter and either runs the next
// round or finalizes the tournament.
func (c *Controller) advanceRound(ctx context.Context, t *Tournament) {
	t.mu.Lock()
	t.Round++
	finished := t.Round > t.TotalRounds
	t.mu.Unlock()

	if finished {
		c.finalize(ctx, t)
		return
	}
	c.runRound(ctx, t)
}

// finalize closes out a tournament on the ledger in the fixed
// advanceToFinal -> completeTournament -> setFinalRankings sequence.
func (c *Controller) finalize(ctx context.Context, t *Tournament) {
	t.mu.Lock()
	t.State = protocol.TournamentFinal
	roster := make([]*Player, 0, len(t.players))
	for _, addr := range t.order {
		roster = append(roster, t.players[addr])
	}
	t.mu.Unlock()

	sort.SliceStable(roster, func(i, j int) bool { return roster[i].Points > roster[j].Points })
	ranked := make([]string, len(roster))
	for i, p := range roster {
		ranked[i] = p.Address
	}

	if err := c.ledger.AdvanceToFinal(ctx, t.ID); err != nil {
		return
	}
	if err := c.ledger.CompleteTournament(ctx, t.ID); err != nil {
		return
	}
	if err := c.ledger.SetFinalRankings(ctx, t.ID, ranked); err != nil {
		return
	}

	t.mu.Lock()
	t.State = protocol.TournamentComplete
	t.mu.Unlock()

	c.hub.Broadcast(protocol.EventTournamentComplete, tournamentCompletePayload{TournamentID: t.ID, Rankings: ranked})
}

// payoutFor derives the points award for a finished match from its
// final snapshot, covering both a clean reveal and a choice timeout.
func payoutFor(m match.Match) (protocol.Result, protocol.Payout) {
	if m.A.Submitted && m.B.Submitted {
		return protocol.Settle(m.A.Choice, m.B.Choice)
	}
	return 0, protocol.TimeoutPayout(m.A.Submitted, m.B.Submitted)
}

var errUnknownTournament = &unknownTournamentError{}

type unknownTournamentError struct{}

func (e *unknownTournamentError) Error() string { return "unknown tournament" }
