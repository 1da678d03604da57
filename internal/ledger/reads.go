package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/signalsgame/orchestrator/internal/protocol"
)

// Tuple-shaped destinations for single-tuple contract outputs. Field
// names must match the ABI component names (capitalized) for abi.Unpack
// to populate them by reflection — the manual-binding equivalent of
// what abigen would otherwise generate.
type matchTuple struct {
	AgentA        common.Address
	AgentB        common.Address
	TournamentId  *big.Int
	Round         *big.Int
	State         uint8
	Result        uint8
	PhaseDeadline *big.Int
}

type poolTuple struct {
	State      uint8
	TotalStake *big.Int
}

type oddsTuple struct {
	SplitSplitBps *big.Int
	AStealsBps    *big.Int
	BStealsBps    *big.Int
	StealStealBps *big.Int
}

type agentStatsTuple struct {
	Wins   *big.Int
	Losses *big.Int
	Draws  *big.Int
	Points *big.Int
}

type betTuple struct {
	Bettor  common.Address
	MatchId *big.Int
	Outcome uint8
	Amount  *big.Int
}

type tournamentTuple struct {
	State       uint8
	Round       *big.Int
	TotalRounds *big.Int
	EntryStake  *big.Int
}

type playerStatsTuple struct {
	Points *big.Int
	Played *big.Int
}

type agentInfoTuple struct {
	Id     *big.Int
	Wallet common.Address
	Name   string
}

// GetMatch returns the contract's current view of a match.
func (g *Gateway) GetMatch(ctx context.Context, matchID uint64) (MatchView, error) {
	if cached, ok := g.caches.matches.get(matchID); ok {
		return cached, nil
	}

	var t matchTuple
	out := []interface{}{&t}
	if err := g.callGame(ctx, &out, "getMatch", new(big.Int).SetUint64(matchID)); err != nil {
		return MatchView{}, fmt.Errorf("getMatch(%d): %w", matchID, err)
	}

	view := MatchView{
		MatchID:       matchID,
		AgentA:        strings.ToLower(t.AgentA.Hex()),
		AgentB:        strings.ToLower(t.AgentB.Hex()),
		TournamentID:  t.TournamentId.Uint64(),
		Round:         t.Round.Uint64(),
		State:         t.State,
		Result:        protocol.Result(t.Result),
		PhaseDeadline: t.PhaseDeadline.Uint64(),
	}

	const settledState = 3 // matches the MATCH_SETTLED contract state value
	if t.State == settledState {
		g.caches.matches.setForever(matchID, view)
	}
	return view, nil
}

// GetPool returns the betting pool state for a match.
func (g *Gateway) GetPool(ctx context.Context, matchID uint64) (PoolView, error) {
	var t poolTuple
	out := []interface{}{&t}
	if err := g.callGame(ctx, &out, "getPool", new(big.Int).SetUint64(matchID)); err != nil {
		return PoolView{}, fmt.Errorf("getPool(%d): %w", matchID, err)
	}
	return PoolView{State: protocol.PoolState(t.State), TotalStake: t.TotalStake}, nil
}

// GetOdds returns the per-outcome implied odds for a match's pool.
func (g *Gateway) GetOdds(ctx context.Context, matchID uint64) (OddsView, error) {
	var t oddsTuple
	out := []interface{}{&t}
	if err := g.callGame(ctx, &out, "getOdds", new(big.Int).SetUint64(matchID)); err != nil {
		return OddsView{}, fmt.Errorf("getOdds(%d): %w", matchID, err)
	}
	return OddsView(t), nil
}

// GetOutcomePools returns the four raw outcome pool totals backing GetOdds.
func (g *Gateway) GetOutcomePools(ctx context.Context, matchID uint64) ([4]*big.Int, error) {
	var pools [4]*big.Int
	out := []interface{}{&pools}
	if err := g.callGame(ctx, &out, "getOutcomePools", new(big.Int).SetUint64(matchID)); err != nil {
		return pools, fmt.Errorf("getOutcomePools(%d): %w", matchID, err)
	}
	return pools, nil
}

// ChoiceNonce returns the next valid signing nonce for an agent,
// cached for 30s.
func (g *Gateway) ChoiceNonce(ctx context.Context, agent string) (uint64, error) {
	key := strings.ToLower(agent)
	if n, ok := g.caches.choiceNonce.get(key); ok {
		return n, nil
	}
	var nonce *big.Int
	out := []interface{}{&nonce}
	if err := g.callGame(ctx, &out, "choiceNonces", common.HexToAddress(agent)); err != nil {
		return 0, fmt.Errorf("choiceNonces(%s): %w", agent, err)
	}
	n := nonce.Uint64()
	g.caches.choiceNonce.set(key, n)
	return n, nil
}

// GetAgentStats returns one agent's cumulative record, cached for 60s
// and invalidated on every settlement.
func (g *Gateway) GetAgentStats(ctx context.Context, agent string) (AgentStats, error) {
	key := strings.ToLower(agent)
	if cached, ok := g.caches.agentStats.get(key); ok {
		return cached, nil
	}
	var t agentStatsTuple
	out := []interface{}{&t}
	if err := g.callGame(ctx, &out, "getAgentStats", common.HexToAddress(agent)); err != nil {
		return AgentStats{}, fmt.Errorf("getAgentStats(%s): %w", agent, err)
	}
	stats := AgentStats(t)
	g.caches.agentStats.set(key, stats)
	return stats, nil
}

// GetManyAgentStats reads stats for N agents. Cached agents are served
// from the stats cache; every other agent is fetched with its own
// getAgentStats call, concurrently, and the results are merged into one
// map keyed by lowercase address. No single RPC returns all N agents'
// stats. On failure the first error is returned with whatever stats did
// load.
func (g *Gateway) GetManyAgentStats(ctx context.Context, agents []string) (map[string]AgentStats, error) {
	result := make(map[string]AgentStats, len(agents))
	var missing []string
	for _, a := range agents {
		key := strings.ToLower(a)
		if cached, ok := g.caches.agentStats.get(key); ok {
			result[key] = cached
		} else {
			missing = append(missing, a)
		}
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error
	for _, a := range missing {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			stats, err := g.GetAgentStats(ctx, agent)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			result[strings.ToLower(agent)] = stats
		}(a)
	}
	wg.Wait()
	return result, firstErr
}

// GetAgentMatchIds returns a page of matchIds an agent participated in.
func (g *Gateway) GetAgentMatchIds(ctx context.Context, agent string, offset, limit uint64) ([]uint64, error) {
	var ids []*big.Int
	out := []interface{}{&ids}
	if err := g.callGame(ctx, &out, "getAgentMatchIds", common.HexToAddress(agent), new(big.Int).SetUint64(offset), new(big.Int).SetUint64(limit)); err != nil {
		return nil, fmt.Errorf("getAgentMatchIds(%s): %w", agent, err)
	}
	return toUint64Slice(ids), nil
}

// GetTournamentMatchIds returns every matchId created for a tournament.
func (g *Gateway) GetTournamentMatchIds(ctx context.Context, tournamentID uint64) ([]uint64, error) {
	var ids []*big.Int
	out := []interface{}{&ids}
	if err := g.callGame(ctx, &out, "getTournamentMatchIds", new(big.Int).SetUint64(tournamentID)); err != nil {
		return nil, fmt.Errorf("getTournamentMatchIds(%d): %w", tournamentID, err)
	}
	return toUint64Slice(ids), nil
}

// GetBet returns one stored bet by id.
func (g *Gateway) GetBet(ctx context.Context, betID uint64) (BetView, error) {
	var t betTuple
	out := []interface{}{&t}
	if err := g.callGame(ctx, &out, "getBet", new(big.Int).SetUint64(betID)); err != nil {
		return BetView{}, fmt.Errorf("getBet(%d): %w", betID, err)
	}
	return BetView{
		Bettor:  strings.ToLower(t.Bettor.Hex()),
		MatchID: t.MatchId.Uint64(),
		Outcome: t.Outcome,
		Amount:  t.Amount,
	}, nil
}

// GetBettorMatchIds returns a page of matchIds a bettor has wagered on.
func (g *Gateway) GetBettorMatchIds(ctx context.Context, bettor string, offset, limit uint64) ([]uint64, error) {
	var ids []*big.Int
	out := []interface{}{&ids}
	if err := g.callGame(ctx, &out, "getBettorMatchIds", common.HexToAddress(bettor), new(big.Int).SetUint64(offset), new(big.Int).SetUint64(limit)); err != nil {
		return nil, fmt.Errorf("getBettorMatchIds(%s): %w", bettor, err)
	}
	return toUint64Slice(ids), nil
}

// GetTournament returns a tournament's current state.
func (g *Gateway) GetTournament(ctx context.Context, tournamentID uint64) (TournamentView, error) {
	var t tournamentTuple
	out := []interface{}{&t}
	if err := g.callGame(ctx, &out, "tournaments", new(big.Int).SetUint64(tournamentID)); err != nil {
		return TournamentView{}, fmt.Errorf("tournaments(%d): %w", tournamentID, err)
	}
	return TournamentView{
		State:       protocol.TournamentState(t.State),
		Round:       t.Round.Uint64(),
		TotalRounds: t.TotalRounds.Uint64(),
		EntryStake:  t.EntryStake,
	}, nil
}

// GetPlayerStats returns one player's standing within a tournament.
func (g *Gateway) GetPlayerStats(ctx context.Context, tournamentID uint64, agent string) (PlayerStatsView, error) {
	var t playerStatsTuple
	out := []interface{}{&t}
	if err := g.callGame(ctx, &out, "getPlayerStats", new(big.Int).SetUint64(tournamentID), common.HexToAddress(agent)); err != nil {
		return PlayerStatsView{}, fmt.Errorf("getPlayerStats(%d,%s): %w", tournamentID, agent, err)
	}
	return PlayerStatsView(t), nil
}

// GetTournamentPlayers returns every agent registered for a tournament.
func (g *Gateway) GetTournamentPlayers(ctx context.Context, tournamentID uint64) ([]string, error) {
	var addrs []common.Address
	out := []interface{}{&addrs}
	if err := g.callGame(ctx, &out, "getTournamentPlayers", new(big.Int).SetUint64(tournamentID)); err != nil {
		return nil, fmt.Errorf("getTournamentPlayers(%d): %w", tournamentID, err)
	}
	players := make([]string, len(addrs))
	for i, a := range addrs {
		players[i] = strings.ToLower(a.Hex())
	}
	return players, nil
}

// IsRegistered reports whether a wallet has a registered agent identity,
// cached for 300s.
func (g *Gateway) IsRegistered(ctx context.Context, wallet string) (bool, error) {
	key := strings.ToLower(wallet)
	if cached, ok := g.caches.registration.get(key); ok {
		return cached, nil
	}
	var registered bool
	out := []interface{}{&registered}
	if err := g.callIdentity(ctx, &out, "isRegistered", common.HexToAddress(wallet)); err != nil {
		return false, fmt.Errorf("isRegistered(%s): %w", wallet, err)
	}
	g.caches.registration.set(key, registered)
	return registered, nil
}

// GetAgentByWallet resolves a wallet's registered identity.
func (g *Gateway) GetAgentByWallet(ctx context.Context, wallet string) (AgentInfo, error) {
	key := strings.ToLower(wallet)
	if name, ok := g.caches.agentNames.get(key); ok {
		return AgentInfo{Wallet: key, Name: name}, nil
	}
	var t agentInfoTuple
	out := []interface{}{&t}
	if err := g.callIdentity(ctx, &out, "getAgentByWallet", common.HexToAddress(wallet)); err != nil {
		return AgentInfo{}, fmt.Errorf("getAgentByWallet(%s): %w", wallet, err)
	}
	info := AgentInfo{ID: t.Id.Uint64(), Wallet: strings.ToLower(t.Wallet.Hex()), Name: t.Name}
	g.caches.agentNames.setForever(key, info.Name)
	return info, nil
}

// AgentCount returns the total number of registered agents.
func (g *Gateway) AgentCount(ctx context.Context) (uint64, error) {
	var count *big.Int
	out := []interface{}{&count}
	if err := g.callIdentity(ctx, &out, "agentCount"); err != nil {
		return 0, fmt.Errorf("agentCount: %w", err)
	}
	return count.Uint64(), nil
}

// GetAgents returns a page of the identity registry starting at startId.
func (g *Gateway) GetAgents(ctx context.Context, startID, count uint64) ([]AgentInfo, error) {
	var agents []agentInfoTuple
	out := []interface{}{&agents}
	if err := g.callIdentity(ctx, &out, "getAgents", new(big.Int).SetUint64(startID), new(big.Int).SetUint64(count)); err != nil {
		return nil, fmt.Errorf("getAgents(%d,%d): %w", startID, count, err)
	}
	infos := make([]AgentInfo, len(agents))
	for i, t := range agents {
		infos[i] = AgentInfo{ID: t.Id.Uint64(), Wallet: strings.ToLower(t.Wallet.Hex()), Name: t.Name}
	}
	return infos, nil
}

func toUint64Slice(ints []*big.Int) []uint64 {
	out := make([]uint64, len(ints))
	for i, n := range ints {
		out[i] = n.Uint64()
	}
	return out
}

// GetLeaderboard ranks every registered agent by points, cached for 30s
// and invalidated on every settlement. Stats are fetched through
// GetManyAgentStats so repeat leaderboard reads reuse the 60s agent
// stats cache instead of re-querying the chain per agent.
func (g *Gateway) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	cacheKey := fmt.Sprintf("top:%d", limit)
	if cached, ok := g.caches.leaderboard.get(cacheKey); ok {
		return cached, nil
	}

	count, err := g.AgentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("leaderboard agent count: %w", err)
	}
	agents, err := g.GetAgents(ctx, 0, count)
	if err != nil {
		return nil, fmt.Errorf("leaderboard agent list: %w", err)
	}

	wallets := make([]string, len(agents))
	for i, a := range agents {
		wallets[i] = a.Wallet
	}
	stats, err := g.GetManyAgentStats(ctx, wallets)
	if err != nil {
		return nil, fmt.Errorf("leaderboard stats: %w", err)
	}

	entries := make([]LeaderboardEntry, 0, len(agents))
	for _, a := range agents {
		s := stats[a.Wallet]
		entries = append(entries, LeaderboardEntry{
			Agent:  a.Wallet,
			Name:   a.Name,
			Points: bigOrZero(s.Points),
			Wins:   bigOrZero(s.Wins),
			Losses: bigOrZero(s.Losses),
			Draws:  bigOrZero(s.Draws),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Points > entries[j].Points })
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	g.caches.leaderboard.set(cacheKey, entries)
	return entries, nil
}

func bigOrZero(n *big.Int) int64 {
	if n == nil {
		return 0
	}
	return n.Int64()
}
