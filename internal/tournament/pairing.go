package tournament

import (
	"math/rand"
	"sort"
)

// pairRoundOne randomly shuffles the roster and pairs it sequentially;
// on an odd count the last player after the shuffle sits out as bye.
func pairRoundOne(roster []*Player) ([][2]string, string) {
	shuffled := make([]*Player, len(roster))
	copy(shuffled, roster)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	var byeAgent string
	if len(shuffled)%2 == 1 {
		byeAgent = shuffled[len(shuffled)-1].Address
		shuffled = shuffled[:len(shuffled)-1]
	}

	pairs := make([][2]string, 0, len(shuffled)/2)
	for i := 0; i+1 < len(shuffled); i += 2 {
		pairs = append(pairs, [2]string{shuffled[i].Address, shuffled[i+1].Address})
	}
	return pairs, byeAgent
}

// pairSwiss sorts by points descending and greedily pairs adjacent
// unpaired players, preferring an opponent not yet played; the last
// unpaired pair accepts a rematch rather than going unpaired.
func pairSwiss(roster []*Player, pastOpponents map[string]map[string]bool) ([][2]string, string) {
	sorted := make([]*Player, len(roster))
	copy(sorted, roster)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Points > sorted[j].Points })

	var byeAgent string
	if len(sorted)%2 == 1 {
		byeAgent = chooseBye(sorted)
		sorted = removeAddress(sorted, byeAgent)
	}

	paired := make(map[string]bool, len(sorted))
	var pairs [][2]string

	for i, p := range sorted {
		if paired[p.Address] {
			continue
		}
		opponent := findOpponent(sorted, i, paired, pastOpponents[p.Address])
		if opponent == "" {
			// No rematch-free candidate left; accept the nearest
			// unpaired player even if it's a rematch.
			opponent = findOpponent(sorted, i, paired, nil)
		}
		if opponent == "" {
			continue
		}
		paired[p.Address] = true
		paired[opponent] = true
		pairs = append(pairs, [2]string{p.Address, opponent})
	}
	return pairs, byeAgent
}

func findOpponent(sorted []*Player, from int, paired map[string]bool, played map[string]bool) string {
	for j := from + 1; j < len(sorted); j++ {
		cand := sorted[j].Address
		if paired[cand] {
			continue
		}
		if played != nil && played[cand] {
			continue
		}
		return cand
	}
	return ""
}

// chooseBye picks the lowest-ranked player who has not yet had a bye;
// if every player has had one, the lowest-ranked player overall.
func chooseBye(sortedDesc []*Player) string {
	for i := len(sortedDesc) - 1; i >= 0; i-- {
		if !sortedDesc[i].HadBye {
			return sortedDesc[i].Address
		}
	}
	return sortedDesc[len(sortedDesc)-1].Address
}

func removeAddress(players []*Player, address string) []*Player {
	out := make([]*Player, 0, len(players))
	for _, p := range players {
		if p.Address != address {
			out = append(out, p)
		}
	}
	return out
}
