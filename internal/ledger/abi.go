package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Hand-written ABI fragments for the game contract, identity registry, and
// multicall aggregator. The orchestrator has no Solidity build step of its
// own (the contracts live in a separate repo), so these are maintained by
// hand the way abigen-less Go clients keep a trimmed ABI JSON alongside the
// Go source, rather than generated.
const gameContractABIJSON = `[
  {"type":"function","name":"createQuickMatchBatch","stateMutability":"nonpayable",
   "inputs":[{"name":"pairs","type":"tuple[]","components":[
      {"name":"agentA","type":"address"},{"name":"agentB","type":"address"}]}],
   "outputs":[]},
  {"type":"function","name":"createTournamentMatchBatch","stateMutability":"nonpayable",
   "inputs":[{"name":"tournamentId","type":"uint256"},
      {"name":"pairs","type":"tuple[]","components":[
         {"name":"agentA","type":"address"},{"name":"agentB","type":"address"}]},
      {"name":"windowSec","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"settleMultiple","stateMutability":"nonpayable",
   "inputs":[{"name":"settlements","type":"tuple[]","components":[
      {"name":"matchId","type":"uint256"},
      {"name":"choiceA","type":"uint8"},{"name":"nonceA","type":"uint256"},{"name":"sigA","type":"bytes"},
      {"name":"choiceB","type":"uint8"},{"name":"nonceB","type":"uint256"},{"name":"sigB","type":"bytes"}]}],
   "outputs":[]},
  {"type":"function","name":"settleTimeout","stateMutability":"nonpayable",
   "inputs":[{"name":"matchId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"settlePartialTimeout","stateMutability":"nonpayable",
   "inputs":[{"name":"matchId","type":"uint256"},{"name":"choice","type":"uint8"},
      {"name":"nonce","type":"uint256"},{"name":"sig","type":"bytes"},{"name":"aTimedOut","type":"bool"}],
   "outputs":[]},
  {"type":"function","name":"closeBetting","stateMutability":"nonpayable",
   "inputs":[{"name":"matchId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"closeBettingBatch","stateMutability":"nonpayable",
   "inputs":[{"name":"ids","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"createTournament","stateMutability":"nonpayable",
   "inputs":[{"name":"entryStake","type":"uint256"},{"name":"minPlayers","type":"uint256"},
      {"name":"maxPlayers","type":"uint256"},{"name":"totalRounds","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"startTournament","stateMutability":"nonpayable",
   "inputs":[{"name":"tournamentId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"cancelTournament","stateMutability":"nonpayable",
   "inputs":[{"name":"tournamentId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"advanceToFinal","stateMutability":"nonpayable",
   "inputs":[{"name":"tournamentId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"completeTournament","stateMutability":"nonpayable",
   "inputs":[{"name":"tournamentId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"setFinalRankings","stateMutability":"nonpayable",
   "inputs":[{"name":"tournamentId","type":"uint256"},{"name":"addrs","type":"address[]"}],"outputs":[]},
  {"type":"function","name":"joinTournamentFor","stateMutability":"nonpayable",
   "inputs":[{"name":"tournamentId","type":"uint256"},{"name":"agent","type":"address"},
      {"name":"nonce","type":"uint256"},{"name":"joinSig","type":"bytes"},
      {"name":"permitDeadline","type":"uint256"},{"name":"v","type":"uint8"},
      {"name":"r","type":"bytes32"},{"name":"s","type":"bytes32"}],
   "outputs":[]},
  {"type":"function","name":"getMatch","stateMutability":"view",
   "inputs":[{"name":"matchId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
      {"name":"agentA","type":"address"},{"name":"agentB","type":"address"},
      {"name":"tournamentId","type":"uint256"},{"name":"round","type":"uint256"},
      {"name":"state","type":"uint8"},{"name":"result","type":"uint8"},
      {"name":"phaseDeadline","type":"uint256"}]}]},
  {"type":"function","name":"getPool","stateMutability":"view",
   "inputs":[{"name":"matchId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
      {"name":"state","type":"uint8"},{"name":"totalStake","type":"uint256"}]}]},
  {"type":"function","name":"getOdds","stateMutability":"view",
   "inputs":[{"name":"matchId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
      {"name":"splitSplitBps","type":"uint256"},{"name":"aStealsBps","type":"uint256"},
      {"name":"bStealsBps","type":"uint256"},{"name":"stealStealBps","type":"uint256"}]}]},
  {"type":"function","name":"getOutcomePools","stateMutability":"view",
   "inputs":[{"name":"matchId","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256[4]"}]},
  {"type":"function","name":"choiceNonces","stateMutability":"view",
   "inputs":[{"name":"agent","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getAgentStats","stateMutability":"view",
   "inputs":[{"name":"agent","type":"address"}],
   "outputs":[{"name":"","type":"tuple","components":[
      {"name":"wins","type":"uint256"},{"name":"losses","type":"uint256"},
      {"name":"draws","type":"uint256"},{"name":"points","type":"uint256"}]}]},
  {"type":"function","name":"getAgentMatchIds","stateMutability":"view",
   "inputs":[{"name":"agent","type":"address"},{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getTournamentMatchIds","stateMutability":"view",
   "inputs":[{"name":"tournamentId","type":"uint256"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getBet","stateMutability":"view",
   "inputs":[{"name":"betId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
      {"name":"bettor","type":"address"},{"name":"matchId","type":"uint256"},
      {"name":"outcome","type":"uint8"},{"name":"amount","type":"uint256"}]}]},
  {"type":"function","name":"getBettorMatchIds","stateMutability":"view",
   "inputs":[{"name":"bettor","type":"address"},{"name":"offset","type":"uint256"},{"name":"limit","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"tournaments","stateMutability":"view",
   "inputs":[{"name":"tournamentId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
      {"name":"state","type":"uint8"},{"name":"round","type":"uint256"},
      {"name":"totalRounds","type":"uint256"},{"name":"entryStake","type":"uint256"}]}]},
  {"type":"function","name":"getPlayerStats","stateMutability":"view",
   "inputs":[{"name":"tournamentId","type":"uint256"},{"name":"agent","type":"address"}],
   "outputs":[{"name":"","type":"tuple","components":[
      {"name":"points","type":"uint256"},{"name":"played","type":"uint256"}]}]},
  {"type":"function","name":"getTournamentPlayers","stateMutability":"view",
   "inputs":[{"name":"tournamentId","type":"uint256"}],"outputs":[{"name":"","type":"address[]"}]},
  {"type":"event","name":"MatchCreated","anonymous":false,"inputs":[
      {"name":"matchId","type":"uint256","indexed":true},
      {"name":"agentA","type":"address","indexed":false},
      {"name":"agentB","type":"address","indexed":false}]},
  {"type":"event","name":"TournamentCreated","anonymous":false,"inputs":[
      {"name":"tournamentId","type":"uint256","indexed":true}]}
]`

const identityRegistryABIJSON = `[
  {"type":"function","name":"isRegistered","stateMutability":"view",
   "inputs":[{"name":"wallet","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"getAgentByWallet","stateMutability":"view",
   "inputs":[{"name":"wallet","type":"address"}],
   "outputs":[{"name":"","type":"tuple","components":[
      {"name":"id","type":"uint256"},{"name":"wallet","type":"address"},{"name":"name","type":"string"}]}]},
  {"type":"function","name":"agentCount","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getAgents","stateMutability":"view",
   "inputs":[{"name":"startId","type":"uint256"},{"name":"count","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple[]","components":[
      {"name":"id","type":"uint256"},{"name":"wallet","type":"address"},{"name":"name","type":"string"}]}]}
]`

func parseGameContractABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(gameContractABIJSON))
}

func parseIdentityRegistryABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(identityRegistryABIJSON))
}
