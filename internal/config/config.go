package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every environment input named in the spec: operator
// key, RPC endpoints, chain id, contract addresses, listen port, and
// timing overrides for each phase/debounce window.
type Config struct {
	// Environment
	Environment string

	// Server
	Port string

	// Redis (optional — holds only the settlement buffer's flush
	// deadlines; TTL caches and debounce timers are always in-memory)
	RedisURL string

	// Ledger / chain
	OperatorPrivateKeyHex   string
	RPCURL                  string
	FallbackRPCURL          string
	ChainID                 int64
	GameContractAddress     string
	TokenContractAddress    string
	IdentityRegistryAddress string
	MultiCallAddress        string

	// Auth
	JWTSecret        string
	AuthChallengeTTL time.Duration
	SessionTokenTTL  time.Duration

	// Match timing
	NegotiationSeconds     int
	ChoiceSeconds          int
	SettlementGraceSeconds int

	// Negotiation message rate limiting (per side, per match)
	NegotiationMessageBurst      int
	NegotiationMessageWindowSecs int

	// Ledger gateway batching/retry
	SettlementFlushMillis       int
	BatchCap                    int
	NonceRetryMax               int
	RateLimitRetryMax           int
	StatsCacheTTLSeconds        int
	ChoiceNonceCacheTTLSeconds  int
	RegistrationCacheTTLSeconds int
	LeaderboardCacheTTLSeconds  int

	// Quick-match queue
	QuickPairDebounceMillis int

	// Tournament queue
	TournamentMinPlayers          int
	TournamentMaxPlayers          int
	TournamentTotalRounds         int
	TournamentRegistrationSeconds int
	TournamentTriggerDelaySeconds int
	TournamentJoinResponseSeconds int
	TournamentEntryStake          int64
	TournamentChoiceWindowSeconds int
}

// Load reads configuration from the environment, applying the same
// defaults-with-override pattern the orchestrator's ambient stack uses
// throughout (.env optional, environment variables win).
func Load() *Config {
	godotenv.Load()

	return &Config{
		Environment: getEnv("APP_ENV", "development"),
		Port:        getEnv("APP_PORT", "8080"),

		RedisURL: getEnv("REDIS_URL", ""),

		OperatorPrivateKeyHex:   getEnv("OPERATOR_PRIVATE_KEY", ""),
		RPCURL:                  getEnv("RPC_URL", "http://localhost:8545"),
		FallbackRPCURL:          getEnv("FALLBACK_RPC_URL", ""),
		ChainID:                 int64(getEnvInt("CHAIN_ID", 1337)),
		GameContractAddress:     getEnv("GAME_CONTRACT_ADDRESS", ""),
		TokenContractAddress:    getEnv("TOKEN_CONTRACT_ADDRESS", ""),
		IdentityRegistryAddress: getEnv("IDENTITY_REGISTRY_ADDRESS", ""),
		MultiCallAddress:        getEnv("MULTICALL_ADDRESS", ""),

		JWTSecret:        getEnv("JWT_SECRET", "change-me-in-production"),
		AuthChallengeTTL: time.Duration(getEnvInt("AUTH_CHALLENGE_TTL_SECONDS", 60)) * time.Second,
		SessionTokenTTL:  time.Duration(getEnvInt("SESSION_TOKEN_TTL_MINUTES", 60)) * time.Minute,

		NegotiationSeconds:     getEnvInt("NEGOTIATION_SECONDS", 45),
		ChoiceSeconds:          getEnvInt("CHOICE_SECONDS", 15),
		SettlementGraceSeconds: getEnvInt("SETTLEMENT_GRACE_SECONDS", 10),

		NegotiationMessageBurst:      getEnvInt("NEGOTIATION_MESSAGE_BURST", 5),
		NegotiationMessageWindowSecs: getEnvInt("NEGOTIATION_MESSAGE_WINDOW_SECONDS", 1),

		SettlementFlushMillis:       getEnvInt("SETTLEMENT_FLUSH_MILLIS", 200),
		BatchCap:                    getEnvInt("BATCH_CAP", 30),
		NonceRetryMax:               getEnvInt("NONCE_RETRY_MAX", 3),
		RateLimitRetryMax:           getEnvInt("RATE_LIMIT_RETRY_MAX", 3),
		StatsCacheTTLSeconds:        getEnvInt("STATS_CACHE_TTL_SECONDS", 60),
		ChoiceNonceCacheTTLSeconds:  getEnvInt("CHOICE_NONCE_CACHE_TTL_SECONDS", 30),
		RegistrationCacheTTLSeconds: getEnvInt("REGISTRATION_CACHE_TTL_SECONDS", 300),
		LeaderboardCacheTTLSeconds:  getEnvInt("LEADERBOARD_CACHE_TTL_SECONDS", 30),

		QuickPairDebounceMillis: getEnvInt("QUICK_PAIR_DEBOUNCE_MILLIS", 200),

		TournamentMinPlayers:          getEnvInt("TOURNAMENT_MIN_PLAYERS", 4),
		TournamentMaxPlayers:          getEnvInt("TOURNAMENT_MAX_PLAYERS", 8),
		TournamentTotalRounds:         getEnvInt("TOURNAMENT_TOTAL_ROUNDS", 3),
		TournamentRegistrationSeconds: getEnvInt("TOURNAMENT_REGISTRATION_SECONDS", 120),
		TournamentTriggerDelaySeconds: getEnvInt("TOURNAMENT_TRIGGER_DELAY_SECONDS", 3),
		TournamentJoinResponseSeconds: getEnvInt("TOURNAMENT_JOIN_RESPONSE_SECONDS", 30),
		TournamentEntryStake:          int64(getEnvInt("TOURNAMENT_ENTRY_STAKE", 1)),
		TournamentChoiceWindowSeconds: getEnvInt("TOURNAMENT_CHOICE_WINDOW_SECONDS", 15),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
