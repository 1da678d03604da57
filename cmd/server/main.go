package main

import (
	"context"
	"log"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/signalsgame/orchestrator/internal/auth"
	"github.com/signalsgame/orchestrator/internal/broadcast"
	"github.com/signalsgame/orchestrator/internal/config"
	"github.com/signalsgame/orchestrator/internal/gateway"
	"github.com/signalsgame/orchestrator/internal/ledger"
	"github.com/signalsgame/orchestrator/internal/match"
	"github.com/signalsgame/orchestrator/internal/quickqueue"
	"github.com/signalsgame/orchestrator/internal/signing"
	"github.com/signalsgame/orchestrator/internal/tournament"
	"github.com/signalsgame/orchestrator/internal/tournamentqueue"
)

func main() {
	cfg := config.Load()

	ctx := context.Background()
	ledgerGW, err := ledger.New(ctx, cfg)
	if err != nil {
		log.Fatalf("[MAIN] failed to initialize ledger gateway: %v", err)
	}

	hub := broadcast.NewHub()

	domain := signing.Domain{
		ChainID:           cfg.ChainID,
		VerifyingContract: common.HexToAddress(cfg.GameContractAddress),
	}

	engine := match.NewEngine(cfg, hub, ledgerGW, domain)

	quick := quickqueue.New(cfg, hub, ledgerGW, engine, engine)
	tournaments := tournament.New(cfg, hub, ledgerGW, engine)
	tqueue := tournamentqueue.New(cfg, hub, ledgerGW, domain, tournaments, quick, engine)

	challenges := auth.NewChallengeStore(cfg.AuthChallengeTTL)
	stopSweeper := challenges.StartSweeper(30)
	defer stopSweeper()
	sessions := auth.NewSessionIssuer(cfg.JWTSecret, cfg.SessionTokenTTL)

	srv := gateway.New(cfg, hub, ledgerGW, engine, quick, tournaments, tqueue, challenges, sessions)

	log.Printf("[MAIN] starting orchestrator on port %s (chainId=%d, env=%s)", cfg.Port, cfg.ChainID, cfg.Environment)
	if err := http.ListenAndServe(":"+cfg.Port, srv.Routes()); err != nil {
		log.Fatalf("[MAIN] server exited: %v", err)
	}
}
