package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"wager-exchange/internal/account"
	"wager-exchange/internal/config"
	"wager-exchange/internal/eventbus"
	"wager-exchange/internal/httpapi"
	"wager-exchange/internal/ledger"
	"wager-exchange/internal/marketdata"
	repomem "wager-exchange/internal/repository/memory"
	repopg "wager-exchange/internal/repository/postgres"
	"wager-exchange/internal/wshub"

	"wager-exchange/internal/engine"
	"wager-exchange/internal/repository"
)

func main() {
	cfg, err := config.Load(envOrDefault("WAGER_CONFIG_FILE", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.With().Str("component", "main").Logger()

	var repo repository.Repository
	switch cfg.DatabaseType {
	case "postgres":
		store, err := repopg.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("postgres open")
		}
		if err := store.Migrate("internal/repository/postgres/migrations"); err != nil {
			log.Fatal().Err(err).Msg("postgres migrate")
		}
		repo = store
		log.Info().Msg("connected to postgres repository")
	default:
		repo = repomem.New()
		log.Info().Msg("using in-memory repository")
	}

	bus := eventbus.New()
	lg := ledger.New(repo, cfg.FeeRate)

	eng, err := engine.New(cfg.Market, repo, bus, lg)
	if err != nil {
		log.Fatal().Err(err).Str("market", cfg.Market).Msg("engine init")
	}

	marketdata.New(eng, bus, cfg.RecentEventsCapacity)

	hub := wshub.NewHub()
	hub.Subscribe(cfg.Market, eng, bus)

	// Admin identity is resolved externally per spec.md §9: here, via an
	// env-var allowlist. A real deployment would swap in an RBAC lookup
	// without touching internal/account.
	isAdmin := adminAllowlist(os.Getenv("WAGER_ADMIN_USER_IDS"))

	facade := account.New(cfg.Market, eng, lg, repo, bus, cfg.WithdrawalApprovalsRequired, isAdmin)

	srv := httpapi.NewServer(facade, repo, cfg.JWTSecret)
	router := srv.Router()

	mux := http.NewServeMux()
	mux.Handle("/ws", http.HandlerFunc(hub.HandleWS))
	mux.Handle("/", router)

	log.Info().Str("addr", cfg.ListenAddr).Str("market", cfg.Market).Msg("listening")
	if err := http.ListenAndServe(cfg.ListenAddr, mux); err != nil {
		log.Fatal().Err(err).Msg("server")
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// adminAllowlist builds an account.AdminPredicate from a comma-separated
// list of user ids (WAGER_ADMIN_USER_IDS).
func adminAllowlist(csv string) account.AdminPredicate {
	ids := make(map[string]bool)
	start := 0
	for i := 0; i <= len(csv); i++ {
		if i == len(csv) || csv[i] == ',' {
			if id := csv[start:i]; id != "" {
				ids[id] = true
			}
			start = i + 1
		}
	}
	return func(userID string) bool { return ids[userID] }
}
