package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	core "homefi-backend/core/project"
	mw "homefi-backend/middleware/project"
	"homefi-backend/services"
	storage "homefi-backend/storage/project"
)

type config struct {
	Port        string
	StoreDriver string
	PGDSN       string
	Currency    string
	FeeRate     int64
	Treasury    string
	Arbitrator  string
	Community   string
	APIKeys     string
	VaultSeed   string
	Metrics     bool
}

func loadConfig() config {
	feeRate := int64(20)
	if raw := os.Getenv("HOMEFI_FEE_RATE"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v >= 0 && v < 1000 {
			feeRate = v
		}
	}

	metrics := true
	if raw := os.Getenv("HOMEFI_METRICS"); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			metrics = v
		}
	}

	return config{
		Port:        envDefault("HOMEFI_PORT", "8080"),
		StoreDriver: envDefault("HOMEFI_STORE_DRIVER", "memory"),
		PGDSN:       os.Getenv("HOMEFI_PG_DSN"),
		Currency:    envDefault("HOMEFI_CURRENCY", "project-currency"),
		FeeRate:     feeRate,
		Treasury:    os.Getenv("HOMEFI_TREASURY"),
		Arbitrator:  os.Getenv("HOMEFI_ARBITRATOR"),
		Community:   os.Getenv("HOMEFI_COMMUNITY"),
		APIKeys:     os.Getenv("HOMEFI_API_KEYS"),
		VaultSeed:   os.Getenv("HOMEFI_VAULT_SEED"),
		Metrics:     metrics,
	}
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseAPIKeys parses "key:address,key:address" pairs.
func parseAPIKeys(raw string) map[string]core.Address {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	callers := make(map[string]core.Address)
	for _, pair := range strings.Split(raw, ",") {
		key, addr, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || key == "" || addr == "" {
			log.Printf("skipping malformed api key pair %q", pair)
			continue
		}
		callers[key] = core.Address(addr)
	}
	return callers
}

// seedVault credits external accounts from "address:amount" pairs.
func seedVault(vault *services.MemoryVault, currency core.Address, raw string) {
	if strings.TrimSpace(raw) == "" {
		return
	}
	for _, pair := range strings.Split(raw, ",") {
		addr, amountStr, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			continue
		}
		amount, err := strconv.ParseInt(amountStr, 10, 64)
		if err != nil || amount <= 0 {
			continue
		}
		vault.Credit(currency, core.Address(addr), amount)
	}
}

func main() {
	cfg := loadConfig()
	ctx := context.Background()

	var store storage.Store
	var err error
	switch cfg.StoreDriver {
	case "postgres":
		if cfg.PGDSN == "" {
			log.Fatal("HOMEFI_PG_DSN required when HOMEFI_STORE_DRIVER=postgres")
		}
		store, err = storage.NewPGStore(ctx, cfg.PGDSN)
		if err != nil {
			log.Fatalf("failed to init store: %v", err)
		}
	default:
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	registry := core.StaticRegistry{Params: core.ProjectParams{
		Currency:   core.Address(cfg.Currency),
		FeeRate:    cfg.FeeRate,
		Treasury:   core.Address(cfg.Treasury),
		Arbitrator: core.Address(cfg.Arbitrator),
		Community:  core.Address(cfg.Community),
	}}
	vault := services.NewMemoryVault()
	seedVault(vault, core.Address(cfg.Currency), cfg.VaultSeed)
	custodian := services.NewCustodian(store, vault, registry)

	srv := mw.NewServer(custodian, parseAPIKeys(cfg.APIKeys))
	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	if cfg.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mw.RegisterEventSink(func(evt core.Event) {
		log.Printf("event %s project=%s", evt.Type, evt.ProjectID)
	})

	log.Printf("HomeFi ledger backend listening on :%s (driver=%s)", cfg.Port, cfg.StoreDriver)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, mux))
}
