package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"curvesale/config"
	"curvesale/core/events"
	coretypes "curvesale/core/types"
	"curvesale/gateway"
	"curvesale/native/amm"
	"curvesale/native/sale"
	"curvesale/native/token"
	"curvesale/observability/logging"
	"curvesale/storage"
)

// serviceAddress derives a stable ledger identity for an internal component.
func serviceAddress(label string) coretypes.Address {
	digest := ethcrypto.Keccak256([]byte("curvesale/" + label))
	var out coretypes.Address
	copy(out[:], digest[12:])
	return out
}

// slogEmitter forwards engine events to the structured logger.
type slogEmitter struct {
	logger *slog.Logger
}

func (s slogEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *coretypes.Event })
	if !ok {
		s.logger.Info("sale event", "type", evt.EventType())
		return
	}
	raw := carrier.Event()
	args := make([]any, 0, 2*len(raw.Attributes))
	for k, v := range raw.Attributes {
		args = append(args, k, v)
	}
	s.logger.With(args...).Info("sale event", "type", raw.Type)
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./saled.toml", "path to saled configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("saled", cfg.Env, logging.Options{
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
		MaxAgeDay: cfg.LogMaxAge,
	})

	engineAddr := serviceAddress("engine")
	tokenAddr := serviceAddress("token")
	assetAddr := serviceAddress("asset")
	venueAddr := serviceAddress("venue")

	tok := token.NewLedger("Curve Sale Token", "CST", 18, sale.TotalSupplyCap)
	tok.GrantMinter(engineAddr)
	pay := token.NewLedger("Settlement Dollar", "SUSD", 6, nil)
	pay.GrantMinter(cfg.Owner())

	venue, err := amm.NewVenue(venueAddr)
	if err != nil {
		logger.Error("venue construction failed", "error", err)
		os.Exit(1)
	}
	venue.RegisterToken(tokenAddr, tok)
	venue.RegisterToken(assetAddr, pay)

	engine, err := sale.NewEngine(sale.Params{
		Token:        tok,
		Payment:      pay,
		Venue:        venue,
		TokenAddress: tokenAddr,
		AssetAddress: assetAddr,
		Engine:       engineAddr,
		Owner:        cfg.Owner(),
		Creator:      cfg.Creator(),
		Platform:     cfg.Platform(),
		ReserveRatio: cfg.ReserveRatioPPM,
	})
	if err != nil {
		logger.Error("engine construction failed", "error", err)
		os.Exit(1)
	}
	engine.SetEmitter(slogEmitter{logger: logger})

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		logger.Error("open store failed", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	srv := gateway.NewServer(engine, store, logger, gateway.RateLimit{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "address", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen and serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("stopped")
}
