package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"VaultTreasury/internal/config"
	"VaultTreasury/internal/notifier"
	"VaultTreasury/internal/recorder"
	"VaultTreasury/internal/scheduler"
	"VaultTreasury/internal/sim"
	"VaultTreasury/internal/treasury"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] VaultTreasury starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init simulated chain
	world, err := sim.LoadState(cfg.Sim.StateFile, nil)
	if err != nil {
		log.Fatalf("[FATAL] load sim state: %v", err)
	}
	fresh := world == nil
	if fresh {
		genesis, err := cfg.Genesis()
		if err != nil {
			log.Fatalf("[FATAL] sim genesis: %v", err)
		}
		if world, err = sim.Build(genesis, nil); err != nil {
			log.Fatalf("[FATAL] build sim world: %v", err)
		}
		log.Printf("[INFO] built fresh sim world with %d vaults", len(world.Vaults()))
	} else {
		log.Printf("[INFO] restored sim world from %s", cfg.Sim.StateFile)
	}

	// Init recorder
	var rec recorder.Recorder
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			rec = recorder.NewNoopRecorder()
		} else {
			rec = sr
			defer sr.Close()
		}
	} else {
		rec = recorder.NewNoopRecorder()
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("[ERROR] metrics server: %v", err)
		}
	}()
	log.Printf("[INFO] metrics listening on %s", cfg.Metrics.ListenAddr)

	// Init treasury engine
	eng, err := treasury.NewEngine(treasury.Config{
		Owner:          cfg.Treasury.Owner,
		Address:        cfg.Treasury.Address,
		StableCoin:     cfg.Treasury.StableCoin,
		Backend:        world,
		Recorder:       rec,
		Registry:       reg,
		StateFile:      cfg.Treasury.StateFile,
		DeadlineWindow: cfg.Treasury.DeadlineWindow,
		Now:            world.Now,
	})
	if err != nil {
		log.Fatalf("[FATAL] init treasury: %v", err)
	}
	if fresh && eng.Len() > 0 {
		log.Fatalf("[FATAL] %s has %d vaults but the sim world is new; remove it or restore %s",
			cfg.Treasury.StateFile, eng.Len(), cfg.Sim.StateFile)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if eng.Len() == 0 {
		if err := bootstrap(ctx, cfg, world, eng); err != nil {
			log.Fatalf("[FATAL] bootstrap treasury: %v", err)
		}
	}

	// Init notifier
	var sender notifier.Sender = notifier.LogNotifier{}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	} else {
		log.Println("[WARN] telegram not configured, reports go to the log")
	}

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, eng, world, sender, rec, cfg.Treasury.Owner)
	sched.SimStateFile = cfg.Sim.StateFile
	sched.SaveWorld()
	if err := sched.RegisterAll(cfg.Schedule.YieldCron, cfg.Schedule.DistributeCron, cfg.Schedule.AccrueCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing yield report now")
		go sched.RunYieldNow()
	}

	log.Println("[INFO] VaultTreasury is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	sched.SaveWorld()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] metrics shutdown: %v", err)
	}
	log.Println("[INFO] VaultTreasury stopped")
}

// bootstrap registers the configured vaults and makes the initial deposit.
func bootstrap(ctx context.Context, cfg *config.Config, world *sim.World, eng *treasury.Engine) error {
	owner := cfg.Treasury.Owner
	for _, v := range cfg.Sim.Vaults {
		weight, err := config.ParseAmount(v.Weight)
		if err != nil {
			return err
		}
		index, err := eng.AddVault(ctx, owner, v.Address, weight)
		if err != nil {
			return err
		}
		log.Printf("[INFO] registered vault #%d %s with weight %s", index, v.Address.Hex(), weight.Dec())
	}

	amount, err := config.ParseAmount(cfg.Treasury.InitialDeposit)
	if err != nil || amount.IsZero() {
		return err
	}
	if err := world.Mint(cfg.Treasury.StableCoin, owner, amount); err != nil {
		return err
	}
	token, err := world.Token(cfg.Treasury.StableCoin)
	if err != nil {
		return err
	}
	if err := token.Approve(ctx, owner, cfg.Treasury.Address, new(uint256.Int).Set(amount)); err != nil {
		return err
	}
	if err := eng.Deposit(ctx, owner, amount); err != nil {
		return err
	}
	log.Printf("[INFO] deposited %s into the treasury", amount.Dec())
	return nil
}
