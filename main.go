package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"staywatch/browser"
	"staywatch/config"
	"staywatch/logging"
	"staywatch/notify"
	"staywatch/processor"
	"staywatch/scheduler"
	"staywatch/selectors"
	"staywatch/server"
	"staywatch/services"
	"staywatch/storage"
	"staywatch/workers"
)

var (
	checkNow = flag.Bool("check", false, "Run one check cycle and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting staywatch...")
	log.Printf("Loaded %d platform configs", len(cfg.Platforms))

	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	settingsService := services.NewSettingsService(pgStore, cfg)
	selectorCache := selectors.NewCache(pgStore, nil, selectors.DefaultTTL, cfg.Platforms)

	launcher, err := browser.NewPlaywrightLauncher()
	if err != nil {
		log.Fatalf("Failed to start playwright: %v", err)
	}
	defer launcher.Stop()

	pool := browser.NewPool(cfg.Checker.PoolSize, launcher.Launch)
	if err := pool.Init(); err != nil {
		log.Fatalf("Failed to initialize browser pool: %v", err)
	}
	defer pool.Close()
	log.Printf("Browser pool ready (%d instances)", pool.Size())

	notifier := notify.New(cfg.Notify.APIBase)
	proc := processor.New(pgStore, sqliteStore, pool, selectorCache, settingsService, notifier)

	if *checkNow {
		log.Println("Running check cycle...")
		if err := proc.RunCycle(ctx); err != nil {
			log.Fatalf("Cycle failed: %v", err)
		}
		log.Println("Cycle complete!")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, proc, selectorCache, sqliteStore)

	retentionWorker := workers.NewRetentionWorker(pgStore, settingsService)
	sched.SetWorkers(retentionWorker)
	go retentionWorker.Run(ctx, 6*time.Hour)
	log.Println("Retention worker started")

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	ctrl := server.New(cfg.ControlAddr, cfg.ControlToken, proc, selectorCache, sqliteStore)
	ctrl.Start()

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		log.Printf("Control API shutdown error: %v", err)
	}
	// Drain before canceling: in-flight checks keep a live context until
	// the shutdown timeout passes, so their outcomes still get persisted.
	sched.Stop()
	cancel()
	log.Println("Goodbye!")
}

// maskConnectionString masks the password in a connection string for logging.
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
