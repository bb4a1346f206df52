package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wfunc/dilemmaview/broadcast"
	"github.com/wfunc/dilemmaview/config"
	"github.com/wfunc/dilemmaview/decode"
	"github.com/wfunc/dilemmaview/ledger"
	"github.com/wfunc/dilemmaview/logger"
	"github.com/wfunc/dilemmaview/models"
	"github.com/wfunc/dilemmaview/monitor"
	"github.com/wfunc/dilemmaview/persistence"
	"github.com/wfunc/dilemmaview/refresh"
	"github.com/wfunc/dilemmaview/rpc"
	"github.com/wfunc/dilemmaview/server"
	"github.com/wfunc/dilemmaview/services"
	"github.com/wfunc/dilemmaview/session"
)

func main() {
	// Initialize logger
	logger.Init()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}

	stake, err := decode.Stake(cfg.Ledger.JoinStake)
	if err != nil {
		logger.Log.Fatalf("Invalid join stake: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 本地模拟账本
	if cfg.Ledger.Simulate {
		ledgerServer, err := rpc.NewServer(cfg.Ledger.RPCAddress, ledger.NewMemory(stake), cfg.Ledger.WriteTimeout)
		if err != nil {
			logger.Log.Fatalf("Failed to create ledger simulator: %v", err)
		}
		go ledgerServer.Start()
		defer ledgerServer.Stop()
		cfg.Ledger.RPCAddress = ledgerServer.Addr()
		logger.Log.Infof("Simulated ledger listening on %s", cfg.Ledger.RPCAddress)
	}

	client, err := rpc.Dial(cfg.Ledger.RPCAddress)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to ledger: %v", err)
	}
	defer client.Close()
	adapter := ledger.NewAdapter(client)

	// Initialize Database
	store, err := persistence.Open(
		cfg.Database.Driver,
		cfg.Database.Postgres.Host,
		cfg.Database.Postgres.Port,
		cfg.Database.Postgres.User,
		cfg.Database.Postgres.Password,
		cfg.Database.Postgres.DBName,
	)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()
	runID := uuid.New().String()
	var startGeneration uint64
	if last, err := store.Latest(ctx); err == nil {
		startGeneration = last.Generation
		logger.Log.Infof("Previous run %s last persisted generation %d at %s", last.RunID, last.Generation, last.PublishedAt)
	} else if !errors.Is(err, persistence.ErrRecordNotFound) {
		logger.Log.Warnf("Failed to load last snapshot: %v", err)
	}

	mon := monitor.NewMonitor(cfg.Server.Namespace, prometheus.NewRegistry())

	account := session.NewAccount()
	if cfg.Identity.Address != "" {
		account.Set(models.Identity(cfg.Identity.Address))
	}

	cache := refresh.NewCache()
	scheduler := refresh.NewScheduler(adapter, cache, account,
		refresh.WithQueryTimeout(cfg.Ledger.QueryTimeout),
		refresh.WithStartGeneration(startGeneration),
		refresh.WithObserver(mon),
	)

	coordinator := services.NewActionCoordinator(adapter, scheduler, account, stake)
	coordinator.SetWriteTimeout(cfg.Ledger.WriteTimeout)
	coordinator.SetRecorder(mon)

	sessionManager := session.NewManager()
	broadcaster := broadcast.NewViewBroadcaster(sessionManager, account)
	scheduler.OnPublish(broadcaster.Publish)
	scheduler.OnPublish(func(snap refresh.Snapshot) {
		actor, _ := account.Current()
		rec := persistence.NewRecord(runID, snap, actor)
		go func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.SaveSnapshot(sctx, rec); err != nil {
				logger.Log.Warnw("save snapshot failed", "generation", rec.Generation, "error", err)
			}
		}()
	})

	go func() {
		if err := unexpectedStop(scheduler.Run(ctx)); err != nil {
			logger.Log.Errorf("Refresh scheduler stopped: %v", err)
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		mon.StartServer(cfg.Server.MetricsAddress)
	}

	viewServer := server.NewViewServer(cfg.Server.HTTPAddress, sessionManager, account, cache,
		scheduler, coordinator, broadcaster)
	viewServer.SetViewerGauge(mon)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		viewServer.Shutdown(shutdownCtx)
	}()

	// Start Server
	logger.Log.Infof("Starting view server on %s", cfg.Server.HTTPAddress)
	if err := viewServer.Start(); err != nil {
		logger.Log.Fatalf("Failed to start server: %v", err)
	}
}

// unexpectedStop drops the cancellation a normal shutdown returns.
func unexpectedStop(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
