package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"staywatch/config"
	"staywatch/models"
	"staywatch/processor"
	"staywatch/selectors"
	"staywatch/storage"
)

// Triggerable allows background workers to be kicked manually.
type Triggerable interface {
	Trigger()
}

// Scheduler drives periodic check cycles and executes operator commands
// queued in the local SQLite store. Cycles run either on a cron
// expression or a fixed interval, whichever is configured.
type Scheduler struct {
	cfg       *config.Config
	processor *processor.Processor
	selectors *selectors.Cache
	store     *storage.SQLiteStore
	cron      *cron.Cron
	ticker    *time.Ticker
	stopCh    chan struct{}

	retentionWorker Triggerable
}

func New(cfg *config.Config, proc *processor.Processor, selCache *selectors.Cache, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		processor: proc,
		selectors: selCache,
		store:     store,
		cron:      cron.New(),
		stopCh:    make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering.
func (s *Scheduler) SetWorkers(retention Triggerable) {
	s.retentionWorker = retention
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	runCycle := func() {
		if err := s.processor.RunCycle(ctx); err != nil {
			log.Printf("Scheduled cycle error: %v", err)
		}
	}

	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, runCycle)
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					runCycle()
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	// Give the browser pool and selector cache a moment before the first
	// pass instead of slamming the platforms at boot.
	if s.cfg.Scheduler.StartupDelay > 0 {
		go func() {
			select {
			case <-time.After(s.cfg.Scheduler.StartupDelay):
				runCycle()
			case <-s.stopCh:
			case <-ctx.Done():
			}
		}()
	}

	return nil
}

// Stop halts scheduling and waits for an in-flight cycle to drain, up to
// the configured shutdown timeout.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)

	timeout := s.cfg.Scheduler.ShutdownTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if !s.processor.WaitIdle(timeout) {
		log.Printf("Shutdown: cycle still running after %s, abandoning", timeout)
	}
}

func (s *Scheduler) TriggerNow(ctx context.Context) error {
	return s.processor.RunCycle(ctx)
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Printf("Error getting commands: %v", err)
				continue
			}

			for _, cmd := range cmds {
				log.Printf("Processing command: %s", cmd.Command)
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Printf("Command error: %v", err)
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Printf("Error marking command processed: %v", err)
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdCheckNow:
		go func() {
			if err := s.processor.RunCycle(ctx); err != nil {
				log.Printf("Commanded cycle error: %v", err)
			}
		}()
		return nil
	case models.CmdPause:
		s.processor.Pause()
		return nil
	case models.CmdResume:
		s.processor.Resume()
		return nil
	case models.CmdInvalidateSelectors:
		params, err := s.store.ParseCommandParams(cmd)
		if err != nil {
			return err
		}
		var platforms []models.Platform
		if params != nil && params.Platform != "" {
			platforms = append(platforms, models.Platform(params.Platform))
		}
		invalidated := s.selectors.Invalidate(platforms...)
		log.Printf("Selector caches invalidated: %v", invalidated)
		return nil
	case models.CmdPruneLogs:
		if s.retentionWorker != nil {
			s.retentionWorker.Trigger()
			log.Println("Retention worker triggered via command")
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}
