package processor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"staywatch/browser"
	"staywatch/checker"
	"staywatch/metrics"
	"staywatch/models"
	"staywatch/selectors"
	"staywatch/services"
)

// cycleBatchLimit caps how many accommodations one cycle will pick up.
const cycleBatchLimit = 500

// Store is the persistence surface a cycle needs.
type Store interface {
	GetDueAccommodations(ctx context.Context, interval time.Duration, limit int) ([]models.Accommodation, error)
	UpdateAccommodationResult(ctx context.Context, id uuid.UUID, status models.CheckStatus, price *string, checkedAt time.Time) error
	CreateCheckLog(ctx context.Context, cl *models.CheckLog) error
	MarkCheckLogNotified(ctx context.Context, id uuid.UUID) error
	GetUserWithCredential(ctx context.Context, id uuid.UUID) (*models.User, error)
	CreateCheckRun(ctx context.Context, run *models.CheckRun) error
	UpdateCheckRun(ctx context.Context, run *models.CheckRun) error
}

// OpsStore mirrors run records into the local operational database.
type OpsStore interface {
	RecordRunStart(run *models.CheckRun) (int64, error)
	RecordRunFinish(localID int64, run *models.CheckRun) error
	GetLastRun() (*models.CheckRun, error)
}

// Notifier sends the availability push.
type Notifier interface {
	NotifyAvailable(ctx context.Context, user *models.User, acc *models.Accommodation, price *string) error
}

// Processor orchestrates check cycles: it fans due accommodations out
// across a bounded number of workers, persists every outcome, and fires
// notifications on transitions into availability. One accommodation is
// never checked twice concurrently, and two cycles never overlap.
type Processor struct {
	store     Store
	ops       OpsStore
	pool      *browser.Pool
	selectors *selectors.Cache
	settings  *services.SettingsService
	notifier  Notifier

	// checkFn is the dispatch seam; tests swap it for a fake checker.
	checkFn func(ctx context.Context, acc *models.Accommodation, st checker.Settings) checker.CheckResult

	mu           sync.Mutex
	paused       bool
	running      bool
	cycleStarted time.Time
	inFlight     map[uuid.UUID]*models.CheckJobPayload
}

func New(store Store, ops OpsStore, pool *browser.Pool, selCache *selectors.Cache, settings *services.SettingsService, notifier Notifier) *Processor {
	p := &Processor{
		store:     store,
		ops:       ops,
		pool:      pool,
		selectors: selCache,
		settings:  settings,
		notifier:  notifier,
		inFlight:  make(map[uuid.UUID]*models.CheckJobPayload),
	}
	p.checkFn = p.dispatchCheck
	return p
}

func (p *Processor) dispatchCheck(ctx context.Context, acc *models.Accommodation, st checker.Settings) checker.CheckResult {
	c, err := checker.ForPlatform(acc.Platform)
	if err != nil {
		return checker.CheckResult{Error: err.Error()}
	}
	deps := &checker.Deps{Pool: p.pool, Selectors: p.selectors, Settings: st}
	return c.Check(ctx, acc, deps)
}

// RunCycle performs one pass over all due accommodations. A cycle that
// finds another cycle still running skips itself; individual check
// failures are recorded and never abort the rest of the batch.
func (p *Processor) RunCycle(ctx context.Context) error {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		log.Println("Processor paused, skipping cycle")
		return nil
	}
	if p.running {
		p.mu.Unlock()
		log.Println("Cycle already running, skipping trigger")
		return nil
	}
	p.running = true
	p.cycleStarted = time.Now()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	rt := p.settings.Runtime(ctx)
	cycleStart := time.Now()

	due, err := p.store.GetDueAccommodations(ctx, rt.CheckInterval, cycleBatchLimit)
	if err != nil {
		return fmt.Errorf("fetch due accommodations: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	log.Printf("Cycle: %d accommodations due", len(due))

	// Refresh selector caches for the platforms in this batch before the
	// fan-out; a failed load degrades to the stale/fallback entry.
	seen := make(map[models.Platform]bool)
	for _, acc := range due {
		if !seen[acc.Platform] {
			seen[acc.Platform] = true
			if _, err := p.selectors.Load(ctx, acc.Platform, false); err != nil {
				log.Printf("Cycle: %v", err)
			}
		}
	}

	run := &models.CheckRun{StartedAt: cycleStart, Status: models.RunStatusRunning}
	if err := p.store.CreateCheckRun(ctx, run); err != nil {
		log.Printf("Cycle: failed to create run record: %v", err)
	}
	var localRunID int64
	if p.ops != nil {
		if id, err := p.ops.RecordRunStart(run); err == nil {
			localRunID = id
		}
	}

	sem := make(chan struct{}, cycleLimit(rt, p.pool.Size()))

	var wg sync.WaitGroup
	var statsMu sync.Mutex

	for i := range due {
		acc := due[i]
		if !p.markInFlight(&acc) {
			log.Printf("Cycle: %s still in flight, skipping", acc.ID)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer p.clearInFlight(acc.ID)

			sem <- struct{}{}
			defer func() { <-sem }()
			p.setJobState(acc.ID, models.JobAcquired)

			outcome := p.processOne(ctx, &acc, rt)
			p.setJobState(acc.ID, models.JobDone)

			statsMu.Lock()
			run.Checked++
			switch outcome.status {
			case models.StatusAvailable:
				run.Available++
			case models.StatusUnavailable:
				run.Unavailable++
			default:
				run.Errors++
			}
			if outcome.notified {
				run.Notifications++
			}
			statsMu.Unlock()
		}()
	}

	wg.Wait()

	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if err := p.store.UpdateCheckRun(ctx, run); err != nil {
		log.Printf("Cycle: failed to finalize run record: %v", err)
	}
	if p.ops != nil && localRunID != 0 {
		p.ops.RecordRunFinish(localRunID, run)
	}

	metrics.CycleDuration.Observe(time.Since(cycleStart).Seconds())
	log.Printf("Cycle complete: %d checked, %d available, %d unavailable, %d errors, %d notified (%.1fs)",
		run.Checked, run.Available, run.Unavailable, run.Errors, run.Notifications,
		time.Since(cycleStart).Seconds())
	return nil
}

type checkOutcome struct {
	status   models.CheckStatus
	notified bool
}

// cycleLimit bounds the fan-out. Each in-flight check holds one pooled
// browser handle, so neither the concurrency setting nor the runtime
// browser_pool_size override can usefully exceed the launched pool; the
// override can only shrink the effective parallelism without a restart.
func cycleLimit(rt services.Runtime, poolSize int) int {
	limit := rt.WorkerConcurrency
	if rt.BrowserPoolSize > 0 && rt.BrowserPoolSize < limit {
		limit = rt.BrowserPoolSize
	}
	if poolSize < limit {
		limit = poolSize
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

// processOne runs a single accommodation through its checker and handles
// persistence and notification. All errors end here as an ERROR check
// log; nothing propagates into the cycle loop.
func (p *Processor) processOne(ctx context.Context, acc *models.Accommodation, rt services.Runtime) checkOutcome {
	p.setJobState(acc.ID, models.JobChecking)
	start := time.Now()
	result := p.checkFn(ctx, acc, rt.CheckerSettings())
	metrics.CheckDuration.WithLabelValues(string(acc.Platform)).Observe(time.Since(start).Seconds())

	// An error outweighs whatever the available flag claims.
	status := models.StatusUnavailable
	if result.Error != "" {
		status = models.StatusError
	} else if result.Available {
		status = models.StatusAvailable
	}
	metrics.ChecksTotal.WithLabelValues(string(acc.Platform), string(status)).Inc()

	checkedAt := time.Now()
	cl := &models.CheckLog{
		AccommodationID: acc.ID,
		Status:          status,
		Price:           result.Price,
		CheckedAt:       checkedAt,
	}
	if result.Error != "" {
		msg := result.Error
		cl.ErrorMessage = &msg
	}
	if err := p.store.CreateCheckLog(ctx, cl); err != nil {
		log.Printf("Check %s: failed to write log: %v", acc.ID, err)
	}

	if err := p.store.UpdateAccommodationResult(ctx, acc.ID, status, result.Price, checkedAt); err != nil {
		log.Printf("Check %s: failed to update accommodation: %v", acc.ID, err)
	}

	notified := false
	if status == models.StatusAvailable && acc.LastStatus != models.StatusAvailable {
		notified = p.notify(ctx, acc, cl, result.Price)
	}

	return checkOutcome{status: status, notified: notified}
}

// notify fires the availability push for a transition into AVAILABLE.
// The check log's notification flag is only set once the send succeeded.
func (p *Processor) notify(ctx context.Context, acc *models.Accommodation, cl *models.CheckLog, price *string) bool {
	user, err := p.store.GetUserWithCredential(ctx, acc.UserID)
	if err != nil {
		log.Printf("Notify %s: failed to load user: %v", acc.ID, err)
		return false
	}
	if user == nil || !user.Credential.Valid() {
		return false
	}

	if err := p.notifier.NotifyAvailable(ctx, user, acc, price); err != nil {
		log.Printf("Notify %s: send failed: %v", acc.ID, err)
		return false
	}

	if err := p.store.MarkCheckLogNotified(ctx, cl.ID); err != nil {
		log.Printf("Notify %s: failed to flag check log: %v", acc.ID, err)
	}
	return true
}

func (p *Processor) markInFlight(acc *models.Accommodation) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.inFlight[acc.ID]; exists {
		return false
	}
	p.inFlight[acc.ID] = &models.CheckJobPayload{
		AccommodationID: acc.ID,
		Platform:        acc.Platform,
		URL:             acc.URL,
		State:           models.JobPending,
		StartedAt:       time.Now(),
	}
	return true
}

func (p *Processor) setJobState(id uuid.UUID, state models.JobState) {
	p.mu.Lock()
	if job, ok := p.inFlight[id]; ok {
		job.State = state
	}
	p.mu.Unlock()
}

func (p *Processor) clearInFlight(id uuid.UUID) {
	p.mu.Lock()
	delete(p.inFlight, id)
	p.mu.Unlock()
}

func (p *Processor) Pause() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	log.Println("Processor paused")
}

func (p *Processor) Resume() {
	p.mu.Lock()
	p.paused = false
	p.mu.Unlock()
	log.Println("Processor resumed")
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// WaitIdle blocks until the current cycle drains or the timeout passes.
// Returns true when the processor went idle in time.
func (p *Processor) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !p.IsRunning() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return !p.IsRunning()
}

// Snapshot is the operator view served by the control API.
func (p *Processor) Snapshot() models.CycleSnapshot {
	p.mu.Lock()
	snap := models.CycleSnapshot{
		Running: p.running,
		Paused:  p.paused,
	}
	if p.running {
		started := p.cycleStarted
		snap.CycleStarted = &started
	}
	for _, job := range p.inFlight {
		snap.InFlight = append(snap.InFlight, *job)
	}
	p.mu.Unlock()

	if p.ops != nil {
		if last, err := p.ops.GetLastRun(); err == nil {
			snap.LastRun = last
		}
	}
	return snap
}
