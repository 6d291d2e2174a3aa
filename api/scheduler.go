/*
scheduler.go - Automated daily closing scheduler

PURPOSE:
  Periodically checks for tenants whose business day has ended without a
  closing report and generates the Z-report automatically. A register that
  was shut down without closing still gets a report for the day, keeping
  the sequence gapless.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Closes the previous business day once the closing hour has passed
  - Skips tenants whose latest report already covers that day
  - Closing itself goes through Service.CloseDay, so the hash chain and
    audit trail are maintained exactly as for a manual close

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - ClosingHour:   Local hour after which the previous day may be closed
  - Enabled:       Whether scheduler is active (default: true)

USAGE:
  scheduler := NewClosingScheduler(svc, tenants, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: CloseDay endpoint (manual closing)
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/pos-engine/engine"
)

// ClosingScheduler generates end-of-day reports for tenants that did not
// close the register themselves.
type ClosingScheduler struct {
	Service       *engine.Service
	Tenants       []engine.TenantID
	Log           *logrus.Logger
	CheckInterval time.Duration
	ClosingHour   int
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewClosingScheduler creates a new scheduler for the given tenants.
func NewClosingScheduler(svc *engine.Service, tenants []engine.TenantID, log *logrus.Logger) *ClosingScheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ClosingScheduler{
		Service:       svc,
		Tenants:       tenants,
		Log:           log,
		CheckInterval: 1 * time.Hour,
		ClosingHour:   3,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (cs *ClosingScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.Log.Info("closing scheduler disabled, not starting")
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.wg.Add(1)

	go cs.run()

	cs.Log.WithField("interval", cs.CheckInterval).Info("closing scheduler started")
}

// Stop stops the scheduler.
func (cs *ClosingScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.Log.Info("closing scheduler stopped")
	}
}

func (cs *ClosingScheduler) run() {
	defer cs.wg.Done()

	// Run immediately on start
	cs.checkAndClose()

	for {
		select {
		case <-cs.ticker.C:
			cs.checkAndClose()
		case <-cs.stop:
			return
		}
	}
}

func (cs *ClosingScheduler) checkAndClose() {
	ctx := context.Background()
	now := time.Now()

	if now.Hour() < cs.ClosingHour {
		// Service may still be running past midnight
		return
	}
	day := now.AddDate(0, 0, -1)

	closed := 0
	skipped := 0
	for _, tenant := range cs.Tenants {
		done, err := cs.alreadyClosed(ctx, tenant, day)
		if err != nil {
			cs.Log.WithError(err).WithField("tenant", tenant).Error("closing check failed")
			continue
		}
		if done {
			skipped++
			continue
		}

		// Opening/closing cash are unknown for an unattended close; the
		// variance fields read as -theoretical, which is what an auditor
		// wants to see for a drawer nobody counted.
		report, err := cs.Service.CloseDay(ctx, tenant, day, decimal.Zero, decimal.Zero)
		if err != nil {
			if errors.Is(err, engine.ErrInvalidDate) {
				continue
			}
			cs.Log.WithError(err).WithField("tenant", tenant).Error("automatic closing failed")
			continue
		}
		closed++
		cs.Log.WithFields(logrus.Fields{
			"tenant":   tenant,
			"sequence": report.SequenceNumber,
			"date":     day.Format("2006-01-02"),
		}).Info("automatic closing completed")
	}

	if closed > 0 || skipped > 0 {
		cs.Log.WithFields(logrus.Fields{
			"closed":  closed,
			"skipped": skipped,
		}).Info("closing sweep completed")
	}
}

func (cs *ClosingScheduler) alreadyClosed(ctx context.Context, tenant engine.TenantID, day time.Time) (bool, error) {
	last, err := cs.Service.Store.LastZReport(ctx, tenant)
	if err != nil {
		return false, err
	}
	if last == nil {
		return false, nil
	}
	y1, m1, d1 := last.Date.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2 || last.Date.After(day), nil
}

// RunNow triggers an immediate sweep (for testing/admin).
func (cs *ClosingScheduler) RunNow() {
	cs.checkAndClose()
}
