package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"autoprint/internal/config"
	"autoprint/internal/ledger"
	"autoprint/internal/stage"
	"autoprint/internal/testsupport"
)

type fakeHandler struct {
	mu       sync.Mutex
	prepared int
	executed int
	execErr  error
	onExec   func(*ledger.Entry)
}

func (f *fakeHandler) Prepare(ctx context.Context, entry *ledger.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared++
	return nil
}

func (f *fakeHandler) Execute(ctx context.Context, entry *ledger.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed++
	if f.onExec != nil {
		f.onExec(entry)
	}
	return f.execErr
}

func (f *fakeHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("fake")
}

func (f *fakeHandler) executions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.executed
}

type countingNotifier struct {
	mu          sync.Mutex
	printFailed int
	errors      int
}

func (c *countingNotifier) NotifyFileDetected(context.Context, string) error { return nil }
func (c *countingNotifier) NotifyPrintCompleted(context.Context, string, string, string) error {
	return nil
}
func (c *countingNotifier) NotifyPrintFailed(context.Context, string, int, error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.printFailed++
	return nil
}
func (c *countingNotifier) NotifyError(context.Context, error, string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors++
	return nil
}
func (c *countingNotifier) TestNotification(context.Context) error { return nil }

func (c *countingNotifier) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.printFailed, c.errors
}

func newTestManager(t *testing.T, cfg *config.Config, store *ledger.Store, printer, archiver stage.Handler, notifier *countingNotifier) *Manager {
	t.Helper()
	if notifier == nil {
		notifier = &countingNotifier{}
	}
	m, err := NewManagerWithNotifier(cfg, store, nil, notifier)
	if err != nil {
		t.Fatalf("NewManagerWithNotifier: %v", err)
	}
	m.ConfigureStages(StageSet{Printer: printer, Archiver: archiver})
	return m
}

func waitForStatus(t *testing.T, store *ledger.Store, id int64, want ledger.Status) *ledger.Entry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entry, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if entry != nil && entry.Status == want {
			return entry
		}
		time.Sleep(10 * time.Millisecond)
	}
	entry, _ := store.GetByID(context.Background(), id)
	t.Fatalf("entry %d never reached %s, last state %+v", id, want, entry)
	return nil
}

func TestEntryFlowsThroughBothStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.PollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)

	printer := &fakeHandler{onExec: func(entry *ledger.Entry) {
		now := time.Now().UTC()
		entry.PrintedAt = &now
	}}
	archiver := &fakeHandler{onExec: func(entry *ledger.Entry) {
		now := time.Now().UTC()
		entry.ArchivedAt = &now
	}}
	m := newTestManager(t, cfg, store, printer, archiver, nil)

	entry := testsupport.NewEntry(t, store, "/watch/flow.pdf", 1, time.Now().UTC())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	final := waitForStatus(t, store, entry.ID, ledger.StatusArchived)
	if final.PrintedAt == nil || final.ArchivedAt == nil {
		t.Fatalf("timestamps missing: %+v", final)
	}
	if printer.executions() != 1 || archiver.executions() != 1 {
		t.Fatalf("executions = %d/%d, want 1/1", printer.executions(), archiver.executions())
	}
}

func TestPrintFailureMarksFailedWithSingleAlert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.PollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)

	printer := &fakeHandler{execErr: errors.New("spooler unreachable")}
	notifier := &countingNotifier{}
	m := newTestManager(t, cfg, store, printer, &fakeHandler{}, notifier)

	entry := testsupport.NewEntry(t, store, "/watch/fail.pdf", 1, time.Now().UTC())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	final := waitForStatus(t, store, entry.ID, ledger.StatusFailed)
	if final.ErrorMessage == "" {
		t.Fatal("failed entry should carry an error message")
	}

	// Give the loop a moment to prove it does not re-alert.
	time.Sleep(100 * time.Millisecond)
	printFailed, _ := notifier.counts()
	if printFailed != 1 {
		t.Fatalf("print failure alerts = %d, want exactly 1", printFailed)
	}
}

func TestArchiveFailureNeverRevertsPrinted(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.PollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)

	printer := &fakeHandler{onExec: func(entry *ledger.Entry) {
		now := time.Now().UTC()
		entry.PrintedAt = &now
	}}
	archiver := &fakeHandler{execErr: errors.New("archive folder unavailable")}
	notifier := &countingNotifier{}
	m := newTestManager(t, cfg, store, printer, archiver, notifier)

	entry := testsupport.NewEntry(t, store, "/watch/stuckarchive.pdf", 1, time.Now().UTC())

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	final := waitForStatus(t, store, entry.ID, ledger.StatusFailed)
	m.Stop()

	if final.PrintedAt == nil {
		t.Fatal("printed mark must survive an archive failure")
	}

	// An operator retry resumes at printed, never reprints.
	if _, err := store.RetryFailed(context.Background(), entry.ID); err != nil {
		t.Fatal(err)
	}
	reloaded, err := store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Status != ledger.StatusPrinted {
		t.Fatalf("retried entry = %s, want printed", reloaded.Status)
	}
	if printer.executions() != 1 {
		t.Fatalf("printer executions = %d, must stay 1", printer.executions())
	}
}

func TestStatusReportsPrintedCounters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	m := newTestManager(t, cfg, store, &fakeHandler{}, &fakeHandler{}, nil)
	ctx := context.Background()

	recent := testsupport.NewEntry(t, store, "/watch/today.pdf", 1, time.Now().UTC())
	now := time.Now().UTC()
	recent.Status = ledger.StatusArchived
	recent.PrintedAt = &now
	if err := store.Update(ctx, recent); err != nil {
		t.Fatal(err)
	}

	old := testsupport.NewEntry(t, store, "/watch/lastweek.pdf", 1, now.Add(-72*time.Hour))
	lastWeek := now.Add(-72 * time.Hour)
	old.Status = ledger.StatusArchived
	old.PrintedAt = &lastWeek
	if err := store.Update(ctx, old); err != nil {
		t.Fatal(err)
	}

	// A pending entry has no printed mark and counts for neither figure.
	testsupport.NewEntry(t, store, "/watch/waiting.pdf", 1, now)

	summary := m.Status(ctx)
	if summary.PrintedToday != 1 {
		t.Fatalf("PrintedToday = %d, want 1", summary.PrintedToday)
	}
	if summary.PrintedTotal != 2 {
		t.Fatalf("PrintedTotal = %d, want 2", summary.PrintedTotal)
	}
}

func TestPollStatusesOutsideWindowSkipsPending(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Schedule.Enabled = true
	cfg.Schedule.Start = "08:00"
	cfg.Schedule.End = "20:00"
	store := testsupport.MustOpenStore(t, cfg)

	m := newTestManager(t, cfg, store, &fakeHandler{}, &fakeHandler{}, nil)

	inside := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.Local)
	statuses := m.pollStatuses(inside)
	if len(statuses) != 2 || statuses[0] != ledger.StatusPending {
		t.Fatalf("inside window statuses = %v", statuses)
	}

	outside := time.Date(2026, time.March, 10, 23, 0, 0, 0, time.Local)
	statuses = m.pollStatuses(outside)
	for _, status := range statuses {
		if status == ledger.StatusPending {
			t.Fatal("pending must not be polled outside the window")
		}
	}
	if len(statuses) != 1 || statuses[0] != ledger.StatusPrinted {
		t.Fatalf("outside window statuses = %v, want [printed]", statuses)
	}
}

func TestNoteDeferralsLogsOncePerEntry(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Schedule.Enabled = true
	cfg.Schedule.Start = "08:00"
	cfg.Schedule.End = "20:00"
	store := testsupport.MustOpenStore(t, cfg)

	m := newTestManager(t, cfg, store, &fakeHandler{}, &fakeHandler{}, nil)
	ctx := context.Background()
	testsupport.NewEntry(t, store, "/watch/late.pdf", 1, time.Now().UTC())

	outside := time.Date(2026, time.March, 10, 23, 0, 0, 0, time.Local)
	m.noteDeferrals(ctx, outside)
	m.noteDeferrals(ctx, outside)

	m.mu.Lock()
	marked := len(m.deferralLogged)
	m.mu.Unlock()
	if marked != 1 {
		t.Fatalf("deferral marks = %d, want 1", marked)
	}

	// Reopening forgets the marks so the next closure logs again.
	inside := time.Date(2026, time.March, 11, 12, 0, 0, 0, time.Local)
	m.noteDeferrals(ctx, inside)
	m.mu.Lock()
	marked = len(m.deferralLogged)
	m.mu.Unlock()
	if marked != 0 {
		t.Fatalf("deferral marks after reopening = %d, want 0", marked)
	}
}

func TestPollStatusesIncludesFailedWhenRepollEnabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Pipeline.RepollFailed = true
	store := testsupport.MustOpenStore(t, cfg)

	m := newTestManager(t, cfg, store, &fakeHandler{}, &fakeHandler{}, nil)
	statuses := m.pollStatuses(time.Now())
	found := false
	for _, status := range statuses {
		if status == ledger.StatusFailed {
			found = true
		}
	}
	if !found {
		t.Fatalf("statuses = %v, want failed included", statuses)
	}
}

func TestStartRequiresConfiguredStages(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	m, err := NewManagerWithNotifier(cfg, store, nil, &countingNotifier{})
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Start(context.Background()); err == nil {
		m.Stop()
		t.Fatal("Start without stages should fail")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	m := newTestManager(t, cfg, store, &fakeHandler{}, &fakeHandler{}, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("manager should report stopped")
	}
}
