package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"

	"github.com/crestline/fieldsync/internal/record"
	"github.com/crestline/fieldsync/internal/store"
)

// stubSubmitter counts invocations and returns a configurable error.
type stubSubmitter struct {
	mu    gosync.Mutex
	calls []string
	err   error
	block chan struct{} // when set, Submit waits until the channel closes
	began chan struct{} // when set, closed once on first Submit
	once  gosync.Once
}

func (s *stubSubmitter) Submit(ctx context.Context, it *record.Item) error {
	s.mu.Lock()
	s.calls = append(s.calls, it.ID)
	s.mu.Unlock()

	if s.began != nil {
		s.once.Do(func() { close(s.began) })
	}
	if s.block != nil {
		<-s.block
	}
	return s.err
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// setupStore creates a temporary queue database.
func setupStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "queue.db"))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// newSyncer wires a Syncer where every collection shares one stub.
func newSyncer(t *testing.T, st *store.Store, stub Submitter) *Syncer {
	t.Helper()

	submitters := make(map[record.Collection]Submitter)
	for _, c := range record.Collections() {
		submitters[c] = stub
	}
	return New(Config{Store: st, Submitters: submitters})
}

func enqueueLead(t *testing.T, st *store.Store, first string) *record.Item {
	t.Helper()

	item, err := record.NewLead(&record.Lead{FirstName: first, Phone: "555-0100"})
	if err != nil {
		t.Fatalf("NewLead failed: %v", err)
	}
	if err := st.Put(context.Background(), item, nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	return item
}

func TestSyncAllSuccessRemovesRecord(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	item := enqueueLead(t, st, "Jane")

	stub := &stubSubmitter{}
	syncer := newSyncer(t, st, stub)

	res, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Success != 1 || res.Failed != 0 || res.Total != 1 {
		t.Errorf("expected {1,0,1}, got %+v", res)
	}

	// Record is gone from the store.
	if _, err := st.Get(ctx, record.Leads, item.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected record deleted after success, got %v", err)
	}

	// Log records the attempt and the success.
	entries, err := st.LogForItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("LogForItem failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Action != store.LogSyncStart || entries[1].Action != store.LogSyncSuccess {
		t.Errorf("unexpected log actions: %s, %s", entries[0].Action, entries[1].Action)
	}
}

func TestSyncAllFailureMarksAndRetries(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	knock, err := record.NewDoorKnock(&record.DoorKnock{
		PropertyID: "prop-1", Outcome: "no_answer", UserID: "u-1",
	})
	if err != nil {
		t.Fatalf("NewDoorKnock failed: %v", err)
	}
	if err := st.Put(ctx, knock, nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	stub := &stubSubmitter{err: errors.New("network: connection refused")}
	syncer := newSyncer(t, st, stub)

	res, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Failed != 1 || res.Success != 0 {
		t.Errorf("expected one failure, got %+v", res)
	}

	got, err := st.Get(ctx, record.DoorKnocks, knock.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != record.StatusFailed {
		t.Errorf("expected status failed, got %q", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", got.RetryCount)
	}
	if got.LastError == "" {
		t.Error("expected error message recorded on item")
	}
}

func TestRetryBoundQuarantinesItem(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	knock, err := record.NewDoorKnock(&record.DoorKnock{
		PropertyID: "prop-1", Outcome: "no_answer", UserID: "u-1",
	})
	if err != nil {
		t.Fatalf("NewDoorKnock failed: %v", err)
	}
	if err := st.Put(ctx, knock, nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	stub := &stubSubmitter{err: errors.New("network: unreachable")}
	syncer := newSyncer(t, st, stub)

	for pass := 1; pass <= record.MaxRetries; pass++ {
		if _, err := syncer.SyncAll(ctx); err != nil {
			t.Fatalf("pass %d failed: %v", pass, err)
		}

		got, err := st.Get(ctx, record.DoorKnocks, knock.ID)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.RetryCount != pass {
			t.Errorf("after pass %d: expected retry count %d, got %d", pass, pass, got.RetryCount)
		}
	}

	if stub.callCount() != record.MaxRetries {
		t.Errorf("expected %d submission attempts, got %d", record.MaxRetries, stub.callCount())
	}

	// A further pass must not invoke the submitter again.
	res, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("post-quarantine pass failed: %v", err)
	}
	if res.Total != 0 {
		t.Errorf("expected empty pass after quarantine, got %+v", res)
	}
	if stub.callCount() != record.MaxRetries {
		t.Errorf("quarantined item was submitted again: %d calls", stub.callCount())
	}

	got, err := st.Get(ctx, record.DoorKnocks, knock.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Quarantined() {
		t.Error("expected item to be quarantined")
	}
}

// orderRecorder tracks the collection order of submissions across a pass.
type orderRecorder struct {
	mu    gosync.Mutex
	order []record.Collection
}

func (r *orderRecorder) submitterFor(c record.Collection) Submitter {
	return submitFunc(func(ctx context.Context, it *record.Item) error {
		r.mu.Lock()
		r.order = append(r.order, c)
		r.mu.Unlock()
		return nil
	})
}

type submitFunc func(ctx context.Context, it *record.Item) error

func (f submitFunc) Submit(ctx context.Context, it *record.Item) error {
	return f(ctx, it)
}

func TestPriorityOrderLeadsBeforePhotos(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	photo, err := record.NewPhoto(&record.Photo{PropertyID: "prop-1", Category: "roof"})
	if err != nil {
		t.Fatalf("NewPhoto failed: %v", err)
	}
	// Enqueue the photo first so priority, not insertion order, decides.
	if err := st.Put(ctx, photo, map[string][]byte{record.BlobImage: {1}}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	enqueueLead(t, st, "Jane")

	rec := &orderRecorder{}
	submitters := make(map[record.Collection]Submitter)
	for _, c := range record.Collections() {
		submitters[c] = rec.submitterFor(c)
	}
	syncer := New(Config{Store: st, Submitters: submitters})

	if _, err := syncer.SyncAll(ctx); err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}

	if len(rec.order) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(rec.order))
	}
	if rec.order[0] != record.Leads || rec.order[1] != record.Photos {
		t.Errorf("expected leads before photos, got %v", rec.order)
	}
}

func TestOverlappingPassRejected(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	item := enqueueLead(t, st, "Jane")

	stub := &stubSubmitter{
		block: make(chan struct{}),
		began: make(chan struct{}),
	}
	syncer := newSyncer(t, st, stub)

	first := make(chan Result, 1)
	go func() {
		res, _ := syncer.SyncAll(ctx)
		first <- res
	}()

	<-stub.began // first pass is now mid-submission

	res, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("overlapping SyncAll errored: %v", err)
	}
	if res.Success != 0 || res.Failed != 0 || res.Total != 0 {
		t.Errorf("expected zero result from overlapping call, got %+v", res)
	}

	// The overlapping call must not have touched the in-flight item.
	got, err := st.Get(ctx, record.Leads, item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Status != record.StatusSyncing {
		t.Errorf("expected item still syncing, got %q", got.Status)
	}

	close(stub.block)
	if res := <-first; res.Success != 1 {
		t.Errorf("expected first pass to complete with one success, got %+v", res)
	}
}

func TestObserverPanicDoesNotStopPass(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		note, err := record.NewVoiceNote(&record.VoiceNote{PropertyID: "prop-1", DurationSec: 5})
		if err != nil {
			t.Fatalf("NewVoiceNote failed: %v", err)
		}
		if err := st.Put(ctx, note, map[string][]byte{record.BlobAudio: {1, 2}}); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	stub := &stubSubmitter{}
	syncer := newSyncer(t, st, stub)

	var firstEvents, thirdEvents []Progress
	syncer.Subscribe(func(p Progress) { firstEvents = append(firstEvents, p) })
	syncer.Subscribe(func(p Progress) { panic("observer bug") })
	syncer.Subscribe(func(p Progress) { thirdEvents = append(thirdEvents, p) })

	res, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Success != 3 {
		t.Errorf("expected 3 successes, got %+v", res)
	}

	if len(firstEvents) != 3 {
		t.Errorf("first observer expected 3 events, got %d", len(firstEvents))
	}
	if len(thirdEvents) != 3 {
		t.Errorf("observer after the panicking one expected 3 events, got %d", len(thirdEvents))
	}
	last := firstEvents[len(firstEvents)-1]
	if last.Completed != 3 || last.Total != 3 {
		t.Errorf("expected final progress 3/3, got %+v", last)
	}
}

func TestEmptyQueueReturnsZero(t *testing.T) {
	st := setupStore(t)

	stub := &stubSubmitter{}
	syncer := newSyncer(t, st, stub)

	res, err := syncer.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Total != 0 {
		t.Errorf("expected zero result for empty queue, got %+v", res)
	}
	if stub.callCount() != 0 {
		t.Errorf("expected no submissions, got %d", stub.callCount())
	}
}

func TestMaintenanceRefusedMidPass(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	enqueueLead(t, st, "Jane")

	stub := &stubSubmitter{
		block: make(chan struct{}),
		began: make(chan struct{}),
	}
	syncer := newSyncer(t, st, stub)

	done := make(chan struct{})
	go func() {
		_, _ = syncer.SyncAll(ctx)
		close(done)
	}()

	<-stub.began

	if err := syncer.ClearAll(ctx); !errors.Is(err, ErrPassInFlight) {
		t.Errorf("expected ErrPassInFlight from ClearAll, got %v", err)
	}
	if _, err := syncer.ClearSynced(ctx); !errors.Is(err, ErrPassInFlight) {
		t.Errorf("expected ErrPassInFlight from ClearSynced, got %v", err)
	}

	close(stub.block)
	<-done

	if err := syncer.ClearAll(ctx); err != nil {
		t.Errorf("ClearAll after pass should succeed, got %v", err)
	}
}

func TestStaleSyncingItemSweptAtPassStart(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	// A store error after a submission attempt can leave an item at
	// syncing, a status the worklist never selects.
	item := enqueueLead(t, st, "Jane")
	if err := st.MarkSyncing(ctx, item.ID); err != nil {
		t.Fatalf("MarkSyncing failed: %v", err)
	}

	stub := &stubSubmitter{}
	syncer := newSyncer(t, st, stub)

	res, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Success != 1 || res.Total != 1 {
		t.Errorf("expected stranded item requeued and synced, got %+v", res)
	}
	if _, err := st.Get(ctx, record.Leads, item.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected item synced and removed, got %v", err)
	}
}

func TestInvalidPayloadConsumesRetry(t *testing.T) {
	st := setupStore(t)
	ctx := context.Background()

	// A disposition with an empty payload fails validation at submission
	// time: still a submission failure by policy.
	item := &record.Item{
		ID:         "bad-1",
		Collection: record.Dispositions,
		Status:     record.StatusPending,
		GroupKey:   "prop-1",
		CreatedAt:  itemTime(t),
		Payload:    []byte(`{}`),
	}
	if err := st.Put(ctx, item, nil); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	syncer := New(Config{
		Store:      st,
		Submitters: NewSubmitters(&fakeBackend{}, st),
	})

	res, err := syncer.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll failed: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("expected validation failure counted, got %+v", res)
	}

	got, err := st.Get(ctx, record.Dispositions, item.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RetryCount != 1 {
		t.Errorf("expected validation failure to consume a retry, got %d", got.RetryCount)
	}
}
