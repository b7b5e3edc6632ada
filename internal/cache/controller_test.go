package cache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xtxerr/prodstats/internal/dataset"
	perrors "github.com/xtxerr/prodstats/internal/errors"
	"github.com/xtxerr/prodstats/internal/store"
	testutil "github.com/xtxerr/prodstats/internal/testing"
	"github.com/xtxerr/prodstats/internal/validation"
)

// remote serves a synthetic dataset. Requests block while gate is set.
type remote struct {
	srv    *httptest.Server
	hits   atomic.Int64
	status atomic.Int64

	mu      sync.Mutex
	body    []byte
	gate    chan struct{}
	started chan struct{}
}

func newRemote(t *testing.T, rows int) *remote {
	t.Helper()
	r := &remote{body: testutil.ProductsCSV(testutil.SyntheticRows(rows))}
	r.status.Store(http.StatusOK)
	r.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.hits.Add(1)
		r.mu.Lock()
		gate, started, body := r.gate, r.started, r.body
		r.mu.Unlock()
		if gate != nil {
			close(started)
			<-gate
		}
		w.WriteHeader(int(r.status.Load()))
		w.Write(body)
	}))
	t.Cleanup(r.srv.Close)
	return r
}

// serveRows replaces the served dataset.
func (r *remote) serveRows(rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.body = testutil.ProductsCSV(testutil.SyntheticRows(rows))
}

// hold makes the next request block until the returned release is called.
func (r *remote) hold() (started <-chan struct{}, release func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gate = make(chan struct{})
	r.started = make(chan struct{})
	gate := r.gate
	var once sync.Once
	return r.started, func() {
		once.Do(func() {
			r.mu.Lock()
			r.gate = nil
			r.mu.Unlock()
			close(gate)
		})
	}
}

type fixture struct {
	ctrl     *Controller
	remote   *remote
	dir      string
	snapshot string
}

func newFixture(t *testing.T, r *remote, dir string, minRows int) *fixture {
	t.Helper()

	acq := dataset.New(dataset.Config{
		RemoteURL:    r.srv.URL,
		CachePath:    filepath.Join(dir, "products.csv"),
		FetchTimeout: 10 * time.Second,
	})
	rules := validation.DefaultRules()
	rules.MinRows = minRows
	snap := filepath.Join(dir, "products.parquet")

	ctrl := New(Config{
		Acquirer:     acq,
		Store:        store.New(store.DefaultOptions()),
		Validator:    validation.NewValidator(rules),
		SnapshotPath: snap,
	})
	t.Cleanup(func() { ctrl.Close() })

	return &fixture{ctrl: ctrl, remote: r, dir: dir, snapshot: snap}
}

func TestEnsureReady(t *testing.T) {
	f := newFixture(t, newRemote(t, 120), t.TempDir(), 10)

	if got := f.ctrl.Info().State; got != StateEmpty {
		t.Fatalf("initial state = %s", got)
	}

	if err := f.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}

	info := f.ctrl.Info()
	if info.State != StateReady || !info.Loaded || info.Rows != 120 || info.Generation != 1 {
		t.Errorf("info = %+v", info)
	}
	if info.Origin != string(dataset.OriginRemote) {
		t.Errorf("origin = %q", info.Origin)
	}
	if !info.CacheFile.Exists || info.Snapshot == nil || !info.Snapshot.Exists {
		t.Errorf("files = %+v / %+v", info.CacheFile, info.Snapshot)
	}
	if info.LastLoad == nil || info.Profile == nil {
		t.Error("expected last load time and profile")
	}

	// ready is a no-op
	if err := f.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.remote.hits.Load() != 1 || f.ctrl.Store().Generation() != 1 {
		t.Errorf("hits=%d gen=%d", f.remote.hits.Load(), f.ctrl.Store().Generation())
	}
}

func TestEnsureReady_ConcurrentCallersShareOneLoad(t *testing.T) {
	r := newRemote(t, 200)
	f := newFixture(t, r, t.TempDir(), 10)
	started, release := r.hold()

	h := testutil.NewTestHelper(t)
	for i := 0; i < 16; i++ {
		h.Add(1)
		go func(id int) {
			defer h.Done()
			if err := f.ctrl.EnsureReady(context.Background()); err != nil {
				h.Errorf("caller %d: %v", id, err)
			}
		}(i)
	}

	<-started
	// let the remaining callers pile onto the in-flight load
	time.Sleep(50 * time.Millisecond)
	release()
	h.Wait()

	if r.hits.Load() != 1 {
		t.Errorf("remote hits = %d, want 1", r.hits.Load())
	}
	if f.ctrl.Store().Generation() != 1 {
		t.Errorf("generation = %d, want 1", f.ctrl.Store().Generation())
	}
}

func TestClearThenEnsureReproducesDataset(t *testing.T) {
	f := newFixture(t, newRemote(t, 150), t.TempDir(), 10)
	ctx := context.Background()

	if err := f.ctrl.EnsureReady(ctx); err != nil {
		t.Fatal(err)
	}
	before := f.ctrl.Info().Rows

	if err := f.ctrl.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	info := f.ctrl.Info()
	if info.State != StateEmpty || info.Loaded || info.CacheFile.Exists || info.Snapshot.Exists {
		t.Fatalf("after clear: %+v", info)
	}

	if err := f.ctrl.EnsureReady(ctx); err != nil {
		t.Fatal(err)
	}
	if after := f.ctrl.Info().Rows; after != before {
		t.Errorf("rows after reload = %d, want %d", after, before)
	}
	if f.remote.hits.Load() != 2 {
		t.Errorf("remote hits = %d, want 2", f.remote.hits.Load())
	}
}

func TestClearDuringLoadDiscardsResult(t *testing.T) {
	r := newRemote(t, 80)
	f := newFixture(t, r, t.TempDir(), 10)
	started, release := r.hold()
	defer release()

	errCh := make(chan error, 1)
	go func() {
		errCh <- f.ctrl.EnsureReady(context.Background())
	}()

	<-started
	if got := f.ctrl.Info().State; got != StateLoading {
		t.Errorf("state during load = %s", got)
	}
	if err := f.ctrl.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}
	release()

	select {
	case err := <-errCh:
		if !errors.Is(err, perrors.ErrLoadSuperseded) {
			t.Fatalf("expected ErrLoadSuperseded, got %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout")
	}

	if f.ctrl.Store().IsLoaded() {
		t.Error("superseded load must not publish")
	}
	info := f.ctrl.Info()
	if info.State != StateEmpty {
		t.Errorf("state = %s, want empty", info.State)
	}
	if info.CacheFile.Exists || info.Snapshot.Exists {
		t.Errorf("superseded load left files behind: %+v / %+v", info.CacheFile, info.Snapshot)
	}

	// a fresh attempt after the clear succeeds
	if err := f.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady after clear: %v", err)
	}
}

func TestClearDuringLoadSerializesNextAttempt(t *testing.T) {
	r := newRemote(t, 80)
	f := newFixture(t, r, t.TempDir(), 10)
	started, release := r.hold()
	defer release()

	first := make(chan error, 1)
	go func() { first <- f.ctrl.EnsureReady(context.Background()) }()
	<-started

	if err := f.ctrl.Clear(context.Background()); err != nil {
		t.Fatal(err)
	}

	second := make(chan error, 1)
	go func() { second <- f.ctrl.EnsureReady(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	if n := r.hits.Load(); n != 1 {
		t.Fatalf("remote hits while first fetch is blocked = %d, want 1", n)
	}
	select {
	case err := <-second:
		t.Fatalf("second attempt finished before the first: %v", err)
	default:
	}

	release()

	for name, ch := range map[string]chan error{"first": first, "second": second} {
		select {
		case err := <-ch:
			if name == "first" && !errors.Is(err, perrors.ErrLoadSuperseded) {
				t.Errorf("first: expected ErrLoadSuperseded, got %v", err)
			}
			if name == "second" && err != nil {
				t.Errorf("second: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("%s attempt timed out", name)
		}
	}

	info := f.ctrl.Info()
	if info.State != StateReady || info.Generation != 1 || !info.CacheFile.Exists {
		t.Errorf("info = %+v", info)
	}
	if n := r.hits.Load(); n != 2 {
		t.Errorf("remote hits = %d, want 2", n)
	}
}

func TestEnsureReady_CallerCancelDoesNotAbortLoad(t *testing.T) {
	r := newRemote(t, 60)
	f := newFixture(t, r, t.TempDir(), 10)
	started, release := r.hold()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- f.ctrl.EnsureReady(ctx) }()

	<-started
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	release()

	// the shared attempt finishes on its own
	if err := f.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.hits.Load() != 1 {
		t.Errorf("remote hits = %d, want 1", r.hits.Load())
	}
}

func TestEnsureReady_FailureThenRecovery(t *testing.T) {
	r := newRemote(t, 50)
	r.status.Store(http.StatusServiceUnavailable)
	f := newFixture(t, r, t.TempDir(), 10)

	err := f.ctrl.EnsureReady(context.Background())
	if !perrors.IsAcquisition(err) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	info := f.ctrl.Info()
	if info.State != StateFailed || info.LastError == "" {
		t.Errorf("info = %+v", info)
	}

	r.status.Store(http.StatusOK)
	if err := f.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.ctrl.Info().State != StateReady {
		t.Error("expected ready after retry")
	}
}

func TestEnsureReady_ValidationFailure(t *testing.T) {
	f := newFixture(t, newRemote(t, 20), t.TempDir(), 1000)

	err := f.ctrl.EnsureReady(context.Background())
	if !perrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.ctrl.Store().IsLoaded() {
		t.Error("store must stay unloaded")
	}
}

func TestEnsureReady_RejectedDownloadIsNotCached(t *testing.T) {
	r := newRemote(t, 20)
	f := newFixture(t, r, t.TempDir(), 100)

	err := f.ctrl.EnsureReady(context.Background())
	if !perrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	info := f.ctrl.Info()
	if info.CacheFile.Exists || info.Snapshot.Exists {
		t.Fatalf("rejected download was cached: %+v / %+v", info.CacheFile, info.Snapshot)
	}

	r.serveRows(200)
	if err := f.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if n := r.hits.Load(); n != 2 {
		t.Errorf("remote hits = %d, want 2", n)
	}
	if info := f.ctrl.Info(); info.Rows != 200 || !info.CacheFile.Exists {
		t.Errorf("info = %+v", info)
	}
}

func TestSnapshotReusedOnRestart(t *testing.T) {
	r := newRemote(t, 90)
	dir := t.TempDir()

	first := newFixture(t, r, dir, 10)
	if err := first.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	first.ctrl.Close()

	second := newFixture(t, r, dir, 10)
	if err := second.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}

	info := second.ctrl.Info()
	if info.Origin != OriginSnapshot {
		t.Errorf("origin = %q, want snapshot", info.Origin)
	}
	if info.Rows != 90 {
		t.Errorf("rows = %d", info.Rows)
	}
	if info.Profile == nil || info.Profile.Rows != 90 {
		t.Errorf("profile = %+v", info.Profile)
	}
	if r.hits.Load() != 1 {
		t.Errorf("remote hits = %d, want 1", r.hits.Load())
	}
}

func TestSnapshotRevalidatedOnRestart(t *testing.T) {
	r := newRemote(t, 90)
	dir := t.TempDir()

	first := newFixture(t, r, dir, 10)
	if err := first.ctrl.EnsureReady(context.Background()); err != nil {
		t.Fatal(err)
	}
	first.ctrl.Close()

	// a stricter floor rejects the snapshot's products
	second := newFixture(t, r, dir, 500)
	err := second.ctrl.EnsureReady(context.Background())
	if !perrors.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if second.ctrl.Store().IsLoaded() {
		t.Error("store must stay unloaded")
	}
}

func TestReload(t *testing.T) {
	f := newFixture(t, newRemote(t, 40), t.TempDir(), 10)
	ctx := context.Background()

	if err := f.ctrl.EnsureReady(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if g := f.ctrl.Store().Generation(); g != 2 {
		t.Errorf("generation = %d, want 2", g)
	}
	if f.ctrl.Info().State != StateReady {
		t.Error("expected ready")
	}
}

func TestInfoDoesNotLoad(t *testing.T) {
	f := newFixture(t, newRemote(t, 40), t.TempDir(), 10)

	for i := 0; i < 3; i++ {
		f.ctrl.Info()
	}
	if f.remote.hits.Load() != 0 || f.ctrl.Store().IsLoaded() {
		t.Error("Info must not trigger a load")
	}
}
