package storage

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage/backend"
	"github.com/yndnr/clinvault/internal/storage/cache"
	"github.com/yndnr/clinvault/internal/storage/memory"
	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testKey(t *testing.T) string {
	t.Helper()
	key, err := sealer.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key
}

// flakyStore fails session writes while failing is set.
type flakyStore struct {
	*memory.Store
	mu      sync.Mutex
	failing bool
}

func (f *flakyStore) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *flakyStore) PutSession(ctx context.Context, row backend.SessionRow) (bool, error) {
	f.mu.Lock()
	failing := f.failing
	f.mu.Unlock()
	if failing {
		return false, domain.ErrStorage.WithDetails("put session").WithCause(errors.New("disk full"))
	}
	return f.Store.PutSession(ctx, row)
}

// pausingStore holds the next GetSession after it has read the row, until
// release is closed.
type pausingStore struct {
	*memory.Store
	mu      sync.Mutex
	armed   bool
	read    chan struct{}
	release chan struct{}
}

func newPausingStore() *pausingStore {
	return &pausingStore{Store: memory.New()}
}

func (p *pausingStore) arm() {
	p.mu.Lock()
	p.armed = true
	p.read = make(chan struct{})
	p.release = make(chan struct{})
	p.mu.Unlock()
}

func (p *pausingStore) GetSession(ctx context.Context, id string) (*backend.SessionRow, error) {
	row, err := p.Store.GetSession(ctx, id)

	p.mu.Lock()
	armed := p.armed
	p.armed = false
	read, release := p.read, p.release
	p.mu.Unlock()

	if armed {
		close(read)
		<-release
	}
	return row, err
}

// newMemoryEngine returns an engine whose "sqlite" slot is served by store.
func newMemoryEngine(t *testing.T, store backend.Backend, clock *fakeClock) *Engine {
	t.Helper()
	sel := NewSelector(Options{
		Backend:       string(backend.KindSQLite),
		DataDir:       t.TempDir(),
		EncryptionKey: testKey(t),
		Environment:   sealer.EnvProduction,
	})
	sel.Register(backend.KindSQLite, func(context.Context, Options) (backend.Backend, error) {
		return store, nil
	})

	cfg := Config{}
	if clock != nil {
		cfg.Now = clock.Now
		cfg.Cache = cache.Config{Now: clock.Now}
	}
	e := NewEngine(sel, cfg)
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func newSession(t *testing.T, userID string) *domain.Session {
	t.Helper()
	s, err := domain.NewSession(userID)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func TestEngine_NotInitialized(t *testing.T) {
	e := NewEngine(NewSelector(Options{DataDir: t.TempDir()}), Config{})

	_, err := e.LoadSession(context.Background(), "sess-x")
	if !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("LoadSession error = %v, want ErrNotInitialized", err)
	}
	if err := e.SaveSession(context.Background(), newSession(t, "u1")); !errors.Is(err, domain.ErrNotInitialized) {
		t.Errorf("SaveSession error = %v, want ErrNotInitialized", err)
	}
	if got := e.StorageStats(); got.Backend != "" {
		t.Errorf("Backend = %q before Initialize, want empty", got.Backend)
	}
}

func TestEngine_InitializeIdempotent(t *testing.T) {
	store := memory.New()
	e := newMemoryEngine(t, store, nil)

	first := e.st.Load()
	if err := e.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if e.st.Load() != first {
		t.Error("second Initialize rebuilt the engine state")
	}
}

// TestEngine_SessionLifecycle walks a session through create, cached read
// and audit review on a durable backend.
func TestEngine_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	sel := NewSelector(Options{
		Backend:       string(backend.KindSQLite),
		DataDir:       dir,
		EncryptionKey: testKey(t),
		Environment:   sealer.EnvProduction,
	})
	e := NewEngine(sel, Config{})
	if err := e.Initialize(ctx); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	defer e.Close()

	if e.IsDegraded() {
		t.Fatalf("engine degraded: %v", e.LastInitError())
	}

	s := newSession(t, "u1")
	s.AppendMessage(domain.RoleUser, "hola", "")
	if err := e.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if s.Metadata.CreatedAt == 0 || s.Metadata.UpdatedAt == 0 {
		t.Error("timestamps not stamped")
	}

	got, err := e.LoadSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got == nil || got.MessageCount() != 1 || got.Messages[0].Content != "hola" {
		t.Fatalf("LoadSession = %+v", got)
	}

	log, err := e.GetAuditLog(ctx, s.ID, 10)
	if err != nil {
		t.Fatalf("GetAuditLog: %v", err)
	}
	if len(log) != 2 {
		t.Fatalf("audit entries = %d, want 2", len(log))
	}
	if log[0].Action != domain.AuditRead || log[1].Action != domain.AuditCreate {
		t.Errorf("audit actions = [%s %s], want [read create]", log[0].Action, log[1].Action)
	}
	if log[0].ActorID != "u1" {
		t.Errorf("actor = %q, want owner u1", log[0].ActorID)
	}

	stats := e.StorageStats()
	if stats.Backend != backend.KindSQLite || !stats.Durable {
		t.Errorf("stats backend = %s durable=%v", stats.Backend, stats.Durable)
	}
	if stats.Cache.Hits != 1 {
		t.Errorf("cache hits = %d, want 1", stats.Cache.Hits)
	}

	// The payload column never holds plaintext.
	for _, name := range []string{DefaultSQLiteFile, DefaultSQLiteFile + "-wal"} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		if bytes.Contains(raw, []byte("hola")) {
			t.Errorf("%s contains plaintext message content", name)
		}
	}
}

func TestEngine_UpdateAudited(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	e := newMemoryEngine(t, memory.New(), clock)

	s := newSession(t, "u1")
	s.Metadata.CreatedAt = 0
	if err := e.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	created := s.Metadata.CreatedAt
	if created != clock.Now().UnixMilli() {
		t.Errorf("CreatedAt = %d, want engine clock", created)
	}

	clock.Advance(time.Second)
	s.AppendMessage(domain.RoleAssistant, "ok", "triage")
	if err := e.SaveSession(WithActor(ctx, "dr-7"), s); err != nil {
		t.Fatalf("SaveSession update: %v", err)
	}
	if s.Metadata.CreatedAt != created {
		t.Error("CreatedAt changed on update")
	}
	if s.Metadata.UpdatedAt != created+1000 {
		t.Errorf("UpdatedAt = %d, want %d", s.Metadata.UpdatedAt, created+1000)
	}

	log, _ := e.GetAuditLog(ctx, s.ID, 0)
	if len(log) != 2 || log[0].Action != domain.AuditUpdate || log[0].ActorID != "dr-7" {
		t.Fatalf("audit log = %+v", log)
	}
}

func TestEngine_WriteThrough(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := newMemoryEngine(t, store, nil)

	s := newSession(t, "u1")
	if err := e.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	row, err := store.GetSession(ctx, s.ID)
	if err != nil || row == nil {
		t.Fatalf("backend row missing after save: %v", err)
	}
	if row.UserID != "u1" {
		t.Errorf("row UserID = %q", row.UserID)
	}
	if e.StorageStats().CacheSize != 1 {
		t.Error("session not cached after save")
	}
}

func TestEngine_SaveRollsBackCache(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{Store: memory.New()}
	e := newMemoryEngine(t, store, nil)

	t.Run("new session", func(t *testing.T) {
		store.setFailing(true)
		defer store.setFailing(false)

		s := newSession(t, "u1")
		if err := e.SaveSession(ctx, s); !errors.Is(err, domain.ErrStorage) {
			t.Fatalf("SaveSession error = %v, want ErrStorage", err)
		}
		if e.st.Load().cache.Peek(s.ID) != nil {
			t.Error("failed save left an entry in the cache")
		}
		got, err := e.LoadSession(ctx, s.ID)
		if err != nil || got != nil {
			t.Errorf("LoadSession = %v, %v; want nil, nil", got, err)
		}
	})

	t.Run("existing session", func(t *testing.T) {
		s := newSession(t, "u1")
		s.AppendMessage(domain.RoleUser, "v1", "")
		if err := e.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}

		store.setFailing(true)
		s.AppendMessage(domain.RoleUser, "v2", "")
		err := e.SaveSession(ctx, s)
		store.setFailing(false)
		if err == nil {
			t.Fatal("expected error")
		}

		got, err := e.LoadSession(ctx, s.ID)
		if err != nil {
			t.Fatalf("LoadSession: %v", err)
		}
		if got.MessageCount() != 1 {
			t.Errorf("MessageCount = %d after failed update, want 1", got.MessageCount())
		}
	})

	t.Run("no audit on failure", func(t *testing.T) {
		store.setFailing(true)
		defer store.setFailing(false)

		s := newSession(t, "u1")
		_ = e.SaveSession(ctx, s)
		log, _ := e.GetAuditLog(ctx, s.ID, 0)
		if len(log) != 0 {
			t.Errorf("audit entries = %d after failed save, want 0", len(log))
		}
	})
}

func TestEngine_ReadThroughAfterExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	e := newMemoryEngine(t, memory.New(), clock)

	s := newSession(t, "u1")
	if err := e.SaveSession(ctx, s); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	clock.Advance(cache.DefaultTTL + time.Second)
	got, err := e.LoadSession(ctx, s.ID)
	if err != nil || got == nil {
		t.Fatalf("LoadSession = %v, %v", got, err)
	}

	cs := e.StorageStats().Cache
	if cs.Misses != 1 || cs.Expirations != 1 {
		t.Errorf("misses=%d expirations=%d, want 1/1", cs.Misses, cs.Expirations)
	}

	log, _ := e.GetAuditLog(ctx, s.ID, 1)
	if len(log) != 1 || log[0].Metadata["source"] != "backend" {
		t.Errorf("latest audit = %+v, want read from backend", log)
	}

	// Warmed again.
	if _, err := e.LoadSession(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if e.StorageStats().Cache.Hits != 1 {
		t.Error("second load did not hit the cache")
	}
}

func TestEngine_LoadMissing(t *testing.T) {
	e := newMemoryEngine(t, memory.New(), nil)

	got, err := e.LoadSession(context.Background(), "sess-missing")
	if err != nil || got != nil {
		t.Errorf("LoadSession = %v, %v; want nil, nil", got, err)
	}
	if _, err := e.LoadSession(context.Background(), ""); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("empty id error = %v, want ErrInvalidArgument", err)
	}

	log, _ := e.GetAuditLog(context.Background(), "sess-missing", 0)
	if len(log) != 0 {
		t.Error("miss of an absent session was audited")
	}
}

func TestEngine_DeleteSession(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := newMemoryEngine(t, store, nil)

	s := newSession(t, "u1")
	if err := e.SaveSession(ctx, s); err != nil {
		t.Fatal(err)
	}
	// Force the owner lookup through the backend.
	e.st.Load().cache.Clear()

	if err := e.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if row, _ := store.GetSession(ctx, s.ID); row != nil {
		t.Error("row still present after delete")
	}
	got, err := e.LoadSession(ctx, s.ID)
	if err != nil || got != nil {
		t.Errorf("LoadSession after delete = %v, %v", got, err)
	}

	log, _ := e.GetAuditLog(ctx, s.ID, 0)
	if len(log) != 2 || log[0].Action != domain.AuditDelete || log[0].ActorID != "u1" {
		t.Fatalf("audit log = %+v", log)
	}

	// Deleting again is a no-op and is not audited.
	if err := e.DeleteSession(ctx, s.ID); err != nil {
		t.Fatalf("second DeleteSession: %v", err)
	}
	log, _ = e.GetAuditLog(ctx, s.ID, 0)
	if len(log) != 2 {
		t.Errorf("audit entries = %d after deleting a missing session, want 2", len(log))
	}
}

func TestEngine_LoadRacingSave(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newPausingStore()
	e := newMemoryEngine(t, store, clock)

	v1 := newSession(t, "u1")
	v1.AppendMessage(domain.RoleUser, "first", "")
	if err := e.SaveSession(ctx, v1); err != nil {
		t.Fatal(err)
	}
	clock.Advance(cache.DefaultTTL + time.Second)

	store.arm()
	loaded := make(chan error, 1)
	go func() {
		_, err := e.LoadSession(ctx, v1.ID)
		loaded <- err
	}()
	<-store.read

	v2 := v1.Clone()
	v2.AppendMessage(domain.RoleAssistant, "second", "")
	if err := e.SaveSession(ctx, v2); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	close(store.release)
	if err := <-loaded; err != nil {
		t.Fatalf("LoadSession: %v", err)
	}

	got, err := e.LoadSession(ctx, v1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MessageCount() != 2 {
		t.Errorf("messages = %d after save returned, want 2", got.MessageCount())
	}
}

func TestEngine_LoadRacingDelete(t *testing.T) {
	ctx := context.Background()
	store := newPausingStore()
	e := newMemoryEngine(t, store, nil)

	s := newSession(t, "u1")
	if err := e.SaveSession(ctx, s); err != nil {
		t.Fatal(err)
	}
	e.st.Load().cache.Clear()

	store.arm()
	loaded := make(chan error, 1)
	go func() {
		_, err := e.LoadSession(ctx, s.ID)
		loaded <- err
	}()
	<-store.read

	if err := e.DeleteSession(WithActor(ctx, "admin"), s.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	close(store.release)
	if err := <-loaded; err != nil {
		t.Fatalf("LoadSession: %v", err)
	}

	if e.st.Load().cache.Peek(s.ID) != nil {
		t.Error("deleted session was cached by a racing load")
	}
	got, err := e.LoadSession(ctx, s.ID)
	if err != nil || got != nil {
		t.Errorf("LoadSession after delete = %v, %v; want nil, nil", got, err)
	}
}

func TestEngine_TamperedPayload(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := newMemoryEngine(t, store, nil)

	s := newSession(t, "u1")
	if err := e.SaveSession(ctx, s); err != nil {
		t.Fatal(err)
	}
	e.st.Load().cache.Clear()

	row, _ := store.GetSession(ctx, s.ID)
	row.Payload[len(row.Payload)-1] ^= 0xff
	if _, err := store.PutSession(ctx, *row); err != nil {
		t.Fatal(err)
	}

	got, err := e.LoadSession(ctx, s.ID)
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("LoadSession error = %v, want ErrIntegrity", err)
	}
	if got != nil {
		t.Error("tampered session returned")
	}
	if e.StorageStats().CacheSize != 0 {
		t.Error("tampered session was cached")
	}
}

func TestEngine_SwappedPayload(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	e := newMemoryEngine(t, store, nil)

	a, b := newSession(t, "u1"), newSession(t, "u1")
	for _, s := range []*domain.Session{a, b} {
		if err := e.SaveSession(ctx, s); err != nil {
			t.Fatal(err)
		}
	}
	e.st.Load().cache.Clear()

	rowA, _ := store.GetSession(ctx, a.ID)
	rowB, _ := store.GetSession(ctx, b.ID)
	rowB.Payload = rowA.Payload
	if _, err := store.PutSession(ctx, *rowB); err != nil {
		t.Fatal(err)
	}

	if _, err := e.LoadSession(ctx, b.ID); !errors.Is(err, domain.ErrIntegrity) {
		t.Errorf("LoadSession error = %v, want ErrIntegrity", err)
	}
}

func TestEngine_ListSessionsByUser(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	e := newMemoryEngine(t, memory.New(), clock)

	ids := make(map[string]bool)
	for i := 0; i < 5; i++ {
		s := newSession(t, "u1")
		if err := e.SaveSession(ctx, s); err != nil {
			t.Fatal(err)
		}
		ids[s.ID] = true
		clock.Advance(time.Millisecond)
	}
	if err := e.SaveSession(ctx, newSession(t, "u2")); err != nil {
		t.Fatal(err)
	}
	e.st.Load().cache.Clear()

	seen := make(map[string]bool)
	var last int64 = 1<<63 - 1
	token := ""
	for {
		page, err := e.ListSessionsByUser(ctx, ListOptions{UserID: "u1", PageSize: 2, PageToken: token})
		if err != nil {
			t.Fatalf("ListSessionsByUser: %v", err)
		}
		if page.Total != 5 {
			t.Errorf("Total = %d, want 5", page.Total)
		}
		for _, s := range page.Sessions {
			if seen[s.ID] {
				t.Errorf("session %s listed twice", s.ID)
			}
			seen[s.ID] = true
			if s.Metadata.UpdatedAt > last {
				t.Error("sessions not ordered newest first")
			}
			last = s.Metadata.UpdatedAt
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	if len(seen) != len(ids) {
		t.Errorf("listed %d sessions, want %d", len(seen), len(ids))
	}

	if e.StorageStats().CacheSize != 0 {
		t.Error("listing warmed the cache")
	}

	_, err := e.ListSessionsByUser(ctx, ListOptions{UserID: "u1", PageToken: "%%%"})
	if !errors.Is(err, domain.ErrInvalidPageToken) {
		t.Errorf("bad token error = %v, want ErrInvalidPageToken", err)
	}
}

func TestEngine_Files(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	e := newMemoryEngine(t, memory.New(), clock)

	var saved []*domain.ClinicalFile
	for _, name := range []string{"a.pdf", "b.pdf"} {
		f, err := domain.NewClinicalFile("sess-1", name, "application/pdf", 42)
		if err != nil {
			t.Fatal(err)
		}
		f.ContentRef = "blob/" + name
		f.CreatedAt = 0
		if err := e.SaveFile(ctx, f); err != nil {
			t.Fatalf("SaveFile: %v", err)
		}
		saved = append(saved, f)
		clock.Advance(time.Millisecond)
	}

	got, err := e.GetFile(ctx, saved[0].ID)
	if err != nil || got == nil || got.ContentRef != "blob/a.pdf" {
		t.Fatalf("GetFile = %+v, %v", got, err)
	}

	list, err := e.GetFilesBySession(ctx, "sess-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name != "a.pdf" {
		t.Errorf("GetFilesBySession = %d files, first %+v", len(list), list)
	}

	if err := e.DeleteFile(ctx, saved[0].ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := e.GetFile(ctx, saved[0].ID); got != nil {
		t.Error("file present after delete")
	}
	if err := e.DeleteFile(ctx, saved[0].ID); err != nil {
		t.Errorf("deleting a missing file: %v", err)
	}
}

func TestEngine_Records(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	e := newMemoryEngine(t, memory.New(), clock)

	r1, err := domain.NewClinicalRecord("p1", map[string]any{"dx": "flu"})
	if err != nil {
		t.Fatal(err)
	}
	r1.Version = 0
	if err := e.SaveRecord(ctx, r1); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}
	if r1.Version != 1 {
		t.Errorf("Version = %d, want 1", r1.Version)
	}

	clock.Advance(time.Second)
	r2, _ := domain.NewClinicalRecord("p1", map[string]any{"dx": "cold"})
	if err := e.SaveRecord(ctx, r2); err != nil {
		t.Fatal(err)
	}

	got, err := e.GetRecord(ctx, r1.ID)
	if err != nil || got == nil {
		t.Fatalf("GetRecord = %v, %v", got, err)
	}
	fields, err := got.Fields()
	if err != nil || fields["dx"] != "flu" {
		t.Errorf("Fields = %v, %v", fields, err)
	}

	list, err := e.GetRecordsByPatient(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != r2.ID {
		t.Errorf("GetRecordsByPatient not newest first")
	}
}

func TestEngine_NilArguments(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEngine(t, memory.New(), nil)

	if err := e.SaveSession(ctx, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("SaveSession(nil) = %v", err)
	}
	if err := e.SaveFile(ctx, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("SaveFile(nil) = %v", err)
	}
	if err := e.SaveRecord(ctx, nil); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("SaveRecord(nil) = %v", err)
	}
	if err := e.SaveSession(ctx, &domain.Session{ID: "sess-x"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("SaveSession without owner = %v, want ErrValidation", err)
	}
}

func TestEngine_DegradedFallback(t *testing.T) {
	t.Run("missing production key", func(t *testing.T) {
		sel := NewSelector(Options{
			Backend:     string(backend.KindSQLite),
			DataDir:     t.TempDir(),
			Environment: sealer.EnvProduction,
		})
		e := NewEngine(sel, Config{})
		if err := e.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		defer e.Close()

		if !e.IsDegraded() {
			t.Fatal("engine not degraded")
		}
		if !errors.Is(e.LastInitError(), domain.ErrMissingKey) {
			t.Errorf("LastInitError = %v, want ErrMissingKey", e.LastInitError())
		}
		stats := e.StorageStats()
		if stats.Backend != backend.KindMemory || stats.Durable || !stats.Degraded {
			t.Errorf("stats = %+v", stats)
		}

		// Still serves requests.
		s := newSession(t, "u1")
		if err := e.SaveSession(context.Background(), s); err != nil {
			t.Fatalf("SaveSession on fallback: %v", err)
		}
		if got, _ := e.LoadSession(context.Background(), s.ID); got == nil {
			t.Error("fallback lost the session")
		}
	})

	t.Run("unopenable data dir", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		sel := NewSelector(Options{
			Backend:       string(backend.KindKV),
			DataDir:       filepath.Join(blocker, "data"),
			EncryptionKey: testKey(t),
		})
		e := NewEngine(sel, Config{})
		if err := e.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize: %v", err)
		}
		defer e.Close()

		if !e.IsDegraded() || e.LastInitError() == nil {
			t.Errorf("degraded=%v err=%v", e.IsDegraded(), e.LastInitError())
		}
	})

	t.Run("auto with unwritable dir is not degraded", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		sel := NewSelector(Options{
			DataDir:       filepath.Join(blocker, "data"),
			EncryptionKey: testKey(t),
		})
		e := NewEngine(sel, Config{})
		if err := e.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
		defer e.Close()

		if e.IsDegraded() {
			t.Error("auto selection of memory reported as degraded")
		}
		if e.StorageStats().Backend != backend.KindMemory {
			t.Errorf("backend = %s, want memory", e.StorageStats().Backend)
		}
	})
}

func TestEngine_Close(t *testing.T) {
	store := memory.New()
	e := newMemoryEngine(t, store, nil)

	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if _, err := e.LoadSession(context.Background(), "sess-x"); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("LoadSession after Close = %v, want ErrClosed", err)
	}
	if err := e.Initialize(context.Background()); !errors.Is(err, domain.ErrClosed) {
		t.Errorf("Initialize after Close = %v, want ErrClosed", err)
	}
}

func TestEngine_MetricsSnapshot(t *testing.T) {
	ctx := context.Background()
	e := newMemoryEngine(t, memory.New(), nil)

	s := newSession(t, "u1")
	_ = e.SaveSession(ctx, s)
	_, _ = e.LoadSession(ctx, s.ID)

	snap := e.MetricsSnapshot()
	if snap.Backend != string(backend.KindMemory) {
		t.Errorf("Backend = %q", snap.Backend)
	}
	if snap.CacheSize != 1 || snap.CacheCapacity != cache.DefaultCapacity {
		t.Errorf("cache size/capacity = %d/%d", snap.CacheSize, snap.CacheCapacity)
	}
	if snap.CacheHits != 1 || snap.AuditWritten != 2 {
		t.Errorf("hits=%d audit_written=%d, want 1/2", snap.CacheHits, snap.AuditWritten)
	}
}

func TestEngine_Backup(t *testing.T) {
	ctx := context.Background()

	t.Run("unsupported", func(t *testing.T) {
		e := newMemoryEngine(t, memory.New(), nil)
		var buf bytes.Buffer
		if _, err := e.Backup(ctx, &buf); !errors.Is(err, domain.ErrUnsupported) {
			t.Errorf("Backup on memory = %v, want ErrUnsupported", err)
		}
	})

	t.Run("kv", func(t *testing.T) {
		e := NewEngine(NewSelector(Options{
			Backend:       "kv",
			DataDir:       t.TempDir(),
			EncryptionKey: testKey(t),
		}), Config{})
		if err := e.Initialize(ctx); err != nil {
			t.Fatal(err)
		}
		defer e.Close()

		if err := e.SaveSession(ctx, newSession(t, "u1")); err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		if _, err := e.Backup(ctx, &buf); err != nil {
			t.Fatalf("Backup: %v", err)
		}
		if buf.Len() == 0 {
			t.Error("backup stream is empty")
		}
		if fp := e.StorageStats().KeyFingerprint; fp == "" {
			t.Error("KeyFingerprint not reported")
		}
	})
}
