package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

// runApp runs the CLI with a throwaway profile and captures its output.
func runApp(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	app := App()
	var out, errOut bytes.Buffer
	app.Writer, app.ErrWriter = &out, &errOut
	app.ExitErrHandler = func(*cli.Context, error) {}

	full := append([]string{"clinvault-cli", "--profile", filepath.Join(t.TempDir(), "cli.yaml")}, args...)
	err = app.Run(full)
	return out.String(), errOut.String(), err
}

// testStore is a server config file over a fresh data directory.
type testStore struct {
	dir, configPath, key, backend string
}

func newTestStore(t *testing.T, backend string) *testStore {
	t.Helper()
	key, err := sealer.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	ts := &testStore{dir: t.TempDir(), key: key, backend: backend}
	ts.configPath = filepath.Join(t.TempDir(), "server.yaml")

	yaml := fmt.Sprintf(`storage:
  backend: %s
  data_dir: %s
security:
  encryption_key: %s
  environment: production
`, backend, ts.dir, key)
	if err := os.WriteFile(ts.configPath, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return ts
}

// seed writes through a separate engine that is closed before returning.
func (ts *testStore) seed(t *testing.T, fn func(ctx context.Context, e *storage.Engine)) {
	t.Helper()
	e := storage.NewEngine(storage.NewSelector(storage.Options{
		Backend:       ts.backend,
		DataDir:       ts.dir,
		EncryptionKey: ts.key,
		Environment:   sealer.EnvProduction,
	}), storage.Config{})
	ctx := context.Background()
	if err := e.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if e.IsDegraded() {
		t.Fatalf("seed engine degraded: %v", e.LastInitError())
	}
	fn(ctx, e)
	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
}

func saveSession(t *testing.T, ctx context.Context, e *storage.Engine, id, userID string, msgs ...string) {
	t.Helper()
	s, err := domain.NewSession(userID)
	if err != nil {
		t.Fatal(err)
	}
	s.ID = id
	for _, m := range msgs {
		s.Messages = append(s.Messages, domain.Message{Role: "user", Content: m, Timestamp: 1_700_000_000_000})
	}
	if err := e.SaveSession(ctx, s); err != nil {
		t.Fatal(err)
	}
}
