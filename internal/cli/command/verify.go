package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

// VerifyCommand returns the verify command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:   "verify",
		Usage:  "Self-test the configured key and storage backend",
		Action: verify,
	}
}

type verifyResult struct {
	KeySource   string `json:"key_source" yaml:"key_source"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
	CipherCheck string `json:"cipher_check" yaml:"cipher_check"`
	Backend     string `json:"backend" yaml:"backend"`
	Durable     bool   `json:"durable" yaml:"durable"`
	Degraded    bool   `json:"degraded" yaml:"degraded"`
	Error       string `json:"error,omitempty" yaml:"error,omitempty"`
}

// verify checks the key the way the server would resolve it, then opens
// the configured backend. It exits non-zero on any failure.
func verify(c *cli.Context) error {
	cfg, err := loadServerConfig(c)
	if err != nil {
		return err
	}
	log, err := cliLogger(c)
	if err != nil {
		return err
	}

	res := verifyResult{CipherCheck: "failed"}
	failed := func(err error) error {
		res.Error = err.Error()
		if rerr := render(c, res); rerr != nil {
			return rerr
		}
		return cli.Exit("verification failed", 1)
	}

	key, source, err := sealer.ResolveKey(cfg.Security.EncryptionKey, cfg.Security.Environment, log)
	if err != nil {
		return failed(err)
	}
	res.KeySource = string(source)
	res.Fingerprint = sealer.Fingerprint(key)

	cipher, err := sealer.New(key)
	sealer.ZeroKey(key)
	if err != nil {
		return failed(err)
	}
	if err := sealer.VerifyEncryptionSetup(cipher); err != nil {
		return failed(err)
	}
	res.CipherCheck = "ok"

	engine := storage.NewEngine(
		storage.NewSelector(cfg.StorageOptions(log, nil)),
		storage.Config{Cache: cfg.CacheConfig(), Logger: log},
	)
	if err := engine.Initialize(c.Context); err != nil {
		return failed(err)
	}
	defer engine.Close()

	stats := engine.StorageStats()
	res.Backend = string(stats.Backend)
	res.Durable = stats.Durable
	res.Degraded = stats.Degraded
	if stats.Degraded {
		return failed(fmt.Errorf("durable backend unavailable: %w", engine.LastInitError()))
	}
	return render(c, res)
}
