package command

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/clinvault/internal/cli/connection"
	"github.com/yndnr/clinvault/internal/infra/buildinfo"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Storage and server status",
		Subcommands: []*cli.Command{
			{
				Name:   "stats",
				Usage:  "Open the store and show backend statistics",
				Action: systemStats,
			},
			{
				Name:   "status",
				Usage:  "Show the running server's status",
				Action: systemStatus,
			},
			{
				Name:   "health",
				Usage:  "Check the running server's health",
				Action: systemHealth,
			},
			{
				Name:   "version",
				Usage:  "Show build information",
				Action: func(c *cli.Context) error {
					return render(c, buildinfo.Get())
				},
			},
		},
	}
}

// statsView is the JSON and table view of storage.Stats.
type statsView struct {
	Backend        string  `json:"backend" yaml:"backend"`
	Durable        bool    `json:"durable" yaml:"durable"`
	Degraded       bool    `json:"degraded" yaml:"degraded"`
	KeyFingerprint string  `json:"key_fingerprint,omitempty" yaml:"key_fingerprint,omitempty"`
	CacheSize      int     `json:"cache_size" yaml:"cache_size"`
	CacheCapacity  int     `json:"cache_capacity" yaml:"cache_capacity"`
	CacheUtil      float64 `json:"cache_utilization" yaml:"cache_utilization"`
	AuditWritten   uint64  `json:"audit_written" yaml:"audit_written"`
	AuditFailed    uint64  `json:"audit_failed" yaml:"audit_failed"`
}

func systemStats(c *cli.Context) error {
	engine, err := openStore(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	s := engine.StorageStats()
	return render(c, statsView{
		Backend:        string(s.Backend),
		Durable:        s.Durable,
		Degraded:       s.Degraded,
		KeyFingerprint: s.KeyFingerprint,
		CacheSize:      s.CacheSize,
		CacheCapacity:  s.CacheCapacity,
		CacheUtil:      s.CacheUtilization,
		AuditWritten:   s.Audit.Written,
		AuditFailed:    s.Audit.Failed,
	})
}

func adminGet(c *cli.Context, path string, target any) error {
	ctx, cancel := context.WithTimeout(c.Context, connection.DefaultTimeout)
	defer cancel()
	return connection.NewAdminClient(ParseGlobalFlags(c).AdminAddr, 0).Get(ctx, path, nil, target)
}

func systemStatus(c *cli.Context) error {
	var status map[string]any
	if err := adminGet(c, "/admin/v1/status", &status); err != nil {
		return err
	}
	if !isTable(c) {
		return render(c, status)
	}

	storage, _ := status["storage"].(map[string]any)
	build, _ := status["build"].(map[string]any)
	w := c.App.Writer
	fmt.Fprintf(w, "Server:    %s\n", ParseGlobalFlags(c).AdminAddr)
	fmt.Fprintf(w, "Version:   %v\n", build["version"])
	fmt.Fprintf(w, "Backend:   %v\n", storage["backend"])
	fmt.Fprintf(w, "Durable:   %v\n", storage["durable"])
	fmt.Fprintf(w, "Degraded:  %v\n", storage["degraded"])
	if cache, ok := storage["cache"].(map[string]any); ok {
		fmt.Fprintf(w, "Cache:     %v/%v entries, %v hits, %v misses\n",
			cache["size"], cache["capacity"], cache["hits"], cache["misses"])
	}
	if audit, ok := storage["audit"].(map[string]any); ok {
		fmt.Fprintf(w, "Audit:     %v written, %v failed\n", audit["written"], audit["failed"])
	}
	return nil
}

type healthView struct {
	Status    string `json:"status" yaml:"status"`
	Backend   string `json:"backend,omitempty" yaml:"backend,omitempty"`
	Durable   bool   `json:"durable" yaml:"durable"`
	Degraded  bool   `json:"degraded" yaml:"degraded"`
	LastError string `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// systemHealth exits 1 when the server is unreachable or degraded.
func systemHealth(c *cli.Context) error {
	var h healthView
	if err := adminGet(c, "/healthz", &h); err != nil {
		return cli.Exit(fmt.Sprintf("server unreachable: %v", err), 1)
	}
	if err := render(c, h); err != nil {
		return err
	}
	if h.Degraded {
		return cli.Exit("server is running on the ephemeral fallback", 1)
	}
	return nil
}
