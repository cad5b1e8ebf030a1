package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/yndnr/clinvault/internal/cli/config"
	"github.com/yndnr/clinvault/internal/cli/output"
	"github.com/yndnr/clinvault/internal/infra/buildinfo"
	"github.com/yndnr/clinvault/internal/infra/confloader"
	"github.com/yndnr/clinvault/internal/server/config"
	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/internal/telemetry/logger"
)

const profileKey = "profile"

// DefaultActor is recorded in the audit log for reads made by the CLI.
const DefaultActor = "clinvault-cli"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "clinvault-cli",
		Usage:   "clinvault command-line management tool",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			KeygenCommand(),
			VerifyCommand(),
			SessionCommand(),
			AuditCommand(),
			SystemCommand(),
			BackupCommand(),
			ConfigCommand(),
		},
		Before: func(c *cli.Context) error {
			profile, err := cliconfig.Load(c.String("profile"))
			if err != nil {
				return err
			}
			if c.App.Metadata == nil {
				c.App.Metadata = map[string]any{}
			}
			c.App.Metadata[profileKey] = profile

			_, err = output.ParseFormat(ParseGlobalFlags(c).Output)
			return err
		},
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "profile",
			Usage:   "CLI profile file (default ~/.clinvault/cli.yaml)",
			EnvVars: []string{"CLINVAULT_CLI_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "clinvault-server configuration file",
			EnvVars: []string{"CLINVAULT_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "admin",
			Aliases: []string{"a"},
			Usage:   "clinvault-server admin address (host:port or unix:/path)",
			EnvVars: []string{"CLINVAULT_ADMIN_ADDR"},
		},
		&cli.StringFlag{
			Name:    "actor",
			Usage:   "actor recorded in the audit log for reads",
			EnvVars: []string{"CLINVAULT_ACTOR"},
			Value:   DefaultActor,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Log storage activity to stderr",
		},
	}
}

// GlobalFlags are the global flags resolved against the profile.
type GlobalFlags struct {
	ServerConfig string
	AdminAddr    string
	Actor        string
	Output       string
	Wide         bool
	Verbose      bool
}

// ParseGlobalFlags extracts global flags from context. Flags that were not
// given fall back to the profile.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	flags := &GlobalFlags{
		ServerConfig: c.String("config"),
		AdminAddr:    c.String("admin"),
		Actor:        c.String("actor"),
		Output:       c.String("output"),
		Wide:         c.Bool("wide"),
		Verbose:      c.Bool("verbose"),
	}

	profile, ok := c.App.Metadata[profileKey].(*cliconfig.CLIConfig)
	if !ok {
		profile = cliconfig.Default()
	}
	if flags.ServerConfig == "" {
		flags.ServerConfig = profile.ServerConfig
	}
	if flags.AdminAddr == "" {
		flags.AdminAddr = profile.AdminAddr
	}
	if flags.Output == "" {
		flags.Output = profile.Output
	}
	return flags
}

// render writes data in the selected format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, flags.Wide).Format(c.App.Writer, data)
}

func isTable(c *cli.Context) bool {
	format, _ := output.ParseFormat(ParseGlobalFlags(c).Output)
	return format == output.FormatTable
}

// loadServerConfig layers the server config file and CLINVAULT_*
// environment over the defaults, like clinvault-server does.
func loadServerConfig(c *cli.Context) (*config.ServerConfig, error) {
	var opts []confloader.Option
	if path := ParseGlobalFlags(c).ServerConfig; path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}

	cfg := config.Default()
	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

// cliLogger logs to stderr, at warn unless --verbose.
func cliLogger(c *cli.Context) (*slog.Logger, error) {
	level := "warn"
	if ParseGlobalFlags(c).Verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Config{Level: level, Format: "text", Output: c.App.ErrWriter})
	if err != nil {
		return nil, err
	}
	return logger.Slog(log), nil
}

// openStore initializes an engine from the server configuration. Unlike
// the server it refuses to run on the ephemeral fallback, which would
// silently show an empty store.
func openStore(c *cli.Context) (*storage.Engine, error) {
	cfg, err := loadServerConfig(c)
	if err != nil {
		return nil, err
	}
	log, err := cliLogger(c)
	if err != nil {
		return nil, err
	}

	engine := storage.NewEngine(
		storage.NewSelector(cfg.StorageOptions(log, nil)),
		storage.Config{Cache: cfg.CacheConfig(), Logger: log},
	)
	if err := engine.Initialize(c.Context); err != nil {
		return nil, err
	}
	if engine.IsDegraded() {
		initErr := engine.LastInitError()
		_ = engine.Close()
		return nil, fmt.Errorf("storage unavailable: %w", initErr)
	}
	return engine, nil
}

// actorContext tags reads with the CLI actor for the audit log.
func actorContext(c *cli.Context) context.Context {
	return storage.WithActor(c.Context, ParseGlobalFlags(c).Actor)
}
