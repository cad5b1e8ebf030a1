package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	cliconfig "github.com/yndnr/clinvault/internal/cli/config"
	"github.com/yndnr/clinvault/internal/server/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Configuration management",
		Subcommands: []*cli.Command{
			{
				Name:   "show",
				Usage:  "Show the effective server configuration (secrets masked)",
				Action: configShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the server configuration",
				Action: configValidate,
			},
			{
				Name:  "profile",
				Usage: "CLI profile management",
				Subcommands: []*cli.Command{
					{
						Name:   "show",
						Usage:  "Show the CLI profile",
						Action: profileShow,
					},
					{
						Name:   "save",
						Usage:  "Save the current --config, --admin and --output as the profile",
						Action: profileSave,
					},
				},
			},
		},
	}
}

func configShow(c *cli.Context) error {
	cfg, err := loadServerConfig(c)
	if err != nil {
		return err
	}
	return render(c, config.Sanitize(cfg))
}

func configValidate(c *cli.Context) error {
	if _, err := loadServerConfig(c); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	_, err := fmt.Fprintln(c.App.Writer, "configuration is valid")
	return err
}

func profileShow(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	return render(c, &cliconfig.CLIConfig{
		ServerConfig: flags.ServerConfig,
		AdminAddr:    flags.AdminAddr,
		Output:       flags.Output,
	})
}

func profileSave(c *cli.Context) error {
	flags := ParseGlobalFlags(c)
	profile := &cliconfig.CLIConfig{
		ServerConfig: flags.ServerConfig,
		AdminAddr:    flags.AdminAddr,
		Output:       flags.Output,
	}
	path := c.String("profile")
	if path == "" {
		path = cliconfig.DefaultConfigPath()
	}
	if err := cliconfig.Save(profile, path); err != nil {
		return err
	}
	_, err := fmt.Fprintf(c.App.Writer, "profile saved to %s\n", path)
	return err
}
