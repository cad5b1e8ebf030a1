package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/clinvault/pkg/crypto/sealer"
)

// EnvKeyVar is the environment variable clinvault-server reads the key from.
const EnvKeyVar = "CLINVAULT_SECURITY__ENCRYPTION_KEY"

// KeygenCommand returns the keygen command.
func KeygenCommand() *cli.Command {
	return &cli.Command{
		Name:  "keygen",
		Usage: "Generate a new base64 encryption key",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "env",
				Usage: "Print as an environment assignment",
			},
		},
		Action: keygen,
	}
}

type keygenResult struct {
	Key         string `json:"key" yaml:"key"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}

func keygen(c *cli.Context) error {
	secret, err := sealer.GenerateKey()
	if err != nil {
		return err
	}
	key, err := sealer.ParseKey(secret)
	if err != nil {
		return err
	}
	defer sealer.ZeroKey(key)

	if c.Bool("env") {
		_, err := fmt.Fprintf(c.App.Writer, "%s=%s\n", EnvKeyVar, secret)
		return err
	}
	return render(c, keygenResult{Key: secret, Fingerprint: sealer.Fingerprint(key)})
}
