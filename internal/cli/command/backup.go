package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// BackupCommand returns the backup command.
func BackupCommand() *cli.Command {
	return &cli.Command{
		Name:  "backup",
		Usage: "Write a full backup of the kv backend (stop the server first)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "out",
				Aliases:  []string{"f"},
				Usage:    "Backup file to create",
				Required: true,
			},
		},
		Action: backupCreate,
	}
}

type backupResult struct {
	File    string `json:"file" yaml:"file"`
	Bytes   int64  `json:"bytes" yaml:"bytes"`
	Version uint64 `json:"version" yaml:"version"`
}

func backupCreate(c *cli.Context) (err error) {
	path := c.String("out")

	engine, err := openStore(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	version, err := engine.Backup(c.Context, f)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return render(c, backupResult{File: path, Bytes: info.Size(), Version: version})
}
