package command

import (
	"context"
	"net/url"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/clinvault/internal/cli/connection"
	"github.com/yndnr/clinvault/internal/core/domain"
)

// AuditCommand returns the audit subcommand group.
func AuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Read the audit log",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show audit entries for a session or an actor, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "session-id",
						Aliases: []string{"s"},
						Usage:   "Entries for this session",
					},
					&cli.StringFlag{
						Name:  "actor-id",
						Usage: "Entries made by this actor",
					},
					&cli.IntFlag{
						Name:  "limit",
						Value: 50,
						Usage: "Maximum entries (0 = all)",
					},
					&cli.BoolFlag{
						Name:  "remote",
						Usage: "Query the running server's admin listener",
					},
				},
				Action: auditShow,
			},
		},
	}
}

type auditRow struct {
	ID        int64             `json:"id" yaml:"id"`
	Timestamp int64             `json:"timestamp" yaml:"timestamp" table:"millis"`
	Action    string            `json:"action" yaml:"action"`
	SessionID string            `json:"session_id" yaml:"session_id"`
	ActorID   string            `json:"actor_id" yaml:"actor_id"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty" table:"wide"`
}

func newAuditRows(entries []*domain.AuditEntry) []auditRow {
	rows := make([]auditRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, auditRow{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Action:    string(e.Action),
			SessionID: e.SessionID,
			ActorID:   e.ActorID,
			Metadata:  e.Metadata,
		})
	}
	return rows
}

func auditShow(c *cli.Context) error {
	sessionID, actorID := c.String("session-id"), c.String("actor-id")
	if (sessionID == "") == (actorID == "") {
		return cli.Exit("exactly one of --session-id or --actor-id is required", 2)
	}
	limit := c.Int("limit")
	if limit < 0 {
		return cli.Exit("--limit must not be negative", 2)
	}

	var rows []auditRow
	var err error
	if c.Bool("remote") {
		rows, err = remoteAudit(c, sessionID, actorID, limit)
	} else {
		rows, err = localAudit(c, sessionID, actorID, limit)
	}
	if err != nil {
		return err
	}
	return render(c, rows)
}

func localAudit(c *cli.Context, sessionID, actorID string, limit int) ([]auditRow, error) {
	engine, err := openStore(c)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	var entries []*domain.AuditEntry
	if sessionID != "" {
		entries, err = engine.GetAuditLog(c.Context, sessionID, limit)
	} else {
		entries, err = engine.GetAuditLogByActor(c.Context, actorID, limit)
	}
	if err != nil {
		return nil, err
	}
	return newAuditRows(entries), nil
}

func remoteAudit(c *cli.Context, sessionID, actorID string, limit int) ([]auditRow, error) {
	q := url.Values{"limit": {strconv.Itoa(limit)}}
	if sessionID != "" {
		q.Set("session_id", sessionID)
	} else {
		q.Set("actor_id", actorID)
	}

	ctx, cancel := context.WithTimeout(c.Context, connection.DefaultTimeout)
	defer cancel()

	var resp struct {
		Entries []auditRow `json:"entries"`
	}
	client := connection.NewAdminClient(ParseGlobalFlags(c).AdminAddr, 0)
	if err := client.Get(ctx, "/admin/v1/audit", q, &resp); err != nil {
		return nil, err
	}
	return resp.Entries, nil
}
