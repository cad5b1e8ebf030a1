package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/clinvault/internal/core/domain"
	"github.com/yndnr/clinvault/internal/storage"
	"github.com/yndnr/clinvault/internal/storage/backend"
)

// SessionCommand returns the sessions subcommand group.
func SessionCommand() *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"session", "sess"},
		Usage:   "Inspect stored sessions",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List a user's sessions",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "user-id",
						Aliases:  []string{"u"},
						Usage:    "Owner of the sessions",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "page-size",
						Value: 20,
						Usage: "Page size (max 200)",
					},
					&cli.StringFlag{
						Name:  "page-token",
						Usage: "Token printed by the previous page",
					},
					&cli.StringFlag{
						Name:  "sort",
						Value: string(backend.SortByUpdatedAt),
						Usage: "updated_at or created_at",
					},
					&cli.BoolFlag{
						Name:  "asc",
						Usage: "Oldest first",
					},
				},
				Action: sessionList,
			},
			{
				Name:      "show",
				Aliases:   []string{"get"},
				Usage:     "Show a session and its messages (audited as a read)",
				ArgsUsage: "SESSION_ID",
				Action:    sessionShow,
			},
		},
	}
}

// sessionRow is the listing view of a session. Message content is never
// listed.
type sessionRow struct {
	ID        string `json:"id" yaml:"id"`
	UserID    string `json:"user_id" yaml:"user_id"`
	PatientID string `json:"patient_id,omitempty" yaml:"patient_id,omitempty" table:"wide"`
	Messages  int    `json:"messages" yaml:"messages"`
	Tokens    int64  `json:"tokens" yaml:"tokens" table:"wide"`
	CreatedAt int64  `json:"created_at" yaml:"created_at" table:"millis"`
	UpdatedAt int64  `json:"updated_at" yaml:"updated_at" table:"millis"`
}

func newSessionRow(s *domain.Session) sessionRow {
	return sessionRow{
		ID:        s.ID,
		UserID:    s.UserID,
		PatientID: s.PatientID,
		Messages:  len(s.Messages),
		Tokens:    s.Metadata.TokenCount,
		CreatedAt: s.Metadata.CreatedAt,
		UpdatedAt: s.Metadata.UpdatedAt,
	}
}

type sessionPage struct {
	Sessions      []sessionRow `json:"sessions" yaml:"sessions"`
	NextPageToken string       `json:"next_page_token,omitempty" yaml:"next_page_token,omitempty"`
	Total         int          `json:"total" yaml:"total"`
}

func sessionList(c *cli.Context) error {
	order := backend.SortDesc
	if c.Bool("asc") {
		order = backend.SortAsc
	}
	opts := storage.ListOptions{
		UserID:    c.String("user-id"),
		PageSize:  c.Int("page-size"),
		PageToken: c.String("page-token"),
		SortBy:    backend.SortField(c.String("sort")),
		SortOrder: order,
	}

	engine, err := openStore(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	page, err := engine.ListSessionsByUser(c.Context, opts)
	if err != nil {
		return err
	}

	out := sessionPage{
		Sessions:      make([]sessionRow, 0, len(page.Sessions)),
		NextPageToken: page.NextPageToken,
		Total:         page.Total,
	}
	for _, s := range page.Sessions {
		out.Sessions = append(out.Sessions, newSessionRow(s))
	}

	if !isTable(c) {
		return render(c, out)
	}
	if err := render(c, out.Sessions); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "\n%d of %d sessions\n", len(out.Sessions), out.Total)
	if out.NextPageToken != "" {
		fmt.Fprintf(c.App.Writer, "next page: --page-token %s\n", out.NextPageToken)
	}
	return nil
}

type messageRow struct {
	Role      string `json:"role" yaml:"role"`
	Agent     string `json:"agent,omitempty" yaml:"agent,omitempty" table:"wide"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp" table:"millis"`
	Content   string `json:"content" yaml:"content"`
}

type sessionDetail struct {
	ID        string            `json:"id" yaml:"id"`
	UserID    string            `json:"user_id" yaml:"user_id"`
	PatientID string            `json:"patient_id,omitempty" yaml:"patient_id,omitempty"`
	CreatedAt int64             `json:"created_at" yaml:"created_at"`
	UpdatedAt int64             `json:"updated_at" yaml:"updated_at"`
	Tokens    int64             `json:"tokens" yaml:"tokens"`
	Extra     map[string]string `json:"extra,omitempty" yaml:"extra,omitempty"`
	Messages  []messageRow      `json:"messages" yaml:"messages"`
}

func sessionShow(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return cli.Exit("SESSION_ID is required", 2)
	}

	engine, err := openStore(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	s, err := engine.LoadSession(actorContext(c), id)
	if err != nil {
		return err
	}
	if s == nil {
		return cli.Exit(fmt.Sprintf("session %s not found", id), 1)
	}

	rows := make([]messageRow, 0, len(s.Messages))
	for _, m := range s.Messages {
		rows = append(rows, messageRow{Role: m.Role, Agent: m.Agent, Timestamp: m.Timestamp, Content: m.Content})
	}

	if !isTable(c) {
		return render(c, sessionDetail{
			ID:        s.ID,
			UserID:    s.UserID,
			PatientID: s.PatientID,
			CreatedAt: s.Metadata.CreatedAt,
			UpdatedAt: s.Metadata.UpdatedAt,
			Tokens:    s.Metadata.TokenCount,
			Extra:     s.Metadata.Extra,
			Messages:  rows,
		})
	}
	if err := render(c, newSessionRow(s)); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	fmt.Fprintln(c.App.Writer)
	return render(c, rows)
}
