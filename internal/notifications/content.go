package notifications

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/darkden-lab/relay/internal/db"
)

// ErrContentNotFound is returned when a row refers to a message, reaction or
// thread that no longer exists.
var ErrContentNotFound = errors.New("notifications: referenced content not found")

type MessageInfo struct {
	ID       string
	ThreadID string
	OrgID    string
	SourceID string
	URL      *string
}

type ReactionInfo struct {
	ID        string
	UserID    string
	MessageID string
	Unicode   string
}

type ThreadInfo struct {
	ID       string
	OrgID    string
	Name     string
	URL      string
	Resolved bool
}

// ContentSource loads the messages, reactions and threads notifications
// point at.
type ContentSource interface {
	Message(ctx context.Context, id string) (*MessageInfo, error)
	Reaction(ctx context.Context, id string) (*ReactionInfo, error)
	Thread(ctx context.Context, id string) (*ThreadInfo, error)
}

// ContentStore is the Postgres ContentSource.
type ContentStore struct {
	q db.Querier
}

func NewContentStore(q db.Querier) *ContentStore {
	return &ContentStore{q: q}
}

func (s *ContentStore) Message(ctx context.Context, id string) (*MessageInfo, error) {
	query, args, err := psql.Select("id", `"threadID"`, `"orgID"`, `"sourceID"`, "url").
		From("messages").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var m MessageInfo
	err = s.q.QueryRow(ctx, query, args...).Scan(&m.ID, &m.ThreadID, &m.OrgID, &m.SourceID, &m.URL)
	if err != nil {
		return nil, contentErr("message", id, err)
	}
	return &m, nil
}

func (s *ContentStore) Reaction(ctx context.Context, id string) (*ReactionInfo, error) {
	query, args, err := psql.Select("id", `"userID"`, `"messageID"`, `"unicodeReaction"`).
		From("message_reactions").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var r ReactionInfo
	err = s.q.QueryRow(ctx, query, args...).Scan(&r.ID, &r.UserID, &r.MessageID, &r.Unicode)
	if err != nil {
		return nil, contentErr("reaction", id, err)
	}
	return &r, nil
}

func (s *ContentStore) Thread(ctx context.Context, id string) (*ThreadInfo, error) {
	query, args, err := psql.Select("id", `"orgID"`, "name", "url", `"resolvedTimestamp" IS NOT NULL`).
		From("threads").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var t ThreadInfo
	err = s.q.QueryRow(ctx, query, args...).Scan(&t.ID, &t.OrgID, &t.Name, &t.URL, &t.Resolved)
	if err != nil {
		return nil, contentErr("thread", id, err)
	}
	return &t, nil
}

func contentErr(kind, id string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, ErrContentNotFound)
	}
	return fmt.Errorf("query %s %s: %w", kind, id, err)
}
