package notifications

import (
	"context"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/darkden-lab/relay/internal/db"
)

// RowLoader reads a recipient's notification rows.
type RowLoader interface {
	Load(ctx context.Context, recipientID string, e *Expressions) ([]Row, error)
	Count(ctx context.Context, recipientID string, e *Expressions) (int, error)
}

// Store reads the notifications table.
type Store struct {
	q db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// feedQuery selects the rows of recipientID matching e, newest first.
func feedQuery(recipientID string, e *Expressions) sq.SelectBuilder {
	sb := psql.Select("n.*").
		From("notifications n").
		Where(sq.Eq{`n."recipientID"`: recipientID}).
		OrderBy(`n."createdTimestamp" DESC`)
	return e.Apply(sb)
}

// Load returns the rows of recipientID matching e, newest first.
func (s *Store) Load(ctx context.Context, recipientID string, e *Expressions) ([]Row, error) {
	query, args, err := feedQuery(recipientID, e).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build feed query: %w", err)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[Row])
	if err != nil {
		return nil, fmt.Errorf("scan notifications: %w", err)
	}
	return out, nil
}

// Count returns how many rows of recipientID match e, ignoring its limit.
func (s *Store) Count(ctx context.Context, recipientID string, e *Expressions) (int, error) {
	f, err := e.WithoutLimit().Fragments()
	if err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM notifications n ` + f.ExtraJoins +
		` WHERE n."recipientID" = $` + strconv.Itoa(len(f.BindVariables)+1) +
		` AND ` + f.ExtraCondition
	args := append(f.BindVariables, recipientID)

	var count int
	if err := s.q.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}
