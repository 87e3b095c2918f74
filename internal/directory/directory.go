// Package directory answers the membership questions the event bus and the
// notification feed need: which orgs a user belongs to, which org an
// external group ID names, and which identities are linked to a user.
package directory

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/darkden-lab/relay/internal/db"
)

// Org is the subset of an org row the lookups return.
type Org struct {
	ID                    string
	ExternalID            string
	PlatformApplicationID string
	Name                  string
}

// LinkedUser is the other side of an identity link.
type LinkedUser struct {
	UserID string
	OrgID  string
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store runs directory lookups against Postgres.
type Store struct {
	q db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{q: q}
}

// OrgIDsForUser returns the IDs of every org userID is currently a member of.
func (s *Store) OrgIDsForUser(ctx context.Context, userID string) ([]string, error) {
	query, args, err := psql.Select(`"orgID"`).
		From("org_members").
		Where(sq.Eq{`"userID"`: userID}).
		OrderBy(`"orgID"`).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query org members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan org members: %w", err)
	}
	return ids, nil
}

// IsMember reports whether userID belongs to orgID.
func (s *Store) IsMember(ctx context.Context, userID, orgID string) (bool, error) {
	query, args, err := psql.Select("1").
		From("org_members").
		Where(sq.Eq{`"userID"`: userID, `"orgID"`: orgID}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, err
	}

	var ok bool
	if err := s.q.QueryRow(ctx, query, args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return ok, nil
}

// FindOrgByExternalID resolves an application's external group ID. It
// returns nil and no error when no such org exists.
func (s *Store) FindOrgByExternalID(ctx context.Context, externalID, platformApplicationID string) (*Org, error) {
	// Every org belongs to an application; without one nothing can match.
	if platformApplicationID == "" {
		return nil, nil
	}
	query, args, err := psql.Select("id", `"externalID"`, `"platformApplicationID"`, "name").
		From("orgs").
		Where(sq.Eq{`"externalID"`: externalID, `"platformApplicationID"`: platformApplicationID}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var o Org
	err = s.q.QueryRow(ctx, query, args...).Scan(&o.ID, &o.ExternalID, &o.PlatformApplicationID, &o.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query org %s: %w", externalID, err)
	}
	return &o, nil
}

// ConnectedUsers returns the identities linked to userID within orgIDs,
// whichever side of the link userID is on.
func (s *Store) ConnectedUsers(ctx context.Context, userID string, orgIDs []string) ([]LinkedUser, error) {
	if len(orgIDs) == 0 {
		return nil, nil
	}
	query, args, err := connectedUsersQuery(userID, orgIDs).ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query linked users: %w", err)
	}
	defer rows.Close()

	var out []LinkedUser
	for rows.Next() {
		var sourceUser, sourceOrg, linkedUser, linkedOrg string
		if err := rows.Scan(&sourceUser, &sourceOrg, &linkedUser, &linkedOrg); err != nil {
			return nil, fmt.Errorf("scan linked user: %w", err)
		}
		if sourceUser == userID {
			out = append(out, LinkedUser{UserID: linkedUser, OrgID: linkedOrg})
		} else {
			out = append(out, LinkedUser{UserID: sourceUser, OrgID: sourceOrg})
		}
	}
	return out, rows.Err()
}

func connectedUsersQuery(userID string, orgIDs []string) sq.SelectBuilder {
	return psql.Select(`"sourceUserID"`, `"sourceOrgID"`, `"linkedUserID"`, `"linkedOrgID"`).
		From("linked_users").
		Where(sq.Or{
			sq.And{sq.Eq{`"sourceUserID"`: userID}, sq.Expr(`"sourceOrgID" = ANY(?)`, orgIDs)},
			sq.And{sq.Eq{`"linkedUserID"`: userID}, sq.Expr(`"linkedOrgID" = ANY(?)`, orgIDs)},
		})
}
