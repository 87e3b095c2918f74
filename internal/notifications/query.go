package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/darkden-lab/relay/internal/directory"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Directory is what the query builder needs to scope a feed to the viewer's
// orgs.
type Directory interface {
	OrgIDsForUser(ctx context.Context, userID string) ([]string, error)
	IsMember(ctx context.Context, userID, orgID string) (bool, error)
	FindOrgByExternalID(ctx context.Context, externalID, platformApplicationID string) (*directory.Org, error)
}

const (
	joinReactions    = `LEFT JOIN message_reactions mr ON n."reactionID" = mr.id`
	joinMessages     = `LEFT JOIN messages m ON CASE WHEN n."messageID" IS NULL THEN mr."messageID" ELSE n."messageID" END = m.id`
	joinThreads      = `LEFT JOIN threads t ON m."threadID" = t.id`
	joinPages        = `LEFT JOIN pages p ON (p."orgID" = t."orgID" AND p."contextHash" = t."pageContextHash")`
	joinParticipants = `LEFT JOIN thread_participants tp ON (tp."threadID" = m."threadID" AND tp."userID" = n."recipientID")`
)

type join struct {
	alias  string
	clause string
}

// Expressions is the filter part of a feed query: joins in order, each alias
// at most once, predicates carrying their own bind values, and a row limit.
// Table n is notifications; mr and m bridge reactions to their message.
type Expressions struct {
	joins  []join
	preds  []sq.Sqlizer
	before *time.Time
	limit  uint64
}

func newExpressions() *Expressions {
	e := &Expressions{}
	e.addJoin("mr", joinReactions)
	e.addJoin("m", joinMessages)
	return e
}

func (e *Expressions) addJoin(alias, clause string) {
	for _, j := range e.joins {
		if j.alias == alias {
			return
		}
	}
	e.joins = append(e.joins, join{alias: alias, clause: clause})
}

func (e *Expressions) where(pred sq.Sqlizer) {
	e.preds = append(e.preds, pred)
}

// conditions returns every predicate in render order.
func (e *Expressions) conditions() []sq.Sqlizer {
	conds := []sq.Sqlizer{sq.Expr(`m."deletedTimestamp" IS NULL`)}
	if e.before != nil {
		conds = append(conds, sq.Expr(`n."createdTimestamp" < ?::timestamp`, *e.before))
	}
	return append(conds, e.preds...)
}

// Page returns a copy of e that reads limit rows older than before.
func (e *Expressions) Page(before time.Time, limit uint64) *Expressions {
	cp := *e
	cp.joins = append([]join(nil), e.joins...)
	cp.preds = append([]sq.Sqlizer(nil), e.preds...)
	cp.before = &before
	cp.limit = limit
	return &cp
}

// WithoutLimit returns a copy of e with no row limit.
func (e *Expressions) WithoutLimit() *Expressions {
	cp := *e
	cp.limit = 0
	return &cp
}

// Apply adds the joins, predicates and limit to sb. The limit is bound as a
// parameter, so call Apply after any other suffix.
func (e *Expressions) Apply(sb sq.SelectBuilder) sq.SelectBuilder {
	for _, j := range e.joins {
		sb = sb.JoinClause(j.clause)
	}
	for _, c := range e.conditions() {
		sb = sb.Where(c)
	}
	if e.limit > 0 {
		sb = sb.Suffix("LIMIT ?", e.limit)
	}
	return sb
}

// Fragments is Expressions rendered as text for hand-assembled SQL.
// Placeholders run from $1 to $len(BindVariables); the caller numbers its own
// parameters after them.
type Fragments struct {
	BindVariables  []any
	ExtraJoins     string
	ExtraCondition string
	LimitCondition string
}

func (e *Expressions) Fragments() (Fragments, error) {
	clauses := make([]string, len(e.joins))
	for i, j := range e.joins {
		clauses[i] = j.clause
	}

	cond, args, err := sq.And(e.conditions()).ToSql()
	if err != nil {
		return Fragments{}, fmt.Errorf("render conditions: %w", err)
	}
	cond, err = sq.Dollar.ReplacePlaceholders(cond)
	if err != nil {
		return Fragments{}, fmt.Errorf("render conditions: %w", err)
	}

	f := Fragments{
		BindVariables:  args,
		ExtraJoins:     strings.Join(clauses, " "),
		ExtraCondition: cond,
	}
	if e.limit > 0 {
		f.BindVariables = append(f.BindVariables, e.limit)
		f.LimitCondition = fmt.Sprintf("LIMIT $%d", len(f.BindVariables))
	}
	return f, nil
}

// BuildFilterExpressions turns p into the joins and predicates of a feed
// query. It fails with ErrGroupNotFound when the viewer belongs to no org or
// the requested group is not one of theirs.
func BuildFilterExpressions(ctx context.Context, dir Directory, p Params) (*Expressions, error) {
	userID, err := p.Viewer.RequireUser()
	if err != nil {
		return nil, err
	}

	e := newExpressions()
	e.before = p.LtCreatedTimestamp
	if p.Limit > 0 {
		e.limit = uint64(p.Limit)
	}

	if len(p.Filter.Metadata) > 0 {
		raw, err := json.Marshal(p.Filter.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata filter: %w", err)
		}
		e.where(sq.Expr(`n.metadata @> ?::jsonb`, string(raw)))
	}

	if groupID := p.Filter.groupID(); groupID != "" {
		org, err := dir.FindOrgByExternalID(ctx, groupID, p.PlatformApplicationID)
		if err != nil {
			return nil, fmt.Errorf("resolve group %s: %w", groupID, err)
		}
		if org == nil {
			return nil, ErrGroupNotFound
		}
		member, err := dir.IsMember(ctx, userID, org.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve group %s: %w", groupID, err)
		}
		if !member {
			return nil, ErrGroupNotFound
		}
		e.where(sq.Expr(`((m."orgID" = ? AND n.type != 'external') OR n.type = 'external')`, org.ID))
	} else {
		orgIDs, err := dir.OrgIDsForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("load orgs of %s: %w", userID, err)
		}
		if len(orgIDs) == 0 {
			return nil, ErrGroupNotFound
		}
		e.where(sq.Expr(`((m."orgID" = ANY(?) AND n.type != 'external') OR n.type = 'external')`, orgIDs))
	}

	if loc := p.Filter.Location; loc != nil {
		raw, err := json.Marshal(loc.Value)
		if err != nil {
			return nil, fmt.Errorf("encode location filter: %w", err)
		}
		e.addJoin("t", joinThreads)
		e.addJoin("p", joinPages)
		op := "="
		if loc.PartialMatch {
			op = "@>"
		}
		// External notifications have no page and pass any location.
		e.where(sq.Expr(`(n.type = 'external' OR p."contextData" `+op+` ?::jsonb)`, string(raw)))
	}

	if p.Filter.ReadStatus != "" {
		e.where(sq.Expr(`n."readStatus" = ?`, string(p.Filter.ReadStatus)))
	}

	if p.Filter.Subscribed != nil {
		e.addJoin("tp", joinParticipants)
		e.where(sq.Expr(`COALESCE(tp.subscribed, false) = ?`, *p.Filter.Subscribed))
	}

	return e, nil
}
