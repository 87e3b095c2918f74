package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/darkden-lab/relay/internal/auth"
)

const defaultBuildConcurrency = 8

// Service reads and builds notification feeds. It holds no per-request state
// and is safe for concurrent use.
type Service struct {
	rows             RowLoader
	dir              Directory
	builders         Builders
	metrics          *Metrics
	buildConcurrency int
}

// NewService wires a Service. A nil metrics gets unregistered counters.
func NewService(rows RowLoader, dir Directory, builders Builders, metrics *Metrics) *Service {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		rows:             rows,
		dir:              dir,
		builders:         builders,
		metrics:          metrics,
		buildConcurrency: defaultBuildConcurrency,
	}
}

func (s *Service) expressions(ctx context.Context, viewer *auth.Viewer, p FetchParams) (*Expressions, string, error) {
	userID, err := viewer.RequireUser()
	if err != nil {
		return nil, "", err
	}
	e, err := BuildFilterExpressions(ctx, s.dir, Params{
		LtCreatedTimestamp:    p.LtCreatedTimestamp,
		Limit:                 p.Limit,
		Filter:                p.Filter,
		PlatformApplicationID: viewer.PlatformApplicationID,
		Viewer:                viewer,
	})
	if err != nil {
		return nil, "", err
	}
	return e, userID, nil
}

// FetchAndBuild returns the viewer's notifications matching p, newest first.
// A group that fails to build is logged and left out of Nodes; its rows stay
// in Entities.
func (s *Service) FetchAndBuild(ctx context.Context, viewer *auth.Viewer, p FetchParams) (*Result, error) {
	e, userID, err := s.expressions(ctx, viewer, p)
	if err != nil {
		return nil, err
	}
	return s.fetch(ctx, viewer, userID, e)
}

// Page is FetchAndBuild plus the cursor of the next page.
func (s *Service) Page(ctx context.Context, viewer *auth.Viewer, p FetchParams) (*Page, error) {
	e, userID, err := s.expressions(ctx, viewer, p)
	if err != nil {
		return nil, err
	}
	res, err := s.fetch(ctx, viewer, userID, e)
	if err != nil {
		return nil, err
	}

	page := &Page{Result: *res}
	if len(res.Entities) == 0 {
		return page, nil
	}
	last := res.Entities[len(res.Entities)-1].CreatedTimestamp
	page.PageInfo.EndCursor = &last

	more, err := s.rows.Load(ctx, userID, e.Page(last, 1))
	if err != nil {
		return nil, err
	}
	page.PageInfo.HasNextPage = len(more) > 0
	return page, nil
}

// UnreadCount counts the viewer's unread rows matching filter.
func (s *Service) UnreadCount(ctx context.Context, viewer *auth.Viewer, filter Filter) (int, error) {
	filter.ReadStatus = ReadStatusUnread
	e, userID, err := s.expressions(ctx, viewer, FetchParams{Filter: filter})
	if err != nil {
		return 0, err
	}
	return s.rows.Count(ctx, userID, e)
}

func (s *Service) fetch(ctx context.Context, viewer *auth.Viewer, userID string, e *Expressions) (*Result, error) {
	rows, err := s.rows.Load(ctx, userID, e)
	if err != nil {
		return nil, err
	}

	app := appLabel(viewer)
	for _, r := range rows {
		s.metrics.Fetched.WithLabelValues(app, string(r.Type)).Inc()
	}

	groups := Aggregate(rows)
	built := make([]*Notification, len(groups))

	var g errgroup.Group
	g.SetLimit(s.buildConcurrency)
	for i, group := range groups {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logBuildError(fmt.Errorf("builder panic: %v", r), group, userID)
				}
			}()
			n, err := s.builders.buildGroup(ctx, group)
			if err != nil {
				logBuildError(err, group, userID)
				return nil
			}
			built[i] = n
			return nil
		})
	}
	_ = g.Wait()

	nodes := make([]*Notification, 0, len(built))
	for _, n := range built {
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	s.metrics.Sent.WithLabelValues(app).Add(float64(len(nodes)))

	return &Result{Entities: rows, Nodes: nodes}, nil
}

func logBuildError(err error, g Group, userID string) {
	r := g.Rows[0]
	var integrity *IntegrityError
	log.Error().
		Err(err).
		Str("component", "notifications").
		Str("notification_id", r.ID).
		Str("type", string(r.Type)).
		Str("user_id", userID).
		Bool("integrity", errors.As(err, &integrity)).
		Msg("failed to build notification")
}

func appLabel(viewer *auth.Viewer) string {
	if viewer == nil || viewer.PlatformApplicationID == "" {
		return "none"
	}
	return viewer.PlatformApplicationID
}
