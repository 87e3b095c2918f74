// Package identity tells subscribers that a user's display identity changed,
// on every channel where that user can appear.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/darkden-lab/relay/internal/directory"
	"github.com/darkden-lab/relay/internal/featureflag"
	"github.com/darkden-lab/relay/internal/pubsub"
)

// Lookups is what the publisher needs from the directory.
type Lookups interface {
	OrgIDsForUser(ctx context.Context, userID string) ([]string, error)
	ConnectedUsers(ctx context.Context, userID string, orgIDs []string) ([]directory.LinkedUser, error)
}

// Update identifies whose identity changed. OrgID narrows the fan-out to one
// org; when empty every org of the user is notified.
type Update struct {
	UserID                string
	OrgID                 string
	PlatformApplicationID string
}

const defaultConcurrency = 8

type Publisher struct {
	bus         *pubsub.Bus
	lookups     Lookups
	flags       featureflag.Source
	concurrency int
}

func NewPublisher(bus *pubsub.Bus, lookups Lookups, flags featureflag.Source) *Publisher {
	return &Publisher{
		bus:         bus,
		lookups:     lookups,
		flags:       flags,
		concurrency: defaultConcurrency,
	}
}

// PublishUserIdentityUpdate publishes user-identity for the user and
// org-user-identity for every org the user, or an identity linked to it,
// belongs to. All publishes are attempted; their errors are returned
// together.
func (p *Publisher) PublishUserIdentityUpdate(ctx context.Context, u Update) error {
	if p.skip(ctx, u) {
		log.Debug().Str("component", "identity").Str("user_id", u.UserID).Msg("identity fan-out disabled by flag")
		return nil
	}

	orgIDs := []string{u.OrgID}
	if u.OrgID == "" {
		var err error
		orgIDs, err = p.lookups.OrgIDsForUser(ctx, u.UserID)
		if err != nil {
			return fmt.Errorf("identity update for %s: %w", u.UserID, err)
		}
	}

	linked, err := p.lookups.ConnectedUsers(ctx, u.UserID, orgIDs)
	if err != nil {
		return fmt.Errorf("identity update for %s: %w", u.UserID, err)
	}

	var (
		mu     sync.Mutex
		result *multierror.Error
	)
	collect := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		result = multierror.Append(result, err)
		mu.Unlock()
	}

	// Errors are collected rather than returned so one failed publish does not
	// cancel the rest.
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	g.Go(func() error {
		collect(pubsub.Publish(ctx, p.bus, pubsub.UserIdentity, pubsub.UserKey{UserID: u.UserID}, pubsub.NoPayload{}))
		return nil
	})
	for _, orgID := range orgIDs {
		g.Go(func() error {
			collect(pubsub.Publish(ctx, p.bus, pubsub.OrgUserIdentity, pubsub.OrgKey{OrgID: orgID}, pubsub.UserRef{UserID: u.UserID}))
			return nil
		})
	}
	for _, l := range linked {
		g.Go(func() error {
			collect(pubsub.Publish(ctx, p.bus, pubsub.OrgUserIdentity, pubsub.OrgKey{OrgID: l.OrgID}, pubsub.UserRef{UserID: l.UserID}))
			return nil
		})
	}
	_ = g.Wait()

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("identity update for %s: %w", u.UserID, err)
	}
	return nil
}

// skip evaluates the kill switch. A flag source that cannot answer does not
// stop the fan-out.
func (p *Publisher) skip(ctx context.Context, u Update) bool {
	if p.flags == nil {
		return false
	}
	on, err := p.flags.Enabled(ctx, featureflag.SkipPublishUserIdentityUpdate, featureflag.Target{
		UserID:                u.UserID,
		OrgID:                 u.OrgID,
		PlatformApplicationID: u.PlatformApplicationID,
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "identity").Msg("feature flag lookup failed")
	}
	return on
}
