package directory

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Lookups is the full set of directory reads.
type Lookups interface {
	OrgIDsForUser(ctx context.Context, userID string) ([]string, error)
	IsMember(ctx context.Context, userID, orgID string) (bool, error)
	FindOrgByExternalID(ctx context.Context, externalID, platformApplicationID string) (*Org, error)
	ConnectedUsers(ctx context.Context, userID string, orgIDs []string) ([]LinkedUser, error)
}

// Cached memoizes FindOrgByExternalID, whose answer never changes once an org
// exists. Misses are not cached so a newly created org is found immediately.
// Membership and link lookups pass through.
type Cached struct {
	Lookups
	orgs *cache.Cache
}

func NewCached(inner Lookups, ttl time.Duration) *Cached {
	return &Cached{
		Lookups: inner,
		orgs:    cache.New(ttl, 2*ttl),
	}
}

func (c *Cached) FindOrgByExternalID(ctx context.Context, externalID, platformApplicationID string) (*Org, error) {
	key := platformApplicationID + "\x00" + externalID
	if v, ok := c.orgs.Get(key); ok {
		org := v.(Org)
		return &org, nil
	}

	org, err := c.Lookups.FindOrgByExternalID(ctx, externalID, platformApplicationID)
	if err != nil || org == nil {
		return org, err
	}
	c.orgs.SetDefault(key, *org)
	return org, nil
}
