// Package featureflag evaluates runtime kill switches.
package featureflag

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// Flag names a boolean switch.
type Flag string

// SkipPublishUserIdentityUpdate turns identity fan-out into a no-op.
const SkipPublishUserIdentityUpdate Flag = "skip_publish_user_identity_update"

// Target is who a flag is evaluated for. Empty fields are not matched.
type Target struct {
	UserID                string
	OrgID                 string
	PlatformApplicationID string
}

// Source answers whether a flag is on for a target.
type Source interface {
	Enabled(ctx context.Context, flag Flag, target Target) (bool, error)
}

// Static is a fixed set of flags that are on for everyone.
type Static map[Flag]bool

func NewStatic(flags ...string) Static {
	s := make(Static, len(flags))
	for _, f := range flags {
		s[Flag(f)] = true
	}
	return s
}

func (s Static) Enabled(_ context.Context, flag Flag, _ Target) (bool, error) {
	return s[flag], nil
}

// Any is on when any of its sources is on. Sources that fail are skipped; the
// errors are returned together with the answer of the remaining sources.
type Any []Source

func (a Any) Enabled(ctx context.Context, flag Flag, target Target) (bool, error) {
	var result *multierror.Error
	for _, s := range a {
		on, err := s.Enabled(ctx, flag, target)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if on {
			return true, nil
		}
	}
	return false, result.ErrorOrNil()
}
