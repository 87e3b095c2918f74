package auth

import (
	"context"
	"errors"
)

// ErrNoUser is returned when an operation needs a user but the viewer has
// none, e.g. an application-level token.
var ErrNoUser = errors.New("auth: viewer has no user")

// Viewer identifies who is making a request.
type Viewer struct {
	UserID                string
	OrgID                 string
	PlatformApplicationID string
	ExternalUserID        string
}

// RequireUser returns the viewer's user ID or ErrNoUser.
func (v *Viewer) RequireUser() (string, error) {
	if v == nil || v.UserID == "" {
		return "", ErrNoUser
	}
	return v.UserID, nil
}

type contextKey string

const viewerKey contextKey = "viewer"

func ContextWithViewer(ctx context.Context, viewer *Viewer) context.Context {
	return context.WithValue(ctx, viewerKey, viewer)
}

func ViewerFromContext(ctx context.Context) (*Viewer, bool) {
	viewer, ok := ctx.Value(viewerKey).(*Viewer)
	return viewer, ok
}
