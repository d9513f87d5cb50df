// Package session answers who the current user is from the stored access
// credential. It is the only place claims are decoded on the client.
package session

import (
	"context"
	"time"

	"pamana/notes/internal/auth"
	"pamana/notes/internal/credentials"
	"pamana/notes/internal/model"
)

type Oracle struct {
	store credentials.Store
	now   func() time.Time
}

type Option func(*Oracle)

func WithClock(now func() time.Time) Option {
	return func(o *Oracle) {
		if now != nil {
			o.now = now
		}
	}
}

func New(store credentials.Store, opts ...Option) *Oracle {
	o := &Oracle{store: store, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Claims returns the decoded claims of a stored, unexpired access token.
// Every failure collapses to "no session"; nothing here returns an error.
func (o *Oracle) Claims(ctx context.Context) (auth.Claims, bool) {
	if o == nil || o.store == nil {
		return auth.Claims{}, false
	}
	cred, ok, err := o.store.Get(ctx)
	if err != nil || !ok || cred.Access == "" {
		return auth.Claims{}, false
	}
	claims, err := auth.Decode(cred.Access)
	if err != nil {
		return auth.Claims{}, false
	}
	exp, ok := claims.Expiry()
	if !ok || !exp.After(o.now()) {
		return auth.Claims{}, false
	}
	return *claims, true
}

func (o *Oracle) IsAuthenticated(ctx context.Context) bool {
	_, ok := o.Claims(ctx)
	return ok
}

func (o *Oracle) Role(ctx context.Context) (model.Role, bool) {
	claims, ok := o.Claims(ctx)
	if !ok {
		return model.RoleUnknown, false
	}
	role := claims.ResolvedRole()
	return role, role != model.RoleUnknown
}

func (o *Oracle) Course(ctx context.Context) (string, bool) {
	claims, ok := o.Claims(ctx)
	if !ok || claims.Course == "" {
		return "", false
	}
	return claims.Course, true
}

func (o *Oracle) UserID(ctx context.Context) (string, bool) {
	claims, ok := o.Claims(ctx)
	if !ok || claims.UserID == "" {
		return "", false
	}
	return claims.UserID, true
}

// SchoolID is the author identifier shown on notes and wall posts.
func (o *Oracle) SchoolID(ctx context.Context) (string, bool) {
	claims, ok := o.Claims(ctx)
	if !ok || claims.SchoolID == "" {
		return "", false
	}
	return claims.SchoolID, true
}
