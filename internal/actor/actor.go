// Package actor carries the authenticated caller supplied by the upstream
// access-control layer. Values are used for stamping only.
package actor

import (
	"context"
	"errors"
)

var ErrMissingActor = errors.New("authenticated actor missing from request")

const RolePatient = "patient"

type Actor struct {
	UserID int64
	Role   string
}

// IsStaff reports whether the actor acts on behalf of the center.
func (a Actor) IsStaff() bool {
	return a.Role != "" && a.Role != RolePatient
}

type contextKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(contextKey{}).(Actor)
	return a, ok
}

// Require returns the actor or ErrMissingActor.
func Require(ctx context.Context) (Actor, error) {
	a, ok := FromContext(ctx)
	if !ok || a.UserID <= 0 {
		return Actor{}, ErrMissingActor
	}
	return a, nil
}
