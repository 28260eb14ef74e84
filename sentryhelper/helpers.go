// Package sentryhelper provides utilities for Sentry hub and scope management.
// It keeps breadcrumbs and tags isolated per following session.
package sentryhelper

import (
	"context"

	sentry "github.com/getsentry/sentry-go"
)

// contextKey is used to store the cloned hub in context
type contextKey string

const hubContextKey contextKey = "sentry_hub"

// WithSessionHub clones the current hub, tags it with the session and user
// and stores it in a context derived from parent. Everything a follower
// reports through the returned context lands on its own scope.
func WithSessionHub(parent context.Context, sessionID string, userID string) context.Context {
	hub := sentry.CurrentHub().Clone()
	hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("session_id", sessionID)
		scope.SetTag("user_id", userID)
		scope.SetUser(sentry.User{ID: userID})
	})
	ctx := sentry.SetHubOnContext(parent, hub)
	return context.WithValue(ctx, hubContextKey, hub)
}

// HubFromContext retrieves the cloned hub from context.
// Falls back to CurrentHub if no cloned hub is found.
func HubFromContext(ctx context.Context) *sentry.Hub {
	if ctx == nil {
		return sentry.CurrentHub()
	}
	if hub, ok := ctx.Value(hubContextKey).(*sentry.Hub); ok && hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// AddBreadcrumb adds a breadcrumb to the hub in context.
func AddBreadcrumb(ctx context.Context, category string, message string) {
	HubFromContext(ctx).AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
	}, nil)
}

// CaptureException captures an exception on the hub in context.
func CaptureException(ctx context.Context, err error) *sentry.EventID {
	return HubFromContext(ctx).CaptureException(err)
}
