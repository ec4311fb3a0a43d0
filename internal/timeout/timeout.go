// Package timeout bounds calls to the identity service, the database and
// object storage by operation class.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/ownerportal/internal/apperr"
	"github.com/wolfeidau/ownerportal/internal/telemetry"
)

// Class is an operation class with its own deadline.
type Class string

const (
	Auth   Class = "auth"
	Query  Class = "query"
	Write  Class = "write"
	Upload Class = "upload"
	Login  Class = "login"
)

// Policy holds the deadline for each class.
type Policy struct {
	Auth   time.Duration `help:"timeout for session and identity checks" default:"5s" env:"OWNERPORTAL_TIMEOUT_AUTH"`
	Query  time.Duration `help:"timeout for database reads" default:"20s" env:"OWNERPORTAL_TIMEOUT_QUERY"`
	Write  time.Duration `help:"timeout for inserts and updates" default:"30s" env:"OWNERPORTAL_TIMEOUT_WRITE"`
	Upload time.Duration `help:"timeout for invoice uploads" default:"60s" env:"OWNERPORTAL_TIMEOUT_UPLOAD"`
	Login  time.Duration `help:"timeout for the sign-in exchange" default:"8s" env:"OWNERPORTAL_TIMEOUT_LOGIN"`
}

// DefaultPolicy returns the built-in deadlines.
func DefaultPolicy() Policy {
	return Policy{
		Auth:   5 * time.Second,
		Query:  20 * time.Second,
		Write:  30 * time.Second,
		Upload: 60 * time.Second,
		Login:  8 * time.Second,
	}
}

// For returns the deadline for class. Unknown classes and unset fields fall
// back to the default policy.
func (p Policy) For(class Class) time.Duration {
	def := DefaultPolicy()
	pick := func(v, fallback time.Duration) time.Duration {
		if v > 0 {
			return v
		}
		return fallback
	}

	switch class {
	case Auth:
		return pick(p.Auth, def.Auth)
	case Query:
		return pick(p.Query, def.Query)
	case Write:
		return pick(p.Write, def.Write)
	case Upload:
		return pick(p.Upload, def.Upload)
	case Login:
		return pick(p.Login, def.Login)
	default:
		return def.Query
	}
}

// Run calls fn with a context bounded by the class deadline. If the deadline
// fires the returned error matches apperr.ErrUpstreamTimeout. A deadline
// inherited from the parent context is treated the same way; plain
// cancellation is returned as is.
func (p Policy) Run(ctx context.Context, class Class, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.For(class))
	defer cancel()

	err := fn(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		telemetry.Add(ctx, telemetry.GetMetrics().UpstreamTimeouts, "class", string(class))
		return fmt.Errorf("%s call timed out after %s: %w", class, p.For(class), apperr.ErrUpstreamTimeout)
	}
	return err
}

// Do is Run for calls that return a value.
func Do[T any](ctx context.Context, p Policy, class Class, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Run(ctx, class, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
