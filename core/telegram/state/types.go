package state

import (
	"context"
	"time"
)

// Flow is an in-progress multi-step conversation owned by one user.
type Flow interface {
	// Name identifies the flow kind in logs.
	Name() string
	// Busy reports whether the flow is doing background work (converting,
	// delivering) and must not be expired for inactivity.
	Busy() bool
	// Expire tears the flow down after an inactivity timeout.
	Expire(ctx context.Context)
}

type entry[F Flow] struct {
	flow    F
	touched time.Time
	// holds counts events being handled; a held entry never expires.
	holds int
}
