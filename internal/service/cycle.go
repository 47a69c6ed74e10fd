package service

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

// EventType is the kind of content mutation
type EventType int

const (
	// EventSaved is a create or update
	EventSaved EventType = iota + 1
	// EventDeleted is a delete
	EventDeleted
)

// String returns the string representation of EventType
func (t EventType) String() string {
	switch t {
	case EventSaved:
		return "saved"
	case EventDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// ParseEventType parses the string form written by EventType.String
func ParseEventType(s string) (EventType, error) {
	switch s {
	case "saved":
		return EventSaved, nil
	case "deleted":
		return EventDeleted, nil
	default:
		return 0, fmt.Errorf("unknown event type: %q", s)
	}
}

// Event describes one content mutation
type Event struct {
	Type        EventType
	ContentType string
	ID          int64
}

// Cycle marks one logical processing cycle (a request, a CLI invocation).
// At most one content-triggered rebuild runs per cycle.
type Cycle struct {
	rebuilt atomic.Bool
}

type cycleKey struct{}

// WithCycle starts a new cycle on ctx
func WithCycle(ctx context.Context) context.Context {
	return context.WithValue(ctx, cycleKey{}, &Cycle{})
}

// CycleFrom returns the cycle carried by ctx, if any
func CycleFrom(ctx context.Context) *Cycle {
	c, _ := ctx.Value(cycleKey{}).(*Cycle)
	return c
}

// Rebuilt reports whether a content-triggered rebuild already ran
func (c *Cycle) Rebuilt() bool {
	return c.rebuilt.Load()
}

// OnContentChanged rebuilds after a content mutation. Within one cycle only
// the first notification rebuilds; a ctx without a cycle is a cycle of its
// own.
func (s *Service) OnContentChanged(ctx context.Context, ev Event) error {
	if c := CycleFrom(ctx); c != nil && !c.rebuilt.CompareAndSwap(false, true) {
		s.logger.Debug("rebuild already ran this cycle",
			zap.Stringer("event", ev.Type),
			zap.String("contenttype", ev.ContentType),
			zap.Int64("id", ev.ID),
		)
		return nil
	}

	s.logger.Info("content changed",
		zap.Stringer("event", ev.Type),
		zap.String("contenttype", ev.ContentType),
		zap.Int64("id", ev.ID),
	)
	return s.Rebuild(ctx)
}
