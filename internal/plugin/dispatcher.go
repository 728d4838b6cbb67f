package plugin

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"lchbot/internal/event"
	"lchbot/internal/metrics"
	"lchbot/pkg/logger"
)

// Dispatcher walks the ordered plugin chain for each event. The first
// handler reporting handled=true wins; a failing handler is isolated and the
// chain continues. Dispatches triggered by distinct requests run
// concurrently — the only shared state is the manager's registry, read under
// its lock per dispatch.
type Dispatcher struct {
	manager *Manager
}

// NewDispatcher creates a dispatcher over the given manager.
func NewDispatcher(manager *Manager) *Dispatcher {
	return &Dispatcher{manager: manager}
}

// Dispatch invokes the handler matching the event's kind on each
// dispatchable plugin in priority order. It reports whether any plugin
// consumed the event; an unhandled event is not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *event.Event) bool {
	start := time.Now()
	defer func() {
		metrics.DispatchDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()

	for _, reg := range d.manager.dispatchable() {
		handled, err := d.invoke(ctx, reg, ev)
		if err != nil {
			d.manager.setError(reg.meta.ID, err.Error())
			metrics.HandlerErrors.WithLabelValues(reg.meta.ID).Inc()
			logger.Error().
				Str("plugin", reg.meta.ID).
				Str("kind", string(ev.Kind)).
				Err(err).
				Msg("handler failed, continuing dispatch")
			continue
		}
		if handled {
			metrics.EventsHandled.WithLabelValues(reg.meta.ID).Inc()
			logger.Debug().
				Str("plugin", reg.meta.ID).
				Str("kind", string(ev.Kind)).
				Msg("event handled")
			return true
		}
	}
	return false
}

// invoke calls the kind-matching entry point with panic recovery, so a
// misbehaving plugin cannot take down dispatch for the rest of the chain.
func (d *Dispatcher) invoke(ctx context.Context, reg *registration, ev *event.Event) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Str("plugin", reg.meta.ID).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("handler panicked")
			handled = false
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	switch ev.Kind {
	case event.KindMessage:
		return reg.handler.HandleMessage(ctx, ev)
	case event.KindNotice:
		return reg.handler.HandleNotice(ctx, ev)
	case event.KindRequest:
		return reg.handler.HandleRequest(ctx, ev)
	default:
		return false, nil
	}
}
