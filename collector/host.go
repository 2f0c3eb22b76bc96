package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
)

// Host keeps a collection worker attached to the bus. The worker answers collect
// requests with progress messages and one result per request.
type Host struct {
	bus       *bus.Bus
	collector *Collector
	logger    *slog.Logger
	ctx       context.Context

	mu   sync.Mutex
	done chan struct{}

	// runMu serializes collection runs so the receive loop never blocks on one.
	runMu sync.Mutex

	// cancelMu guards cancelRun, which stops the most recently requested run.
	cancelMu  sync.Mutex
	cancelRun context.CancelFunc
}

// NewHost creates a host whose worker lives until ctx is cancelled.
func NewHost(ctx context.Context, b *bus.Bus, c *Collector, logger *slog.Logger) *Host {
	return &Host{
		bus:       b,
		collector: c,
		logger:    logger.With("component", "collector_host"),
		ctx:       ctx,
	}
}

// Ensure starts the worker unless it is already running. The worker is subscribed
// before Ensure returns, so a collect request published afterwards is received.
func (h *Host) Ensure(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.done != nil {
		select {
		case <-h.done:
			h.logger.Info("collection worker exited, restarting")
		default:
			return nil
		}
	}
	if err := h.ctx.Err(); err != nil {
		return fmt.Errorf("collection host stopped: %w", err)
	}

	sub := h.bus.Subscribe(bus.KindCollect)
	done := make(chan struct{})
	h.done = done
	go func() {
		defer close(done)
		defer sub.Close()
		h.loop(sub)
	}()
	h.logger.Debug("collection worker started")
	return nil
}

// Running reports whether the worker goroutine is alive.
func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *Host) loop(sub *bus.Subscription) {
	for {
		select {
		case <-h.ctx.Done():
			return
		case m := <-sub.C():
			req, ok := m.(bus.CollectRequest)
			if !ok {
				continue
			}
			ctx, cancel := h.runContext(req)
			go h.run(ctx, cancel, req)
		}
	}
}

// runContext derives the context of a new run. It ends at the request's deadline.
// A newer request supersedes the previous run, which is cancelled.
func (h *Host) runContext(req bus.CollectRequest) (context.Context, context.CancelFunc) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if req.Deadline != nil {
		ctx, cancel = context.WithDeadline(h.ctx, *req.Deadline)
	} else {
		ctx, cancel = context.WithCancel(h.ctx)
	}

	h.cancelMu.Lock()
	prev := h.cancelRun
	h.cancelRun = cancel
	h.cancelMu.Unlock()
	if prev != nil {
		prev()
	}
	return ctx, cancel
}

func (h *Host) run(ctx context.Context, cancel context.CancelFunc, req bus.CollectRequest) {
	defer cancel()

	h.runMu.Lock()
	defer h.runMu.Unlock()

	logger := h.logger.With("run_id", req.RunID)
	if err := ctx.Err(); err != nil {
		logger.Info("collection abandoned before it started", "error", err)
		h.publish(logger, bus.Result{RunID: req.RunID, Error: fmt.Sprintf("collection abandoned: %v", err)})
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("collection panicked", "panic", r)
			h.publish(logger, bus.Result{RunID: req.RunID, Error: fmt.Sprintf("collector panic: %v", r)})
		}
	}()

	result := h.collector.Collect(ctx, req, func(p bus.Progress) {
		h.publish(logger, p)
	})
	h.publish(logger, result)
}

func (h *Host) publish(logger *slog.Logger, m bus.Message) {
	if err := h.bus.Publish(h.ctx, m); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("publishing collector message failed", "kind", m.Kind(), "error", err)
	}
}
