package runtime

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pithecene-io/growler/adapter"
	"github.com/pithecene-io/growler/classify"
	"github.com/pithecene-io/growler/iox"
	"github.com/pithecene-io/growler/log"
	"github.com/pithecene-io/growler/metrics"
	"github.com/pithecene-io/growler/types"
)

// DefaultNotifyTimeout bounds a single priority notification.
const DefaultNotifyTimeout = 30 * time.Second

// Sink records every received event.
type Sink interface {
	Write(ctx context.Context, ev *types.Event) error
	Flush(ctx context.Context) error
	Close() error
}

// Classifier decides whether an event is priority.
type Classifier interface {
	IsPriority(ctx context.Context, ev *types.Event) classify.Decision
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Sinks receive every event, in order (optional).
	Sinks []Sink
	// Classifier decides priority (required).
	Classifier Classifier
	// Notifier publishes priority events (optional).
	Notifier adapter.Adapter
	// NotifyTimeout bounds each publish (default 30s).
	NotifyTimeout time.Duration
	// Verbose logs every classification decision at info level.
	Verbose bool
	// Logger (default no-op).
	Logger *log.Logger
	// Collector may be nil.
	Collector *metrics.Collector
}

// Dispatcher routes each event to the sinks, then classifies it and
// notifies on priority. A failure or panic in one component never
// reaches the others or the stream.
type Dispatcher struct {
	config DispatcherConfig
	logger *log.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("dispatcher requires a classifier")
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultNotifyTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Dispatcher{config: cfg, logger: cfg.Logger.With("dispatch")}, nil
}

// Dispatch handles one event. It matches DispatchFunc.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *types.Event) {
	for i, sink := range d.config.Sinks {
		d.guard(fmt.Sprintf("sink[%d]", i), ev, func() {
			if err := sink.Write(ctx, ev); err != nil {
				d.config.Collector.IncJournalFailure()
				d.logger.Warn("event record failed", map[string]any{
					"sink":  i,
					"type":  string(ev.Type),
					"error": err.Error(),
				})
			}
		})
	}

	var decision classify.Decision
	d.guard("classifier", ev, func() {
		decision = d.config.Classifier.IsPriority(ctx, ev)
	})
	if !decision.Priority {
		fields := map[string]any{
			"type":   string(ev.Type),
			"change": ev.ChangeNumber(),
			"reason": string(decision.Reason),
		}
		if d.config.Verbose {
			d.logger.Info("event", fields)
		} else {
			d.logger.Debug("event", fields)
		}
		return
	}

	d.config.Collector.IncPriorityEvent()
	fields := map[string]any{
		"type":   string(ev.Type),
		"change": ev.ChangeNumber(),
		"reason": string(decision.Reason),
	}
	if actor := ev.ActorUsername(); actor != "" {
		fields["actor"] = actor
	}
	if ev.Change != nil && ev.Change.Subject != "" {
		fields["subject"] = ev.Change.Subject
	}
	d.logger.Info("priority event", fields)

	if d.config.Notifier == nil {
		return
	}
	d.guard("notifier", ev, func() {
		notifyCtx, cancel := context.WithTimeout(ctx, d.config.NotifyTimeout)
		defer cancel()
		pe := adapter.NewPriorityEvent(ev, string(decision.Reason))
		if err := d.config.Notifier.Publish(notifyCtx, pe); err != nil {
			d.config.Collector.IncNotifyFailure()
			d.logger.Warn("priority notification failed", map[string]any{
				"change": ev.ChangeNumber(),
				"error":  err.Error(),
			})
		}
	})
}

// Flush flushes every sink. Errors are logged.
func (d *Dispatcher) Flush(ctx context.Context) {
	for i, sink := range d.config.Sinks {
		if err := sink.Flush(ctx); err != nil {
			d.logger.Warn("sink flush failed", map[string]any{
				"sink":  i,
				"error": err.Error(),
			})
		}
	}
}

// Close flushes and closes the sinks and the notifier.
func (d *Dispatcher) Close() error {
	closers := make([]io.Closer, 0, len(d.config.Sinks)+1)
	for _, sink := range d.config.Sinks {
		closers = append(closers, sink)
	}
	if d.config.Notifier != nil {
		closers = append(closers, d.config.Notifier)
	}
	return iox.CloseAll(closers...)
}

// guard runs fn, containing any panic to the named component.
func (d *Dispatcher) guard(component string, ev *types.Event, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.config.Collector.IncDispatchFault()
			d.logger.ErrorWithStack("dispatch component panicked", map[string]any{
				"component": component,
				"panic":     fmt.Sprint(r),
				"type":      string(ev.Type),
				"change":    ev.ChangeNumber(),
			})
		}
	}()
	fn()
}
