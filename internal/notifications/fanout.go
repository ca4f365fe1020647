package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"facelane/internal/jobs"
	"facelane/internal/logging"
)

// Publisher publishes JSON messages on a subject (the NATS bus client).
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Recorder persists webhook delivery outcomes on the job.
type Recorder interface {
	Update(ctx context.Context, id string, mutate func(*jobs.Job) error) (*jobs.Job, error)
}

// DeliveryObserver receives webhook delivery results (metrics).
type DeliveryObserver interface {
	WebhookDelivered(event jobs.Event, ok bool)
}

// Sender delivers one webhook payload.
type Sender interface {
	Send(ctx context.Context, url string, payload Payload) error
}

// Option configures a Fanout.
type Option func(*Fanout)

// WithPublisher enables bus publication under subjectPrefix.
func WithPublisher(p Publisher, subjectPrefix string) Option {
	return func(f *Fanout) {
		if p != nil {
			f.publisher = p
			f.subjectPrefix = strings.TrimSuffix(strings.TrimSpace(subjectPrefix), ".")
		}
	}
}

// WithDeliveryObserver reports webhook outcomes.
func WithDeliveryObserver(o DeliveryObserver) Option {
	return func(f *Fanout) {
		if o != nil {
			f.observer = o
		}
	}
}

// WithLogger sets the fan-out logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fanout) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Fanout delivers lifecycle events to webhooks, the bus and live watchers.
type Fanout struct {
	sender        Sender
	recorder      Recorder
	broker        *Broker
	publisher     Publisher
	subjectPrefix string
	observer      DeliveryObserver
	logger        *slog.Logger
	wg            sync.WaitGroup
}

// NewFanout constructs a fan-out. recorder may be nil, in which case delivery
// failures are only logged.
func NewFanout(sender Sender, recorder Recorder, broker *Broker, opts ...Option) *Fanout {
	if broker == nil {
		broker = NewBroker()
	}
	f := &Fanout{
		sender:   sender,
		recorder: recorder,
		broker:   broker,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(logging.String(logging.FieldComponent, "notifications"))
	return f
}

// Broker returns the watcher broker.
func (f *Fanout) Broker() *Broker { return f.broker }

// Touch wakes watchers of id.
func (f *Fanout) Touch(id string) {
	f.broker.Signal(id)
}

// Notify fans event out for job. It never blocks on webhook delivery.
func (f *Fanout) Notify(ctx context.Context, job *jobs.Job, event jobs.Event) {
	if job == nil {
		return
	}
	f.broker.Signal(job.ID)
	payload := NewPayload(job, event)
	logger := f.logger.With(logging.JobID(job.ID), logging.String("event", string(event)))

	if f.publisher != nil {
		subject := f.subjectPrefix + "." + string(event)
		if err := f.publisher.PublishJSON(subject, payload); err != nil {
			logging.WarnWithContext(logger, "bus publish failed", "bus_publish_failed",
				logging.Error(err),
				logging.String("subject", subject),
				logging.String(logging.FieldErrorHint, "check the NATS connection"),
				logging.String(logging.FieldImpact, "bus subscribers miss this event"),
			)
		}
	}

	if f.sender == nil || !job.SubscribedTo(event) {
		return
	}
	url := job.WebhookURL
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.deliver(context.WithoutCancel(ctx), logger, job.ID, url, payload)
	}()
}

func (f *Fanout) deliver(ctx context.Context, logger *slog.Logger, id, url string, payload Payload) {
	err := f.sender.Send(ctx, url, payload)
	if f.observer != nil {
		f.observer.WebhookDelivered(payload.Event, err == nil)
	}
	if err != nil {
		logging.WarnWithContext(logger, "webhook delivery failed", "webhook_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the subscriber endpoint"),
			logging.String(logging.FieldImpact, "webhook_last_error recorded on the job"),
		)
	} else {
		logger.Debug("webhook delivered")
	}
	if f.recorder == nil {
		return
	}
	_, recErr := f.recorder.Update(ctx, id, func(j *jobs.Job) error {
		next := ""
		if err != nil {
			next = err.Error()
		}
		if j.WebhookLastError == next {
			return errUnchanged
		}
		j.WebhookLastError = next
		return nil
	})
	if recErr != nil && !errors.Is(recErr, errUnchanged) {
		logger.Debug("could not record webhook outcome", logging.Error(recErr))
		return
	}
	if recErr == nil {
		f.broker.Signal(id)
	}
}

var errUnchanged = errors.New("unchanged")

// Wait blocks until in-flight webhook deliveries finish or ctx ends.
func (f *Fanout) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
