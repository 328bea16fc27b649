package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wtsdeal/broadcast-service/internal/payload"
	"github.com/wtsdeal/broadcast-service/internal/sender"
)

// Config contains the runtime settings the dispatcher relies on to partition
// and pace a job.
type Config struct {
	// BatchSize caps how many sends run concurrently in one wave. The
	// provider's per-call rate ceiling motivates the default of 78.
	BatchSize int
	// BatchDelay is the fixed pause inserted between consecutive batches.
	// It is a rate-limit compliance measure, not adaptive backoff.
	BatchDelay time.Duration
}

// Job describes one bulk dispatch request. A Job is immutable for its
// lifetime; the dispatcher only reads from it.
type Job struct {
	Token         string
	PhoneNumberID string
	Kind          payload.Kind
	Template      payload.TemplateContext
	Bot           payload.BotContent
	MediaIDs      []string
	MessageText   string

	Recipients      []string
	SharedVariables []string
	// PerRecipientVariables, when non-nil, must align index for index with
	// Recipients. A nil row falls back to SharedVariables.
	PerRecipientVariables [][]string

	UniqueID string
	ReportID string
}

// Sender is the per-recipient send dependency.
type Sender interface {
	Send(ctx context.Context, req sender.Request) sender.Outcome
}

// Dispatcher partitions a job's recipients into fixed-size batches, runs each
// batch fully concurrently, waits for the whole batch to resolve, pauses a
// fixed interval and moves on. Outcomes land at each recipient's original
// index so the aggregate preserves submission order regardless of completion
// order.
type Dispatcher struct {
	cfg    Config
	sender Sender
	logger zerolog.Logger
}

// New constructs a Dispatcher.
func New(cfg Config, snd Sender, logger zerolog.Logger) (*Dispatcher, error) {
	if cfg.BatchSize < 1 {
		return nil, errors.New("dispatcher: batch size must be >= 1")
	}
	if cfg.BatchDelay < 0 {
		return nil, errors.New("dispatcher: batch delay cannot be negative")
	}
	if snd == nil {
		return nil, errors.New("dispatcher: sender dependency is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Dispatcher{cfg: cfg, sender: snd, logger: logger}, nil
}

// Dispatch runs the whole job and returns one outcome per recipient, in
// recipient order. Individual send failures become outcomes, never errors;
// the returned error covers only job-level invariant violations detected
// before any send is issued.
func (d *Dispatcher) Dispatch(ctx context.Context, job *Job) ([]sender.Outcome, error) {
	if job == nil {
		return nil, errors.New("dispatcher: job is required")
	}
	if job.PerRecipientVariables != nil && len(job.PerRecipientVariables) != len(job.Recipients) {
		return nil, fmt.Errorf("dispatcher: variable rows (%d) must align with recipients (%d)",
			len(job.PerRecipientVariables), len(job.Recipients))
	}

	total := len(job.Recipients)
	outcomes := make([]sender.Outcome, total)

	d.logger.Info().
		Str("unique_id", job.UniqueID).
		Str("kind", string(job.Kind)).
		Int("recipients", total).
		Msg("dispatcher: processing job")

	for start := 0; start < total; start += d.cfg.BatchSize {
		end := start + d.cfg.BatchSize
		if end > total {
			end = total
		}

		d.logger.Info().
			Str("unique_id", job.UniqueID).
			Int("batch_size", end-start).
			Int("offset", start).
			Msg("dispatcher: sending batch")

		d.runBatch(ctx, job, start, end, outcomes)

		if end < total && !d.pause(ctx) {
			d.logger.Warn().
				Str("unique_id", job.UniqueID).
				Int("dispatched", end).
				Msg("dispatcher: context cancelled between batches")
			for i := end; i < total; i++ {
				outcomes[i] = sender.Outcome{
					Recipient: job.Recipients[i],
					Status:    sender.StatusError,
					Error:     ctx.Err().Error(),
				}
			}
			break
		}
	}

	d.logger.Info().
		Str("unique_id", job.UniqueID).
		Int("results", len(outcomes)).
		Msg("dispatcher: all batches processed")

	return outcomes, nil
}

// runBatch launches one concurrent wave for recipients [start, end) and
// blocks until every send has resolved. A send that panics is recorded as a
// status=error outcome for its recipient only.
func (d *Dispatcher) runBatch(ctx context.Context, job *Job, start, end int, outcomes []sender.Outcome) {
	group := &errgroup.Group{}
	group.SetLimit(end - start)

	for i := start; i < end; i++ {
		idx := i
		group.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error().
						Str("unique_id", job.UniqueID).
						Str("recipient", job.Recipients[idx]).
						Interface("panic", r).
						Msg("dispatcher: send panicked")
					outcomes[idx] = sender.Outcome{
						Recipient: job.Recipients[idx],
						Status:    sender.StatusError,
						Error:     fmt.Sprint(r),
					}
				}
			}()
			outcomes[idx] = d.sender.Send(ctx, d.requestFor(job, idx))
			return nil
		})
	}

	// Sends never surface errors through the group; Wait is purely the
	// batch barrier.
	_ = group.Wait()
}

// requestFor assembles the per-recipient send request, applying the
// per-recipient variable override when one is present.
func (d *Dispatcher) requestFor(job *Job, idx int) sender.Request {
	variables := job.SharedVariables
	if job.PerRecipientVariables != nil && job.PerRecipientVariables[idx] != nil {
		variables = job.PerRecipientVariables[idx]
	}

	return sender.Request{
		Token:         job.Token,
		PhoneNumberID: job.PhoneNumberID,
		Kind:          job.Kind,
		Template:      job.Template,
		Bot:           job.Bot,
		MediaIDs:      job.MediaIDs,
		MessageText:   job.MessageText,
		Recipient:     job.Recipients[idx],
		Variables:     variables,
	}
}

// pause waits out the configured inter-batch delay. It returns false when the
// context is cancelled first.
func (d *Dispatcher) pause(ctx context.Context) bool {
	if d.cfg.BatchDelay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d.cfg.BatchDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
