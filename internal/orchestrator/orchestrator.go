// Package orchestrator submits the descriptors of a sweep to the batch scheduler.
package orchestrator

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"time"

	"hpcbench/internal/job"
	"hpcbench/internal/logger"
	"hpcbench/internal/observability"
	"hpcbench/internal/scheduler"
	"hpcbench/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Submitter hands a rendered script to the scheduler.
type Submitter interface {
	Submit(ctx context.Context, script string) (scheduler.Receipt, error)
}

// Config holds configuration for a matrix run.
type Config struct {
	// Sweep is recorded with every submission.
	Sweep string
	// Interval is the minimum delay between two submissions. Zero disables pacing.
	Interval time.Duration
	// TracerProvider supplies the submit_job spans. Nil uses the global provider.
	TracerProvider trace.TracerProvider
}

// Entry is the outcome of one descriptor.
type Entry struct {
	Label     string
	Directory string
	Args      string
	CoreCount int
	MemoryMB  int
	Status    store.SubmissionStatus
	// JobID is only set for acknowledged submissions.
	JobID int64
	// Output is the scheduler's standard output.
	Output string
	Err    error
}

// Report summarizes a matrix run.
type Report struct {
	RunID   uuid.UUID
	Sweep   string
	Entries []Entry
	Counts  map[store.SubmissionStatus]int
}

// Total is the number of descriptors processed.
func (r *Report) Total() int {
	return len(r.Entries)
}

// Orchestrator submits descriptors one at a time. A failed submission is
// recorded and the run continues; only context cancellation stops it.
type Orchestrator struct {
	submitter   Submitter
	store       store.SubmissionStore
	instruments *observability.Instruments
	logger      *slog.Logger
	tracer      trace.Tracer
	config      Config

	// OnStart, when set, is called before each valid descriptor is submitted.
	OnStart func(job.Descriptor)

	now func() time.Time
}

// New creates an orchestrator. st and instruments may be nil.
func New(sub Submitter, st store.SubmissionStore, instruments *observability.Instruments, log *slog.Logger, config Config) *Orchestrator {
	if log == nil {
		log = logger.Discard()
	}
	tp := config.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Orchestrator{
		submitter:   sub,
		store:       st,
		instruments: instruments,
		logger:      log,
		tracer:      tp.Tracer("hpcbench/orchestrator"),
		config:      config,
		now:         time.Now,
	}
}

// Run submits every descriptor of seq in order. It returns the partial report
// and the context error when ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context, seq iter.Seq[job.Descriptor]) (*Report, error) {
	report := &Report{
		RunID:  uuid.New(),
		Sweep:  o.config.Sweep,
		Counts: make(map[store.SubmissionStatus]int),
	}
	ctx = logger.WithRunID(ctx, report.RunID.String())
	log := logger.FromContext(ctx, o.logger)

	var limiter *rate.Limiter
	if o.config.Interval > 0 {
		limiter = rate.NewLimiter(rate.Every(o.config.Interval), 1)
	}

	log.Info("matrix run started", "sweep", o.config.Sweep)

	for d := range seq {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		entry, script, stop := o.process(ctx, limiter, d)
		if entry.Status != "" {
			report.Entries = append(report.Entries, entry)
			report.Counts[entry.Status]++
			o.record(context.WithoutCancel(ctx), report.RunID, d, entry, script)
		}
		if stop != nil {
			return report, stop
		}
	}

	log.Info("matrix run finished",
		"sweep", o.config.Sweep,
		"total", report.Total(),
		"acknowledged", report.Counts[store.SubmissionAcknowledged],
		"no_id", report.Counts[store.SubmissionNoID],
		"failed", report.Counts[store.SubmissionFailed],
		"invalid", report.Counts[store.SubmissionInvalid],
	)
	return report, nil
}

// process handles one descriptor. The returned error is only set when the run must stop;
// an entry without a status was never attempted.
func (o *Orchestrator) process(ctx context.Context, limiter *rate.Limiter, d job.Descriptor) (Entry, string, error) {
	log := logger.FromContext(ctx, o.logger).With("label", d.Name())

	entry := Entry{
		Label:     d.Name(),
		Directory: d.Directory,
		Args:      d.Args,
		CoreCount: d.Resources.CoreCount,
		MemoryMB:  d.Resources.MemoryMB,
	}

	if err := d.Validate(); err != nil {
		log.Warn("descriptor rejected", "error", err)
		entry.Status = store.SubmissionInvalid
		entry.Err = err
		return entry, "", nil
	}

	script := job.Render(d)

	if d.OutputDir != "" {
		if err := os.MkdirAll(d.OutputDir, 0o755); err != nil {
			log.Error("failed to create output directory", "dir", d.OutputDir, "error", err)
			entry.Status = store.SubmissionFailed
			entry.Err = fmt.Errorf("failed to create output directory: %w", err)
			return entry, script, nil
		}
	}

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return entry, script, ctx.Err()
			}
			// The deadline falls before the next slot.
			log.Error("submission not paced", "error", err)
			entry.Status = store.SubmissionFailed
			entry.Err = fmt.Errorf("failed to wait for submission slot: %w", err)
			return entry, script, nil
		}
	}

	if o.OnStart != nil {
		o.OnStart(d)
	}

	spanCtx, span := o.tracer.Start(ctx, "submit_job",
		trace.WithAttributes(
			attribute.String("job.label", entry.Label),
			attribute.String("job.directory", d.Directory),
			attribute.String("job.args", d.Args),
			attribute.Int("job.cores", d.Resources.CoreCount),
			attribute.String("sweep", o.config.Sweep),
		),
	)
	defer span.End()

	start := o.now()
	receipt, err := o.submitter.Submit(spanCtx, script)
	elapsed := o.now().Sub(start)

	entry.Output = receipt.Output
	switch {
	case err != nil:
		entry.Status = store.SubmissionFailed
		entry.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission failed")
		log.Error("submission failed", "error", err)
	case receipt.Acknowledged:
		entry.Status = store.SubmissionAcknowledged
		entry.JobID = receipt.JobID
		span.SetAttributes(attribute.Int64("job.id", receipt.JobID))
		log.Info("job submitted", "job_id", receipt.JobID, "duration", elapsed)
	default:
		entry.Status = store.SubmissionNoID
		log.Warn("scheduler did not report a job id", "output", receipt.Output)
	}

	if o.instruments != nil {
		o.instruments.SubmitDuration.Record(ctx, elapsed.Seconds(),
			metric.WithAttributes(attribute.String("sweep", o.config.Sweep)))
	}

	if entry.Status == store.SubmissionFailed && ctx.Err() != nil {
		return entry, script, ctx.Err()
	}
	return entry, script, nil
}

// record counts and persists an entry. Persistence failures are logged and do not stop the run.
func (o *Orchestrator) record(ctx context.Context, runID uuid.UUID, d job.Descriptor, entry Entry, script string) {
	if o.instruments != nil {
		o.instruments.Submissions.Add(ctx, 1, metric.WithAttributes(
			attribute.String("status", string(entry.Status)),
			attribute.String("sweep", o.config.Sweep),
		))
	}

	if o.store == nil {
		return
	}

	sub := &store.Submission{
		ID:        uuid.New(),
		RunID:     runID,
		Sweep:     o.config.Sweep,
		Label:     entry.Label,
		Directory: d.Directory,
		Args:      d.Args,
		CoreCount: d.Resources.CoreCount,
		MemoryMB:  d.Resources.MemoryMB,
		Timeout:   d.Resources.Timeout,
		Status:    entry.Status,
		Script:    script,
		CreatedAt: o.now().UTC(),
	}
	if entry.Status == store.SubmissionAcknowledged {
		jobID := entry.JobID
		sub.JobID = &jobID
	}
	if entry.Err != nil {
		msg := entry.Err.Error()
		sub.ErrorMessage = &msg
	}

	if err := o.store.CreateSubmission(ctx, sub); err != nil {
		logger.FromContext(ctx, o.logger).Error("failed to record submission", "label", entry.Label, "error", err)
	}
}
