package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"hpcbench/internal/job"
	"hpcbench/internal/matrix"
	"hpcbench/internal/observability"
	"hpcbench/internal/scheduler"
	"hpcbench/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type response struct {
	receipt scheduler.Receipt
	err     error
}

// fakeSubmitter answers calls from a script of responses, then acknowledges with increasing ids.
type fakeSubmitter struct {
	responses []response
	scripts   []string
	onSubmit  func(n int)
}

func (f *fakeSubmitter) Submit(ctx context.Context, script string) (scheduler.Receipt, error) {
	n := len(f.scripts)
	f.scripts = append(f.scripts, script)
	if f.onSubmit != nil {
		f.onSubmit(n)
	}
	if n < len(f.responses) {
		return f.responses[n].receipt, f.responses[n].err
	}
	return scheduler.Receipt{JobID: int64(1000 + n), Acknowledged: true, Output: "Submitted batch job"}, nil
}

type fakeStore struct {
	mu          sync.Mutex
	submissions []*store.Submission
	err         error
}

func (f *fakeStore) CreateSubmission(ctx context.Context, s *store.Submission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.submissions = append(f.submissions, s)
	return nil
}

func (f *fakeStore) ListSubmissions(ctx context.Context, runID uuid.UUID) ([]store.Submission, error) {
	var out []store.Submission
	for _, s := range f.submissions {
		if s.RunID == runID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeStore) CountSubmissionsByStatus(ctx context.Context) (map[store.SubmissionStatus]int64, error) {
	counts := make(map[store.SubmissionStatus]int64)
	for _, s := range f.submissions {
		counts[s.Status]++
	}
	return counts, nil
}

func descriptors(t *testing.T, n int) []job.Descriptor {
	t.Helper()
	sizes := make([]string, n)
	for i := range sizes {
		sizes[i] = strings.Repeat("1", i+1) + " 10 10"
	}
	seq := matrix.CompareTranslations(
		[]matrix.Variant{{Name: "original", Directory: "../0_original", BuildSteps: []string{"make"}, Executable: "./test_HPCCG"}},
		sizes,
		matrix.Envelope{CoreCount: 4, Timeout: "10:00", MemoryMB: 4000},
	)
	return slices.Collect(seq)
}

func TestRun_AllAcknowledged(t *testing.T) {
	sub := &fakeSubmitter{}
	st := &fakeStore{}
	o := New(sub, st, nil, nil, Config{Sweep: "compare"})

	var started []string
	o.OnStart = func(d job.Descriptor) { started = append(started, d.Label) }

	report, err := o.Run(context.Background(), slices.Values(descriptors(t, 3)))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Total() != 3 || report.Counts[store.SubmissionAcknowledged] != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Sweep != "compare" || report.RunID == uuid.Nil {
		t.Errorf("unexpected report identity: sweep=%q run=%s", report.Sweep, report.RunID)
	}
	for i, e := range report.Entries {
		if e.JobID != int64(1000+i) {
			t.Errorf("entry %d job id = %d, want %d", i, e.JobID, 1000+i)
		}
		if e.Label != started[i] {
			t.Errorf("entry %d label %q, started %q", i, e.Label, started[i])
		}
	}
	if !strings.HasPrefix(sub.scripts[0], "#!/bin/sh\n") {
		t.Errorf("expected a rendered script, got %q", sub.scripts[0])
	}

	stored, _ := st.ListSubmissions(context.Background(), report.RunID)
	if len(stored) != 3 {
		t.Fatalf("expected 3 stored submissions, got %d", len(stored))
	}
	if stored[1].JobID == nil || *stored[1].JobID != 1001 {
		t.Errorf("expected stored job id 1001, got %v", stored[1].JobID)
	}
	if stored[1].Script != sub.scripts[1] || stored[1].Sweep != "compare" {
		t.Errorf("unexpected stored submission %+v", stored[1])
	}
}

func TestRun_FailureDoesNotStopRun(t *testing.T) {
	sub := &fakeSubmitter{responses: []response{
		{receipt: scheduler.Receipt{JobID: 1, Acknowledged: true}},
		{err: &scheduler.SubmitError{Command: "sbatch", ExitCode: 1, Stderr: "sbatch: error: invalid partition"}},
		{receipt: scheduler.Receipt{Output: "sbatch: warning: queued\n"}},
	}}
	st := &fakeStore{}
	o := New(sub, st, nil, nil, Config{})

	report, err := o.Run(context.Background(), slices.Values(descriptors(t, 4)))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(sub.scripts) != 4 {
		t.Fatalf("expected 4 submissions, got %d", len(sub.scripts))
	}
	want := []store.SubmissionStatus{store.SubmissionAcknowledged, store.SubmissionFailed, store.SubmissionNoID, store.SubmissionAcknowledged}
	for i, e := range report.Entries {
		if e.Status != want[i] {
			t.Errorf("entry %d status = %s, want %s", i, e.Status, want[i])
		}
	}
	if !errors.Is(report.Entries[1].Err, scheduler.ErrSubmissionFailed) {
		t.Errorf("expected ErrSubmissionFailed, got %v", report.Entries[1].Err)
	}
	if report.Entries[2].JobID != 0 || report.Entries[2].Output != "sbatch: warning: queued\n" {
		t.Errorf("unexpected no_id entry %+v", report.Entries[2])
	}

	counts, _ := st.CountSubmissionsByStatus(context.Background())
	if counts[store.SubmissionFailed] != 1 || counts[store.SubmissionNoID] != 1 || counts[store.SubmissionAcknowledged] != 2 {
		t.Errorf("unexpected stored counts %v", counts)
	}
	for _, s := range st.submissions {
		if s.Status == store.SubmissionFailed && (s.ErrorMessage == nil || !strings.Contains(*s.ErrorMessage, "invalid partition")) {
			t.Errorf("expected error message on failed submission, got %v", s.ErrorMessage)
		}
		if s.Status == store.SubmissionNoID && s.JobID != nil {
			t.Errorf("expected nil job id for no_id submission")
		}
	}
}

func TestRun_InvalidDescriptorSkipsScheduler(t *testing.T) {
	ds := descriptors(t, 2)
	ds[0].Resources.Timeout = "ten minutes"

	sub := &fakeSubmitter{}
	o := New(sub, nil, nil, nil, Config{})

	var started int
	o.OnStart = func(job.Descriptor) { started++ }

	report, err := o.Run(context.Background(), slices.Values(ds))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Counts[store.SubmissionInvalid] != 1 || report.Counts[store.SubmissionAcknowledged] != 1 {
		t.Errorf("unexpected counts %v", report.Counts)
	}
	if !errors.Is(report.Entries[0].Err, job.ErrInvalidDescriptor) {
		t.Errorf("expected ErrInvalidDescriptor, got %v", report.Entries[0].Err)
	}
	if len(sub.scripts) != 1 || started != 1 {
		t.Errorf("expected only the valid descriptor to reach the scheduler, got %d submissions, %d starts", len(sub.scripts), started)
	}
}

func TestRun_CreatesOutputDirectory(t *testing.T) {
	root := t.TempDir()
	ds := descriptors(t, 1)
	ds[0].OutputDir = filepath.Join(root, "compare")

	o := New(&fakeSubmitter{}, nil, nil, nil, Config{})
	if _, err := o.Run(context.Background(), slices.Values(ds)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if info, err := os.Stat(filepath.Join(root, "compare")); err != nil || !info.IsDir() {
		t.Errorf("expected output directory to exist: %v", err)
	}
}

func TestRun_StoreErrorDoesNotStopRun(t *testing.T) {
	st := &fakeStore{err: errors.New("connection refused")}
	o := New(&fakeSubmitter{}, st, nil, nil, Config{})

	report, err := o.Run(context.Background(), slices.Values(descriptors(t, 2)))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Counts[store.SubmissionAcknowledged] != 2 {
		t.Errorf("unexpected counts %v", report.Counts)
	}
}

func TestRun_ContextCancellationStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := &fakeSubmitter{onSubmit: func(n int) {
		if n == 1 {
			cancel()
		}
	}}
	o := New(sub, nil, nil, nil, Config{})

	report, err := o.Run(ctx, slices.Values(descriptors(t, 5)))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(sub.scripts) != 2 {
		t.Errorf("expected 2 submissions before stopping, got %d", len(sub.scripts))
	}
	if report.Total() != 2 {
		t.Errorf("expected a partial report with 2 entries, got %d", report.Total())
	}
}

func TestRun_Paced(t *testing.T) {
	o := New(&fakeSubmitter{}, nil, nil, nil, Config{Interval: 20 * time.Millisecond})

	start := time.Now()
	if _, err := o.Run(context.Background(), slices.Values(descriptors(t, 3))); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("expected paced submissions to take at least 40ms, took %v", elapsed)
	}
}

func TestRun_RecordsMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	instruments, err := observability.NewInstruments(provider.Meter("test"))
	if err != nil {
		t.Fatalf("NewInstruments failed: %v", err)
	}

	sub := &fakeSubmitter{responses: []response{
		{err: errors.New("boom")},
	}}
	o := New(sub, nil, instruments, nil, Config{Sweep: "strong"})
	if _, err := o.Run(context.Background(), slices.Values(descriptors(t, 3))); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect failed: %v", err)
	}

	counts := map[string]int64{}
	var histogramSeen bool
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "hpcbench.submissions":
				sum, ok := m.Data.(metricdata.Sum[int64])
				if !ok {
					t.Fatalf("unexpected data type %T", m.Data)
				}
				for _, dp := range sum.DataPoints {
					status, _ := dp.Attributes.Value(attribute.Key("status"))
					counts[status.AsString()] += dp.Value
				}
			case "hpcbench.submit.duration":
				histogramSeen = true
			}
		}
	}

	if counts["acknowledged"] != 2 || counts["failed"] != 1 {
		t.Errorf("unexpected submission counts %v", counts)
	}
	if !histogramSeen {
		t.Error("expected submit duration histogram")
	}
}

func TestRun_PacingPastDeadlineRecordsFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sub := &fakeSubmitter{}
	o := New(sub, nil, nil, nil, Config{Interval: time.Hour})

	report, err := o.Run(ctx, slices.Values(descriptors(t, 3)))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Total() != 3 {
		t.Fatalf("expected every descriptor to be reported, got %d entries", report.Total())
	}
	if len(sub.scripts) != 1 {
		t.Errorf("expected 1 submission, got %d", len(sub.scripts))
	}
	if report.Counts[store.SubmissionAcknowledged] != 1 || report.Counts[store.SubmissionFailed] != 2 {
		t.Errorf("unexpected counts %v", report.Counts)
	}
	for _, e := range report.Entries[1:] {
		if e.Err == nil {
			t.Errorf("%s: expected the wait error to be recorded", e.Label)
		}
	}
}

func TestRun_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer tp.Shutdown(context.Background())

	sub := &fakeSubmitter{responses: []response{
		{receipt: scheduler.Receipt{JobID: 42, Acknowledged: true, Output: "Submitted batch job 42"}},
		{err: errors.New("boom")},
	}}
	o := New(sub, nil, nil, nil, Config{Sweep: "strong", TracerProvider: tp})
	if _, err := o.Run(context.Background(), slices.Values(descriptors(t, 2))); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}

	attrs := func(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
		m := make(map[attribute.Key]attribute.Value)
		for _, kv := range s.Attributes() {
			m[kv.Key] = kv.Value
		}
		return m
	}

	ok := spans[0]
	if ok.Name() != "submit_job" {
		t.Errorf("unexpected span name %q", ok.Name())
	}
	okAttrs := attrs(ok)
	if got := okAttrs["job.id"].AsInt64(); got != 42 {
		t.Errorf("job.id = %d, want 42", got)
	}
	if got := okAttrs["sweep"].AsString(); got != "strong" {
		t.Errorf("sweep = %q, want strong", got)
	}
	if okAttrs["job.label"].AsString() == "" {
		t.Error("expected job.label attribute")
	}
	if ok.Status().Code == codes.Error {
		t.Error("acknowledged submission marked as error")
	}

	failed := spans[1]
	if failed.Status().Code != codes.Error {
		t.Errorf("expected error status, got %v", failed.Status().Code)
	}
	if _, set := attrs(failed)["job.id"]; set {
		t.Error("failed submission carries a job.id")
	}
	var exception bool
	for _, ev := range failed.Events() {
		if ev.Name == "exception" {
			exception = true
		}
	}
	if !exception {
		t.Error("expected the submission error to be recorded on the span")
	}
}
