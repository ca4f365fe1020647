package workflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"facelane/internal/engine"
	"facelane/internal/jobs"
	"facelane/internal/testsupport"
	"facelane/internal/workflow"
)

type recordedEvent struct {
	id    string
	event jobs.Event
}

type recordingNotifier struct {
	mu      sync.Mutex
	events  []recordedEvent
	touches int
}

func (n *recordingNotifier) Notify(_ context.Context, job *jobs.Job, event jobs.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, recordedEvent{id: job.ID, event: event})
}

func (n *recordingNotifier) Touch(string) {
	n.mu.Lock()
	n.touches++
	n.mu.Unlock()
}

func (n *recordingNotifier) eventsFor(id string) []jobs.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []jobs.Event
	for _, rec := range n.events {
		if rec.id == id {
			out = append(out, rec.event)
		}
	}
	return out
}

type runFunc func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error

type stubRunner struct {
	mu       sync.Mutex
	order    []string
	inFlight map[jobs.TargetKind]int
	maxSeen  map[jobs.TargetKind]int
	fn       runFunc
}

func newStubRunner(fn runFunc) *stubRunner {
	return &stubRunner{
		inFlight: map[jobs.TargetKind]int{},
		maxSeen:  map[jobs.TargetKind]int{},
		fn:       fn,
	}
}

func (r *stubRunner) Run(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
	r.mu.Lock()
	r.order = append(r.order, id)
	r.inFlight[kind]++
	if r.inFlight[kind] > r.maxSeen[kind] {
		r.maxSeen[kind] = r.inFlight[kind]
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight[kind]--
		r.mu.Unlock()
	}()
	if r.fn == nil {
		return nil
	}
	return r.fn(ctx, id, kind, onProgress)
}

func (r *stubRunner) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func (r *stubRunner) maxConcurrent(kind jobs.TargetKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxSeen[kind]
}

type harness struct {
	store      jobs.Store
	runner     *stubRunner
	notifier   *recordingNotifier
	dispatcher *workflow.Dispatcher
}

func newHarness(t *testing.T, fn runFunc, opts ...workflow.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	runner := newStubRunner(fn)
	notifier := &recordingNotifier{}
	opts = append([]workflow.Option{workflow.WithNotifier(notifier)}, opts...)
	return &harness{
		store:      store,
		runner:     runner,
		notifier:   notifier,
		dispatcher: workflow.NewDispatcher(store, runner, nil, opts...),
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.dispatcher.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.dispatcher.Stop)
}

// queuedJob persists a job that has passed submission.
func (h *harness) queuedJob(t *testing.T, mode jobs.Mode) *jobs.Job {
	t.Helper()
	job := jobs.New("owner", mode, time.Now())
	if err := job.AttachSource("/s/face.jpg"); err != nil {
		t.Fatalf("AttachSource: %v", err)
	}
	if err := job.AttachTarget("/t/target", mode.TargetKind()); err != nil {
		t.Fatalf("AttachTarget: %v", err)
	}
	if err := job.MarkQueued(); err != nil {
		t.Fatalf("MarkQueued: %v", err)
	}
	if err := h.store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func (h *harness) enqueue(t *testing.T, job *jobs.Job) {
	t.Helper()
	if err := h.dispatcher.Enqueue(job.TargetKind, job.ID); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
}

func (h *harness) load(t *testing.T, id string) *jobs.Job {
	t.Helper()
	job, err := h.store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("Load %s: %v", id, err)
	}
	return job
}

func (h *harness) waitForStatus(t *testing.T, id string, want jobs.Status) *jobs.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := h.load(t, id)
		if job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached %s (last %s)", id, want, h.load(t, id).Status)
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
