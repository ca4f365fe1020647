package api_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"facelane/internal/api"
	"facelane/internal/config"
	"facelane/internal/engine"
	"facelane/internal/jobs"
	"facelane/internal/media"
	"facelane/internal/testsupport"
	"facelane/internal/workflow"
)

type stubPreparer struct {
	mu       sync.Mutex
	requests []engine.PrepareRequest
	err      error
	// entered and release, when set, hold Prepare until the test lets go.
	entered chan struct{}
	release chan struct{}
}

func (p *stubPreparer) Prepare(_ context.Context, req engine.PrepareRequest) error {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	err := p.err
	p.mu.Unlock()
	if p.entered != nil {
		p.entered <- struct{}{}
	}
	if p.release != nil {
		<-p.release
	}
	return err
}

func (p *stubPreparer) calls() []engine.PrepareRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]engine.PrepareRequest(nil), p.requests...)
}

type stubDispatcher struct {
	mu        sync.Mutex
	queued    map[jobs.TargetKind][]string
	cancelled []string
	enqueueErr error
}

func newStubDispatcher() *stubDispatcher {
	return &stubDispatcher{queued: map[jobs.TargetKind][]string{}}
}

func (d *stubDispatcher) Enqueue(kind jobs.TargetKind, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enqueueErr != nil {
		return d.enqueueErr
	}
	d.queued[kind] = append(d.queued[kind], id)
	return nil
}

func (d *stubDispatcher) Cancel(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = append(d.cancelled, id)
	for kind, ids := range d.queued {
		for i, queued := range ids {
			if queued == id {
				d.queued[kind] = append(ids[:i:i], ids[i+1:]...)
				return false
			}
		}
	}
	return false
}

func (d *stubDispatcher) Position(id string) (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ids := range d.queued {
		for i, queued := range ids {
			if queued == id {
				return i + 1, true
			}
		}
	}
	return 0, false
}

func (d *stubDispatcher) Snapshot() workflow.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	status := workflow.Status{Running: true}
	for _, kind := range jobs.Kinds() {
		status.Lanes = append(status.Lanes, workflow.LaneStatus{Kind: kind, Queued: append([]string(nil), d.queued[kind]...)})
	}
	return status
}

type notice struct {
	id    string
	event jobs.Event
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notice
	touched []string
}

func (n *recordingNotifier) Notify(_ context.Context, job *jobs.Job, event jobs.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice{id: job.ID, event: event})
}

func (n *recordingNotifier) Touch(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.touched = append(n.touched, id)
}

func (n *recordingNotifier) events(id string) []jobs.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []jobs.Event
	for _, nt := range n.notices {
		if nt.id == id {
			out = append(out, nt.event)
		}
	}
	return out
}

type countingObserver struct {
	mu        sync.Mutex
	submitted map[jobs.TargetKind]int
}

func (o *countingObserver) JobSubmitted(kind jobs.TargetKind) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.submitted == nil {
		o.submitted = map[jobs.TargetKind]int{}
	}
	o.submitted[kind]++
}

type harness struct {
	cfg        *config.Config
	store      jobs.Store
	preparer   *stubPreparer
	dispatcher *stubDispatcher
	notifier   *recordingNotifier
	observer   *countingObserver
	svc        *api.Service
}

func newHarness(t *testing.T, opts ...api.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		cfg:        cfg,
		store:      testsupport.MustOpenStore(t, cfg),
		preparer:   &stubPreparer{},
		dispatcher: newStubDispatcher(),
		notifier:   &recordingNotifier{},
		observer:   &countingObserver{},
	}
	artifacts := media.NewStore(cfg, media.WithDurationProbe(func(context.Context, string) (time.Duration, bool, error) {
		return 10 * time.Second, true, nil
	}))
	all := append([]api.Option{
		api.WithNotifier(h.notifier),
		api.WithSubmitObserver(h.observer),
		api.WithWatch(nil, 10*time.Millisecond),
	}, opts...)
	svc, err := api.NewService(h.store, artifacts, h.preparer, h.dispatcher, cfg.Jobs.DefaultMode, all...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.svc = svc
	return h
}

// readyJob creates a photo_photo job for owner with both artifacts attached.
func (h *harness) readyJob(t *testing.T, owner string) string {
	t.Helper()
	ctx := context.Background()
	view, err := h.svc.CreateJob(ctx, owner, string(jobs.ModePhotoPhotoGPEN))
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if _, err := h.svc.AttachSource(ctx, owner, view.JobID, "face.jpg", strings.NewReader("face")); err != nil {
		t.Fatalf("attach source: %v", err)
	}
	if _, err := h.svc.AttachTarget(ctx, owner, view.JobID, "photo.png", strings.NewReader("photo")); err != nil {
		t.Fatalf("attach target: %v", err)
	}
	return view.JobID
}

func (h *harness) load(t *testing.T, id string) *jobs.Job {
	t.Helper()
	job, err := h.store.Load(context.Background(), id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return job
}

var errBoom = errors.New("boom")
