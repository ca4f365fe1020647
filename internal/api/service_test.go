package api_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"facelane/internal/api"
	"facelane/internal/jobs"
	"facelane/internal/services"
)

func TestCreateJobFallsBackToDefaultMode(t *testing.T) {
	h := newHarness(t)
	view, err := h.svc.CreateJob(context.Background(), "u1", "no-such-mode")
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	if view.Mode != h.cfg.Jobs.DefaultMode {
		t.Fatalf("expected default mode %q, got %q", h.cfg.Jobs.DefaultMode, view.Mode)
	}
	if view.Status != string(jobs.StatusWaitingSource) || view.OwnerID != "u1" {
		t.Fatalf("unexpected view: %+v", view)
	}
	if !strings.HasPrefix(view.JobID, "vid-") {
		t.Fatalf("default mode targets video, got id %s", view.JobID)
	}
}

func TestUploadsAdvanceToReady(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, _ := h.svc.CreateJob(ctx, "u1", string(jobs.ModePhotoPhotoCodeFormer))

	view, err := h.svc.AttachSource(ctx, "u1", created.JobID, "me.jpeg", strings.NewReader("face"))
	if err != nil {
		t.Fatalf("attach source: %v", err)
	}
	if view.Status != string(jobs.StatusWaitingTarget) || !view.SourceUploaded || view.TargetUploaded {
		t.Fatalf("unexpected view after source: %+v", view)
	}
	view, err = h.svc.AttachTarget(ctx, "u1", created.JobID, "photo.png", strings.NewReader("photo"))
	if err != nil {
		t.Fatalf("attach target: %v", err)
	}
	if view.Status != string(jobs.StatusReady) || !view.TargetUploaded {
		t.Fatalf("unexpected view after target: %+v", view)
	}
}

func TestAttachTargetKindMismatchLeavesNoFile(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, _ := h.svc.CreateJob(ctx, "u1", string(jobs.ModePhotoVideoFast))

	_, err := h.svc.AttachTarget(ctx, "u1", created.JobID, "photo.png", strings.NewReader("photo"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	entries, _ := os.ReadDir(h.cfg.Paths.TargetDir)
	if len(entries) != 0 {
		t.Fatalf("expected no stored targets, found %d", len(entries))
	}
	if job := h.load(t, created.JobID); job.TargetPath != "" {
		t.Fatalf("target path recorded: %s", job.TargetPath)
	}
}

func TestReattachReplacesArtifact(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.readyJob(t, "u1")
	first := h.load(t, id).TargetPath

	if _, err := h.svc.AttachTarget(ctx, "u1", id, "other.jpg", strings.NewReader("again")); err != nil {
		t.Fatalf("reattach: %v", err)
	}
	job := h.load(t, id)
	if job.TargetPath == first || job.Status != jobs.StatusReady {
		t.Fatalf("unexpected record after reattach: %+v", job)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatalf("expected replaced target removed, stat err=%v", err)
	}
}

func TestOwnerMismatchForbidden(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.readyJob(t, "alice")

	checks := map[string]func() error{
		"get":    func() error { _, err := h.svc.Get(ctx, "bob", id); return err },
		"source": func() error { _, err := h.svc.AttachSource(ctx, "bob", id, "f.jpg", strings.NewReader("x")); return err },
		"submit": func() error { _, err := h.svc.Submit(ctx, "bob", id, api.SubmitOptions{}); return err },
		"cancel": func() error { _, err := h.svc.Cancel(ctx, "bob", id); return err },
		"hook":   func() error { _, err := h.svc.SetWebhook(ctx, "bob", id, "http://x", nil); return err },
		"result": func() error { _, err := h.svc.Result(ctx, "bob", id); return err },
	}
	for name, check := range checks {
		if err := check(); !errors.Is(err, services.ErrForbidden) {
			t.Fatalf("%s: expected forbidden, got %v", name, err)
		}
	}
	if _, err := h.svc.Get(ctx, "", id); err != nil {
		t.Fatalf("trusted caller should bypass owner check: %v", err)
	}
}

func TestSubmitQueuesAndNotifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.readyJob(t, "u1")
	frame := 12

	view, err := h.svc.Submit(ctx, "u1", id, api.SubmitOptions{ReferenceFrame: &frame})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if view.Status != string(jobs.StatusQueued) || view.Progress != 0 {
		t.Fatalf("unexpected view: %+v", view)
	}
	if view.Stage == nil || *view.Stage != "queued" {
		t.Fatalf("expected queued stage, got %v", view.Stage)
	}
	if view.Position == nil || *view.Position != 1 {
		t.Fatalf("expected position 1, got %v", view.Position)
	}

	calls := h.preparer.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one prepare call, got %d", len(calls))
	}
	req := calls[0]
	job := h.load(t, id)
	if req.SourcePath != job.SourcePath || req.TargetPath != job.TargetPath {
		t.Fatalf("prepare paths mismatch: %+v", req)
	}
	if req.OutputPath != job.PlannedOutputPath || filepath.Dir(req.OutputPath) != h.cfg.Paths.OutputDir {
		t.Fatalf("unexpected output path %s (planned %s)", req.OutputPath, job.PlannedOutputPath)
	}
	if filepath.Ext(req.OutputPath) != ".png" {
		t.Fatalf("output should keep target extension, got %s", req.OutputPath)
	}
	if req.Models != jobs.ModePhotoPhotoGPEN.Models() {
		t.Fatalf("unexpected models %+v", req.Models)
	}
	if req.ReferenceFrame == nil || *req.ReferenceFrame != 12 || job.ReferenceFrameNumber == nil {
		t.Fatalf("reference frame not forwarded: %+v", req)
	}
	if job.OutputPath != "" {
		t.Fatalf("output path must stay empty until completion, got %s", job.OutputPath)
	}
	if got := h.notifier.events(id); !slices.Equal(got, []jobs.Event{jobs.EventQueued}) {
		t.Fatalf("unexpected events %v", got)
	}
	if h.observer.submitted[jobs.KindImage] != 1 {
		t.Fatalf("expected submission recorded, got %v", h.observer.submitted)
	}
}

func TestSubmitRequiresUploads(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, _ := h.svc.CreateJob(ctx, "u1", "")
	_, err := h.svc.Submit(ctx, "u1", created.JobID, api.SubmitOptions{})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.preparer.calls()) != 0 {
		t.Fatal("engine must not be called before uploads complete")
	}
}

func TestSubmitTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.readyJob(t, "u1")
	if _, err := h.svc.Submit(ctx, "u1", id, api.SubmitOptions{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := h.svc.Submit(ctx, "u1", id, api.SubmitOptions{}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestConcurrentSubmitPreparesOnce(t *testing.T) {
	h := newHarness(t)
	id := h.readyJob(t, "u1")
	h.preparer.entered = make(chan struct{}, 1)
	h.preparer.release = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := h.svc.Submit(context.Background(), "u1", id, api.SubmitOptions{})
		first <- err
	}()
	select {
	case <-h.preparer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first submit never reached the engine")
	}

	if _, err := h.svc.Submit(context.Background(), "u1", id, api.SubmitOptions{}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict while the first submit is preparing, got %v", err)
	}
	close(h.preparer.release)
	if err := <-first; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if got := len(h.preparer.calls()); got != 1 {
		t.Fatalf("engine prepared %d times, want 1", got)
	}
	if job := h.load(t, id); job.Status != jobs.StatusQueued {
		t.Fatalf("status = %s, want queued", job.Status)
	}
}

func TestSubmitPrepareFailureKeepsReady(t *testing.T) {
	h := newHarness(t)
	h.preparer.err = services.Wrap(services.ErrEngineExit, "engine", "job-create", "engine rejected the job", errBoom)
	id := h.readyJob(t, "u1")

	_, err := h.svc.Submit(context.Background(), "u1", id, api.SubmitOptions{})
	if !errors.Is(err, services.ErrEngineExit) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if job := h.load(t, id); job.Status != jobs.StatusReady || job.PlannedOutputPath != "" {
		t.Fatalf("job should remain ready, got %+v", job)
	}
	if len(h.notifier.events(id)) != 0 {
		t.Fatal("no event expected for a rejected submission")
	}
}

func TestSubmitRejectsNegativeReferenceFrame(t *testing.T) {
	h := newHarness(t)
	id := h.readyJob(t, "u1")
	frame := -1
	if _, err := h.svc.Submit(context.Background(), "u1", id, api.SubmitOptions{ReferenceFrame: &frame}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubmitEnqueueFailureFailsJob(t *testing.T) {
	h := newHarness(t)
	h.dispatcher.enqueueErr = errBoom
	id := h.readyJob(t, "u1")

	if _, err := h.svc.Submit(context.Background(), "u1", id, api.SubmitOptions{}); !errors.Is(err, errBoom) {
		t.Fatalf("expected enqueue error, got %v", err)
	}
	if job := h.load(t, id); job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed, got %s", job.Status)
	}
	if got := h.notifier.events(id); !slices.Equal(got, []jobs.Event{jobs.EventFailed}) {
		t.Fatalf("unexpected events %v", got)
	}
}

func TestSetWebhookValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	created, _ := h.svc.CreateJob(ctx, "u1", "")

	if _, err := h.svc.SetWebhook(ctx, "u1", created.JobID, "ftp://hook", nil); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for scheme, got %v", err)
	}
	if _, err := h.svc.SetWebhook(ctx, "u1", created.JobID, "https://hook", []string{"done"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for event, got %v", err)
	}
	view, err := h.svc.SetWebhook(ctx, "u1", created.JobID, " https://hook/x ", nil)
	if err != nil {
		t.Fatalf("set webhook: %v", err)
	}
	if view.WebhookURL != "https://hook/x" || len(view.WebhookEvents) != 4 {
		t.Fatalf("unexpected webhook view: %+v", view)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.readyJob(t, "u1")
	if _, err := h.svc.Submit(ctx, "u1", id, api.SubmitOptions{}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	view, err := h.svc.Cancel(ctx, "u1", id)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if view.Status != string(jobs.StatusCancelled) || view.Position != nil {
		t.Fatalf("unexpected view: %+v", view)
	}
	if _, queued := h.dispatcher.Position(id); queued {
		t.Fatal("cancelled job still queued")
	}
	if !slices.Contains(h.notifier.touched, id) {
		t.Fatal("expected watchers to be woken")
	}
	if _, err := h.svc.Cancel(ctx, "u1", id); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict on second cancel, got %v", err)
	}
}

func TestResultRequiresCompletion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.readyJob(t, "u1")

	if _, err := h.svc.Result(ctx, "u1", id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found before completion, got %v", err)
	}

	out := filepath.Join(h.cfg.Paths.OutputDir, "done.png")
	if _, err := h.store.Update(ctx, id, func(job *jobs.Job) error {
		job.Status = jobs.StatusRunning
		return job.Complete(out, time.Now())
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := h.svc.Result(ctx, "u1", id); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found for missing file, got %v", err)
	}
	if err := os.WriteFile(out, []byte("result"), 0o644); err != nil {
		t.Fatalf("write result: %v", err)
	}
	path, err := h.svc.Result(ctx, "u1", id)
	if err != nil || path != out {
		t.Fatalf("result = %q, %v", path, err)
	}
}

func TestListFiltersByOwnerAndStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.readyJob(t, "alice")
	h.readyJob(t, "bob")
	if _, err := h.svc.CreateJob(ctx, "alice", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	views, err := h.svc.List(ctx, "alice", api.ListOptions{Statuses: []string{"ready"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 1 || views[0].JobID != a {
		t.Fatalf("unexpected list %+v", views)
	}
	all, err := h.svc.List(ctx, "", api.ListOptions{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected 3 jobs for trusted caller, got %d (%v)", len(all), err)
	}
	if _, err := h.svc.List(ctx, "alice", api.ListOptions{Statuses: []string{"bogus"}}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQuickSubmitsInOneCall(t *testing.T) {
	h := newHarness(t)
	view, err := h.svc.Quick(context.Background(), "u1", api.QuickRequest{
		Mode:       string(jobs.ModePhotoVideoQuality),
		SourceName: "face.png",
		Source:     strings.NewReader("face"),
		TargetName: "clip.mp4",
		Target:     strings.NewReader("clip"),
		WebhookURL: "https://hook",
	})
	if err != nil {
		t.Fatalf("quick: %v", err)
	}
	if view.Status != string(jobs.StatusQueued) || view.TargetKind != string(jobs.KindVideo) || view.WebhookURL != "https://hook" {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestQuickFailureCancelsPartialJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Quick(context.Background(), "u1", api.QuickRequest{
		Mode:       string(jobs.ModePhotoVideoFast),
		SourceName: "face.png",
		Source:     strings.NewReader("face"),
		TargetName: "photo.jpg",
		Target:     strings.NewReader("not a video"),
	})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	views, _ := h.svc.List(context.Background(), "u1", api.ListOptions{})
	if len(views) != 1 || views[0].Status != string(jobs.StatusCancelled) {
		t.Fatalf("expected the partial job cancelled, got %+v", views)
	}
}

func TestSubscribeStreamsUntilTerminal(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	id := h.readyJob(t, "u1")

	updates, err := h.svc.Subscribe(ctx, "u1", id)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	first := <-updates
	if first.Err != nil || first.Job.Status != string(jobs.StatusReady) {
		t.Fatalf("unexpected first frame %+v", first)
	}
	if _, err := h.svc.Cancel(ctx, "u1", id); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	var last api.Update
	for update := range updates {
		last = update
	}
	if last.Job.Status != string(jobs.StatusCancelled) {
		t.Fatalf("expected terminal frame, got %+v", last)
	}
	if _, err := h.svc.Subscribe(ctx, "intruder", id); !errors.Is(err, services.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestStatusCountsAndLanes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.readyJob(t, "u1")
	if _, err := h.svc.Submit(ctx, "u1", id, api.SubmitOptions{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.readyJob(t, "u1")

	status, err := h.svc.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Counts["queued"] != 1 || status.Counts["ready"] != 1 || status.Counts["failed"] != 0 {
		t.Fatalf("unexpected counts %v", status.Counts)
	}
	if len(status.Lanes) != 2 || status.Lanes[0].Lane != "image" || status.Lanes[0].Depth != 1 {
		t.Fatalf("unexpected lanes %+v", status.Lanes)
	}
}
