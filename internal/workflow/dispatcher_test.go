package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"facelane/internal/engine"
	"facelane/internal/jobs"
	"facelane/internal/workflow"
)

func TestLaneRunsJobsInFIFOOrderOneAtATime(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		time.Sleep(15 * time.Millisecond)
		return nil
	})
	var want []string
	for i := 0; i < 5; i++ {
		job := h.queuedJob(t, jobs.ModePhotoPhotoGPEN)
		h.enqueue(t, job)
		want = append(want, job.ID)
	}
	h.start(t)

	for _, id := range want {
		job := h.waitForStatus(t, id, jobs.StatusCompleted)
		if job.Progress != 100 || job.Stage != "completed" {
			t.Fatalf("unexpected completed record %+v", job)
		}
	}
	if got := h.runner.calls(); !slices.Equal(got, want) {
		t.Fatalf("run order = %v, want %v", got, want)
	}
	if max := h.runner.maxConcurrent(jobs.KindImage); max != 1 {
		t.Fatalf("image lane ran %d jobs at once", max)
	}
}

func TestLanesRunConcurrently(t *testing.T) {
	imageStarted := make(chan struct{})
	videoStarted := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		mine, other := imageStarted, videoStarted
		if kind == jobs.KindVideo {
			mine, other = videoStarted, imageStarted
		}
		close(mine)
		select {
		case <-other:
			return nil
		case <-time.After(3 * time.Second):
			return errors.New("other lane never started")
		}
	})
	image := h.queuedJob(t, jobs.ModePhotoPhotoCodeFormer)
	video := h.queuedJob(t, jobs.ModePhotoVideoQuality)
	h.enqueue(t, image)
	h.enqueue(t, video)
	h.start(t)

	h.waitForStatus(t, image.ID, jobs.StatusCompleted)
	h.waitForStatus(t, video.ID, jobs.StatusCompleted)
}

func TestEngineExitMarksFailedWithSingleEvent(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		onProgress(engine.Progress{Stage: "processing", Percent: 12})
		return &engine.ExitError{Code: 1, Tail: []string{"face not found"}}
	})
	job := h.queuedJob(t, jobs.ModePhotoVideoFast)
	h.enqueue(t, job)
	h.start(t)

	failed := h.waitForStatus(t, job.ID, jobs.StatusFailed)
	if failed.Error == "" || failed.OutputPath != "" {
		t.Fatalf("unexpected failed record %+v", failed)
	}
	waitFor(t, "failed event", func() bool { return len(h.notifier.eventsFor(job.ID)) == 2 })
	events := h.notifier.eventsFor(job.ID)
	if !slices.Equal(events, []jobs.Event{jobs.EventRunning, jobs.EventFailed}) {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestCancelledWhileQueuedIsSkipped(t *testing.T) {
	h := newHarness(t, nil)
	cancelled := h.queuedJob(t, jobs.ModePhotoPhotoGPEN)
	if _, err := h.store.Update(context.Background(), cancelled.ID, func(j *jobs.Job) error {
		return j.Cancel(time.Now())
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	next := h.queuedJob(t, jobs.ModePhotoPhotoGPEN)
	h.enqueue(t, cancelled)
	h.enqueue(t, next)
	h.start(t)

	h.waitForStatus(t, next.ID, jobs.StatusCompleted)
	if slices.Contains(h.runner.calls(), cancelled.ID) {
		t.Fatal("cancelled job must not reach the engine")
	}
	if got := h.load(t, cancelled.ID).Status; got != jobs.StatusCancelled {
		t.Fatalf("cancelled job changed to %s", got)
	}
	if events := h.notifier.eventsFor(cancelled.ID); len(events) != 0 {
		t.Fatalf("cancelled job emitted %v", events)
	}
}

func TestCancelRemovesQueuedIDFromLane(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		<-release
		return nil
	})
	first := h.queuedJob(t, jobs.ModePhotoVideoFast)
	second := h.queuedJob(t, jobs.ModePhotoVideoFast)
	h.enqueue(t, first)
	h.enqueue(t, second)
	h.start(t)
	waitFor(t, "first job running", func() bool { return len(h.runner.calls()) == 1 })

	if pos, ok := h.dispatcher.Position(second.ID); !ok || pos != 1 {
		t.Fatalf("position = %d, %v", pos, ok)
	}
	if signalled := h.dispatcher.Cancel(second.ID); signalled {
		t.Fatal("queued cancel must not report a signalled engine")
	}
	if _, ok := h.dispatcher.Position(second.ID); ok {
		t.Fatal("cancelled id still queued")
	}
	close(release)
	h.waitForStatus(t, first.ID, jobs.StatusCompleted)
}

func TestCancelDuringRunKeepsCancelledStatus(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		close(started)
		<-release
		onProgress(engine.Progress{Stage: "merging", Percent: 90})
		return nil
	})
	job := h.queuedJob(t, jobs.ModePhotoVideoFast)
	h.enqueue(t, job)
	h.start(t)
	<-started

	if _, err := h.store.Update(context.Background(), job.ID, func(j *jobs.Job) error {
		return j.Cancel(time.Now())
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.dispatcher.Cancel(job.ID) {
		t.Fatal("advisory cancel must not signal the engine")
	}
	close(release)

	waitFor(t, "lane idle", func() bool {
		return h.dispatcher.Snapshot().Lanes[1].Active == "" && h.dispatcher.Snapshot().Lanes[1].Processed == 1
	})
	final := h.load(t, job.ID)
	if final.Status != jobs.StatusCancelled || final.Progress == 90 {
		t.Fatalf("cancelled job overwritten: %+v", final)
	}
	if events := h.notifier.eventsFor(job.ID); !slices.Equal(events, []jobs.Event{jobs.EventRunning}) {
		t.Fatalf("unexpected events %v", events)
	}
}

func TestKillOnCancelInterruptsRunningEngine(t *testing.T) {
	started := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, workflow.WithKillOnCancel(true))
	job := h.queuedJob(t, jobs.ModePhotoPhotoGPEN)
	h.enqueue(t, job)
	h.start(t)
	<-started

	if _, err := h.store.Update(context.Background(), job.ID, func(j *jobs.Job) error {
		return j.Cancel(time.Now())
	}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !h.dispatcher.Cancel(job.ID) {
		t.Fatal("expected the running engine to be signalled")
	}
	waitFor(t, "lane idle", func() bool { return h.dispatcher.Snapshot().Lanes[0].Processed == 1 })
	if got := h.load(t, job.ID).Status; got != jobs.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got)
	}
}

func TestPanicBecomesFailedAndLaneSurvives(t *testing.T) {
	var first string
	h := newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		if id == first {
			panic("engine wrapper exploded")
		}
		return nil
	})
	a := h.queuedJob(t, jobs.ModePhotoVideoFast)
	b := h.queuedJob(t, jobs.ModePhotoVideoFast)
	first = a.ID
	h.enqueue(t, a)
	h.enqueue(t, b)
	h.start(t)

	failed := h.waitForStatus(t, a.ID, jobs.StatusFailed)
	if failed.Error == "" {
		t.Fatal("expected panic to be recorded as the failure reason")
	}
	h.waitForStatus(t, b.ID, jobs.StatusCompleted)
}

func TestProgressIsPersistedMonotonically(t *testing.T) {
	type observation struct {
		stage    string
		progress int
	}
	var seen []observation
	var h *harness
	h = newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		for _, p := range []engine.Progress{
			{Stage: "extracting", Percent: 10},
			{Stage: "processing", Percent: 50},
			{Stage: "processing", Percent: 30},
			{Stage: "merging", Percent: 140},
		} {
			onProgress(p)
			job, err := h.store.Load(ctx, id)
			if err != nil {
				return err
			}
			seen = append(seen, observation{job.Stage, job.Progress})
		}
		return nil
	})
	job := h.queuedJob(t, jobs.ModePhotoVideoFast)
	h.enqueue(t, job)
	h.start(t)
	h.waitForStatus(t, job.ID, jobs.StatusCompleted)

	want := []observation{{"extracting", 10}, {"processing", 50}, {"processing", 50}, {"merging", 100}}
	if !slices.Equal(seen, want) {
		t.Fatalf("progress observations = %v, want %v", seen, want)
	}
}

func TestMissingOutputFailsJob(t *testing.T) {
	h := newHarness(t, nil)
	job := h.queuedJob(t, jobs.ModePhotoPhotoGPEN)
	missing := filepath.Join(t.TempDir(), "never.png")
	if _, err := h.store.Update(context.Background(), job.ID, func(j *jobs.Job) error {
		j.PlannedOutputPath = missing
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	present := h.queuedJob(t, jobs.ModePhotoPhotoGPEN)
	output := filepath.Join(t.TempDir(), "out.png")
	if err := os.WriteFile(output, []byte("png"), 0o644); err != nil {
		t.Fatalf("write output: %v", err)
	}
	if _, err := h.store.Update(context.Background(), present.ID, func(j *jobs.Job) error {
		j.PlannedOutputPath = output
		return nil
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	h.enqueue(t, job)
	h.enqueue(t, present)
	h.start(t)

	h.waitForStatus(t, job.ID, jobs.StatusFailed)
	done := h.waitForStatus(t, present.ID, jobs.StatusCompleted)
	if done.OutputPath != output || !done.ResultReady() {
		t.Fatalf("unexpected completed record %+v", done)
	}
}

func TestRecoverFailsRunningAndRequeuesQueued(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	stale := h.queuedJob(t, jobs.ModePhotoVideoFast)
	if _, err := h.store.Update(ctx, stale.ID, func(j *jobs.Job) error {
		return j.StartRun(time.Now())
	}); err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	older := h.queuedJob(t, jobs.ModePhotoVideoFast)
	newer := h.queuedJob(t, jobs.ModePhotoVideoFast)
	// Touch older last so updated_at order differs from creation order.
	time.Sleep(5 * time.Millisecond)
	if _, err := h.store.Update(ctx, older.ID, func(*jobs.Job) error { return nil }); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := h.dispatcher.Recover(ctx); err != nil {
		t.Fatalf("Recover: %v", err)
	}
	interrupted := h.load(t, stale.ID)
	if interrupted.Status != jobs.StatusFailed || interrupted.Error != jobs.InterruptedReason {
		t.Fatalf("unexpected interrupted record %+v", interrupted)
	}
	if events := h.notifier.eventsFor(stale.ID); !slices.Equal(events, []jobs.Event{jobs.EventFailed}) {
		t.Fatalf("unexpected events %v", events)
	}

	h.start(t)
	h.waitForStatus(t, older.ID, jobs.StatusCompleted)
	h.waitForStatus(t, newer.ID, jobs.StatusCompleted)
	if got := h.runner.calls(); !slices.Equal(got, []string{newer.ID, older.ID}) {
		t.Fatalf("requeue order = %v", got)
	}
}

func TestSnapshotReportsActiveAndQueued(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, id string, kind jobs.TargetKind, onProgress func(engine.Progress)) error {
		<-release
		return nil
	})
	a := h.queuedJob(t, jobs.ModePhotoVideoFast)
	b := h.queuedJob(t, jobs.ModePhotoVideoFast)
	c := h.queuedJob(t, jobs.ModePhotoVideoFast)
	for _, job := range []*jobs.Job{a, b, c} {
		h.enqueue(t, job)
	}
	h.start(t)
	waitFor(t, "first job running", func() bool { return len(h.runner.calls()) == 1 })

	snap := h.dispatcher.Snapshot()
	if !snap.Running || len(snap.Lanes) != 2 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	video := snap.Lanes[1]
	if video.Kind != jobs.KindVideo || video.Active != a.ID || !slices.Equal(video.Queued, []string{b.ID, c.ID}) {
		t.Fatalf("unexpected video lane %+v", video)
	}
	if pos, ok := h.dispatcher.Position(a.ID); !ok || pos != 0 {
		t.Fatalf("active position = %d, %v", pos, ok)
	}
	if pos, ok := h.dispatcher.Position(c.ID); !ok || pos != 2 {
		t.Fatalf("queued position = %d, %v", pos, ok)
	}
	close(release)
	h.waitForStatus(t, c.ID, jobs.StatusCompleted)
}

func TestEnqueueRejectsUnknownLane(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.dispatcher.Enqueue("audio", "img-0123456789ab"); err == nil {
		t.Fatal("expected unknown lane error")
	}
}

func TestStartTwiceFails(t *testing.T) {
	h := newHarness(t, nil)
	h.start(t)
	if err := h.dispatcher.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}
