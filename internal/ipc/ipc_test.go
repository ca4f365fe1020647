package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"facelane/internal/daemonrun"
	"facelane/internal/ipc"
	"facelane/internal/logging"
	"facelane/internal/testsupport"
)

func startIPC(t *testing.T) (*ipc.Client, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithFakeEngine())
	logger := logging.NewNop()
	rt, err := daemonrun.Assemble(cfg, logger)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	t.Cleanup(rt.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(cfg.Paths.DataDir, "facelane.sock")
	srv, err := ipc.NewServer(ctx, socket, rt.Daemon, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, cfg.Paths.DataDir
}

func waitForStatus(t *testing.T, client *ipc.Client, id, want string) ipc.JobView {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		resp, err := client.JobShow(id)
		if err != nil {
			t.Fatalf("JobShow: %v", err)
		}
		if resp.Job.Status == want {
			return resp.Job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s status = %s, want %s", id, resp.Job.Status, want)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestIPCServerClient(t *testing.T) {
	client, base := startIPC(t)

	startResp, err := client.Start()
	if err != nil {
		t.Fatalf("Start RPC failed: %v", err)
	}
	if !startResp.Started {
		t.Fatalf("expected Started=true, message=%s", startResp.Message)
	}

	again, err := client.Start()
	if err != nil {
		t.Fatalf("second Start RPC failed: %v", err)
	}
	if again.Started {
		t.Fatal("expected second start to report already running")
	}

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || status.APIAddress == "" {
		t.Fatalf("unexpected status %+v", status)
	}
	if len(status.Lanes) != 2 {
		t.Fatalf("expected two lanes, got %+v", status.Lanes)
	}
	if status.BusEnabled {
		t.Fatal("expected no bus without a nats url")
	}

	source := filepath.Join(base, "in", "face.jpg")
	target := filepath.Join(base, "in", "photo.png")
	testsupport.WriteMedia(t, source, 64)
	testsupport.WriteMedia(t, target, 64)

	submitted, err := client.JobSubmit(ipc.JobSubmitRequest{
		Mode:       "photo_photo_gpen",
		SourcePath: source,
		TargetPath: target,
	})
	if err != nil {
		t.Fatalf("JobSubmit: %v", err)
	}
	if submitted.Job.OwnerID != ipc.LocalOwner {
		t.Fatalf("owner = %q, want %q", submitted.Job.OwnerID, ipc.LocalOwner)
	}
	if submitted.Job.TargetKind != "image" {
		t.Fatalf("target kind = %q", submitted.Job.TargetKind)
	}

	done := waitForStatus(t, client, submitted.Job.JobID, "completed")
	if !done.ResultReady || done.Progress != 100 {
		t.Fatalf("unexpected completed job %+v", done)
	}

	list, err := client.JobList(ipc.JobListRequest{Statuses: []string{"completed"}})
	if err != nil {
		t.Fatalf("JobList: %v", err)
	}
	if len(list.Jobs) != 1 || list.Jobs[0].JobID != submitted.Job.JobID {
		t.Fatalf("unexpected list %+v", list.Jobs)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected Stopped=true")
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status after stop: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if status.Counts["completed"] != 1 {
		t.Fatalf("unexpected counts %+v", status.Counts)
	}
}

func TestIPCCancelQueuedJob(t *testing.T) {
	client, base := startIPC(t)

	source := filepath.Join(base, "in", "face.png")
	target := filepath.Join(base, "in", "photo.jpg")
	testsupport.WriteMedia(t, source, 32)
	testsupport.WriteMedia(t, target, 32)

	// Lanes are not started, so the job stays queued.
	submitted, err := client.JobSubmit(ipc.JobSubmitRequest{
		Mode:       "photo_photo_codeformer",
		SourcePath: source,
		TargetPath: target,
		Owner:      "alice",
	})
	if err != nil {
		t.Fatalf("JobSubmit: %v", err)
	}
	if submitted.Job.Status != "queued" {
		t.Fatalf("status = %s, want queued", submitted.Job.Status)
	}
	if submitted.Job.Position == nil || *submitted.Job.Position != 1 {
		t.Fatalf("expected queue position 1, got %v", submitted.Job.Position)
	}

	cancelled, err := client.JobCancel(submitted.Job.JobID)
	if err != nil {
		t.Fatalf("JobCancel: %v", err)
	}
	if cancelled.Job.Status != "cancelled" {
		t.Fatalf("status = %s, want cancelled", cancelled.Job.Status)
	}
}

func TestIPCErrors(t *testing.T) {
	client, base := startIPC(t)

	if _, err := client.JobShow("img-missing"); err == nil {
		t.Fatal("expected error for unknown job")
	}
	if _, err := client.JobSubmit(ipc.JobSubmitRequest{
		SourcePath: filepath.Join(base, "missing.jpg"),
		TargetPath: filepath.Join(base, "missing.png"),
	}); err == nil || !strings.Contains(err.Error(), "open source") {
		t.Fatalf("expected open source error, got %v", err)
	}

	video := filepath.Join(base, "in", "face.mp4")
	target := filepath.Join(base, "in", "photo.png")
	testsupport.WriteMedia(t, video, 16)
	testsupport.WriteMedia(t, target, 16)
	if _, err := client.JobSubmit(ipc.JobSubmitRequest{SourcePath: video, TargetPath: target}); err == nil {
		t.Fatal("expected video source to be rejected")
	}
	list, err := client.JobList(ipc.JobListRequest{Statuses: []string{"waiting_source"}})
	if err != nil {
		t.Fatalf("JobList: %v", err)
	}
	if len(list.Jobs) != 0 {
		t.Fatalf("abandoned job should not wait for uploads: %+v", list.Jobs)
	}
}
