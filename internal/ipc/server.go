package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"log/slog"

	"facelane/internal/api"
	"facelane/internal/daemon"
	"facelane/internal/logging"
)

// serviceName prefixes every RPC method.
const serviceName = "Facelane"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: ctx}
	if err := rpcServer.RegisterName(serviceName, srv); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "ipc")
}

func (s *service) Start(_ StartRequest, resp *StartResponse) error {
	s.log().Debug("daemon start requested")
	if err := s.daemon.Start(s.ctx); err != nil {
		resp.Started = false
		resp.Message = err.Error()
		return nil
	}
	resp.Started = true
	resp.Message = "daemon started"
	s.log().Info("daemon started via IPC", logging.String(logging.FieldEventType, "daemon_start"))
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	s.log().Debug("daemon stop requested")
	s.daemon.Stop()
	resp.Stopped = true
	s.log().Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	status, err := s.daemon.Status(s.ctx)
	if err != nil {
		return err
	}
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockPath
	resp.StoreBackend = status.StoreBackend
	resp.APIAddress = status.APIAddress
	resp.BusEnabled = status.BusEnabled
	resp.BusConnected = status.BusConnected
	resp.LastError = status.Workflow.LastError
	resp.Lanes = status.Workflow.Lanes
	resp.Counts = status.Workflow.Counts
	return nil
}

func (s *service) JobList(req JobListRequest, resp *JobListResponse) error {
	jobs, err := s.daemon.Service().List(s.ctx, "", api.ListOptions{
		Statuses: req.Statuses,
		Kind:     req.Kind,
		Limit:    req.Limit,
	})
	if err != nil {
		return err
	}
	resp.Jobs = jobs
	return nil
}

func (s *service) JobShow(req JobShowRequest, resp *JobShowResponse) error {
	job, err := s.daemon.Service().Get(s.ctx, "", strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Job = job
	return nil
}

func (s *service) JobCancel(req JobCancelRequest, resp *JobCancelResponse) error {
	job, err := s.daemon.Service().Cancel(s.ctx, "", strings.TrimSpace(req.ID))
	if err != nil {
		return err
	}
	resp.Job = job
	s.log().Info("job cancelled via IPC", logging.JobID(job.JobID))
	return nil
}

// JobSubmit reads the artifacts from paths on the daemon host and runs the
// quick submission flow.
func (s *service) JobSubmit(req JobSubmitRequest, resp *JobSubmitResponse) error {
	source, err := os.Open(req.SourcePath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer source.Close()
	target, err := os.Open(req.TargetPath)
	if err != nil {
		return fmt.Errorf("open target: %w", err)
	}
	defer target.Close()

	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		owner = LocalOwner
	}
	job, err := s.daemon.Service().Quick(s.ctx, owner, api.QuickRequest{
		Mode:           req.Mode,
		SourceName:     filepath.Base(req.SourcePath),
		Source:         source,
		TargetName:     filepath.Base(req.TargetPath),
		Target:         target,
		WebhookURL:     req.WebhookURL,
		WebhookEvents:  req.WebhookEvents,
		ReferenceFrame: req.ReferenceFrame,
	})
	if err != nil {
		return err
	}
	resp.Job = job
	s.log().Info("job submitted via IPC", logging.JobID(job.JobID), logging.String("owner_id", owner))
	return nil
}
