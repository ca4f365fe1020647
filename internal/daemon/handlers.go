package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"facelane/internal/api"
	"facelane/internal/services"
)

// multipartMemory bounds the in-memory share of a multipart form; larger
// parts spill to temporary files.
const multipartMemory = 8 << 20

type createJobRequest struct {
	Mode string `json:"mode"`
}

type webhookRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type submitRequest struct {
	ReferenceFrameNumber *int `json:"reference_frame_number"`
}

type listResponse struct {
	Jobs []api.JobView `json:"jobs"`
}

func (s *httpServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.service.Status(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *httpServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.daemon.service.CreateJob(r.Context(), ownerFrom(r), req.Mode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *httpServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			s.writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}
	views, err := s.daemon.service.List(r.Context(), ownerFrom(r), api.ListOptions{
		Statuses: query["status"],
		Kind:     query.Get("kind"),
		Limit:    limit,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, listResponse{Jobs: views})
}

func (s *httpServer) handleGetJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.service.Get(r.Context(), ownerFrom(r), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *httpServer) handleAttachSource(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, s.daemon.service.AttachSource)
}

func (s *httpServer) handleAttachTarget(w http.ResponseWriter, r *http.Request) {
	s.handleUpload(w, r, s.daemon.service.AttachTarget)
}

type attachFunc func(ctx context.Context, owner, id, name string, r io.Reader) (api.JobView, error)

func (s *httpServer) handleUpload(w http.ResponseWriter, r *http.Request, attach attachFunc) {
	form, err := s.parseMultipart(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer form.RemoveAll()

	file, name, err := formFile(form, "file")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer file.Close()

	view, err := attach(r.Context(), ownerFrom(r), chi.URLParam(r, "jobID"), name, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *httpServer) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.daemon.service.SetWebhook(r.Context(), ownerFrom(r), chi.URLParam(r, "jobID"), req.URL, req.Events)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *httpServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.daemon.service.Submit(r.Context(), ownerFrom(r), chi.URLParam(r, "jobID"),
		api.SubmitOptions{ReferenceFrame: req.ReferenceFrameNumber})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, view)
}

func (s *httpServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	view, err := s.daemon.service.Cancel(r.Context(), ownerFrom(r), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *httpServer) handleResult(w http.ResponseWriter, r *http.Request) {
	path, err := s.daemon.service.Result(r.Context(), ownerFrom(r), chi.URLParam(r, "jobID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(path)))
	http.ServeFile(w, r, path)
}

// handleQuick accepts mode, source, target and optional webhook fields in one
// multipart request and submits the job immediately.
func (s *httpServer) handleQuick(w http.ResponseWriter, r *http.Request) {
	form, err := s.parseMultipart(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer form.RemoveAll()

	source, sourceName, err := formFile(form, "source")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer source.Close()
	target, targetName, err := formFile(form, "target")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer target.Close()

	req := api.QuickRequest{
		Mode:       formValue(form, "mode"),
		SourceName: sourceName,
		Source:     source,
		TargetName: targetName,
		Target:     target,
		WebhookURL: formValue(form, "webhook_url"),
	}
	for _, raw := range form.Value["webhook_events"] {
		for _, event := range strings.Split(raw, ",") {
			if event = strings.TrimSpace(event); event != "" {
				req.WebhookEvents = append(req.WebhookEvents, event)
			}
		}
	}
	if raw := formValue(form, "reference_frame_number"); raw != "" {
		frame, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, http.StatusBadRequest, "reference_frame_number must be an integer")
			return
		}
		req.ReferenceFrame = &frame
	}

	view, err := s.daemon.service.Quick(r.Context(), ownerFrom(r), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, view)
}

func (s *httpServer) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	if s.maxUpload > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, services.Wrap(services.ErrOversize, "api", "upload",
				fmt.Sprintf("request exceeds %d MB", s.maxUpload>>20), err)
		}
		return nil, services.Wrap(services.ErrValidation, "api", "upload", "expected a multipart form", err)
	}
	return r.MultipartForm, nil
}

func formFile(form *multipart.Form, field string) (multipart.File, string, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, "", services.Wrap(services.ErrValidation, "api", "upload", fmt.Sprintf("missing %q file", field), nil)
	}
	file, err := headers[0].Open()
	if err != nil {
		return nil, "", fmt.Errorf("open upload %s: %w", field, err)
	}
	return file, headers[0].Filename, nil
}

func formValue(form *multipart.Form, field string) string {
	if values := form.Value[field]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := decoder.Decode(dst); err != nil {
		return services.Wrap(services.ErrValidation, "api", "decode", "invalid JSON body", err)
	}
	return nil
}

// decodeOptionalJSON accepts an empty body as the zero request.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeJSON(r, dst)
	if err != nil && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
