package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jobrunner/geotools/internal/application"
	"github.com/jobrunner/geotools/internal/domain"
)

// multipartMemory is the in-memory part of a parsed upload; the rest spills to disk.
const multipartMemory = 32 << 20

// handleRoot returns the service banner.
func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "geotools API is running",
	})
}

// handleHealth returns service health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	details := s.health.GetHealthDetails(r.Context())

	status := http.StatusOK
	if !details.Healthy {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(w, status, map[string]interface{}{
		"status":     boolToStatus(details.Healthy),
		"service":    "geotools",
		"storage":    details.Storage,
		"components": details.Components,
	})
}

func (s *Server) handleBuildingsHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"tool":      "Building Extraction",
		"endpoints": []string{"/generate", "/test"},
	})
}

func (s *Server) handleCellSiteHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"tool":      "Cell Site Locator",
		"endpoints": []string{"/upload", "/download/{output_dir}/{filename}", "/outputs/{output_dir}"},
	})
}

// handleGenerate extracts buildings for the posted geometry.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var payload domain.GeometrySpec
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || len(payload) == 0 {
		s.writeJSON(w, http.StatusBadRequest, domain.ResultEnvelope{
			Status:  domain.StatusNoData,
			Message: "No data provided",
		})
		return
	}

	envelope, status := s.buildings.Generate(r.Context(), payload)
	if status >= http.StatusInternalServerError {
		s.logger.Error("building extraction failed", "message", envelope.Message)
	}
	s.writeJSON(w, status, envelope)
}

// handleBuildingsTest runs extraction for the built-in sample polygon.
func (s *Server) handleBuildingsTest(w http.ResponseWriter, r *http.Request) {
	envelope, status := s.buildings.Generate(r.Context(), domain.GeometrySpec{"WKT": application.SampleWKT})
	s.writeJSON(w, status, envelope)
}

// handleUpload accepts a drive-test file and runs a cell-site job on it.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		s.writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer func() { _ = file.Close() }()

	if header.Filename == "" {
		s.writeError(w, http.StatusBadRequest, "No file selected")
		return
	}

	params, err := s.parseJobParams(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("processing upload", "filename", header.Filename, "method", params.Method)

	result, err := s.jobs.Submit(r.Context(), domain.Upload{Filename: header.Filename, Content: file}, params)
	if err != nil {
		s.handleJobError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// parseJobParams reads job parameters from the form, applying defaults.
func (s *Server) parseJobParams(r *http.Request) (domain.JobParams, error) {
	params := domain.JobParams{
		Method:      domain.Method(formValue(r, "method", string(domain.MethodNoML))),
		MinSamples:  s.defaults.MinSamples,
		BinSize:     s.defaults.BinSize,
		SoftSpacing: formBool(r, "soft_spacing"),
		UseTA:       formBool(r, "use_ta"),
		MakeMap:     formBool(r, "make_map"),
		ModelPath:   r.FormValue("model_path"),
		TrainPath:   r.FormValue("train_path"),
	}

	if v := r.FormValue("min_samples"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, errors.New("invalid min_samples parameter")
		}
		params.MinSamples = n
	}

	if v := r.FormValue("bin_size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return params, errors.New("invalid bin_size parameter")
		}
		params.BinSize = n
	}

	return params, nil
}

// handleJobError maps a job failure to a response without leaking internals.
func (s *Server) handleJobError(w http.ResponseWriter, err error) {
	status := application.StatusCode(err)

	if status == http.StatusBadRequest {
		body := map[string]interface{}{
			"error": validationMessage(err),
		}
		if errors.Is(err, domain.ErrUnsupportedFileType) {
			body["allowed"] = domain.AllowedExtensions
		}
		s.writeJSON(w, status, body)
		return
	}

	s.logger.Error("cell-site job failed", "error", err)

	var procErr *domain.ProcessingError
	if errors.As(err, &procErr) {
		s.writeJSON(w, status, map[string]interface{}{
			"error":  "Processing failed",
			"method": procErr.Method,
		})
		return
	}
	s.writeError(w, status, "Processing failed")
}

// handleDownload serves an artifact or its retrieval URL.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	dir, filename := vars["output_dir"], vars["filename"]

	handle, err := s.artifacts.Resolve(r.Context(), dir, filename)
	if err != nil {
		s.handleArtifactError(w, err, "File not found")
		return
	}

	if handle.IsRemote() {
		s.writeJSON(w, http.StatusOK, map[string]string{"download_url": handle.URL})
		return
	}

	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	http.ServeFile(w, r, handle.LocalPath)
}

// handleListOutputs lists the artifacts of a workspace.
func (s *Server) handleListOutputs(w http.ResponseWriter, r *http.Request) {
	dir := mux.Vars(r)["output_dir"]

	files, err := s.artifacts.List(r.Context(), dir)
	if err != nil {
		s.handleArtifactError(w, err, "Directory not found")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"files": files,
		"count": len(files),
	})
}

// handleGetJob returns a recorded job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.Get(r.Context(), mux.Vars(r)["job_id"])
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "Job not found")
			return
		}
		s.logger.Error("job lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Job lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

// handleOpenAPI returns the OpenAPI document as JSON.
func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	payload, err := getOpenAPIJSON()
	if err != nil {
		s.logger.Error("failed to get OpenAPI payload", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Failed to load OpenAPI specification")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

// handleArtifactError maps storage lookups to 400/404/500.
func (s *Server) handleArtifactError(w http.ResponseWriter, err error, notFound string) {
	switch application.StatusCode(err) {
	case http.StatusBadRequest:
		s.writeError(w, http.StatusBadRequest, validationMessage(err))
	case http.StatusNotFound:
		s.writeError(w, http.StatusNotFound, notFound)
	default:
		s.logger.Error("artifact lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "Storage error")
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func validationMessage(err error) string {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}
	return fmt.Sprintf("invalid request: %v", err)
}

func formValue(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}

func formBool(r *http.Request, key string) bool {
	return strings.EqualFold(r.FormValue(key), "true")
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
