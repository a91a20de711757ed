package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/dashrag/internal/config"
	"github.com/hyperjump/dashrag/internal/ingest"
	"github.com/hyperjump/dashrag/internal/models"
)

var validate = validator.New()

type searchRequest struct {
	Query      string        `json:"query" validate:"max=8192"`
	K          int           `json:"k" validate:"min=0"`
	TablesOnly bool          `json:"tables_only"`
	Filter     models.Filter `json:"filter"`
}

type ingestRequest struct {
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`
}

type ingestResponse struct {
	*ingest.Report
	Failures []loadFailure `json:"failures"`
}

type loadFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type watchRequest struct {
	Path string `json:"path" validate:"required"`
}

type statusResponse struct {
	Path           string                 `json:"path"`
	Loaded         bool                   `json:"loaded"`
	Documents      int                    `json:"documents"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes,omitempty"`
	Collection     *models.CollectionInfo `json:"collection,omitempty"`
}

type documentsRequest struct {
	SourceFile string `validate:"max=4096"`
	HasTable   *bool
	Offset     int `validate:"min=0"`
	Limit      int `validate:"min=1,max=1000"`
}

type documentsResponse struct {
	Documents []models.Document `json:"documents"`
	Total     int               `json:"total"`
	Offset    int               `json:"offset"`
}

// decode reads a JSON body into v and validates its struct tags.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return check(v)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("invalid request: %s", strings.Join(msgs, "; "))
	}
	return err
}

// parseDocumentsQuery reads source_file, has_table, offset and limit from the URL.
func parseDocumentsQuery(r *http.Request) (*documentsRequest, error) {
	q := r.URL.Query()
	req := &documentsRequest{SourceFile: q.Get(models.MetaSourceFile), Limit: 100}
	if v := q.Get(models.MetaHasTable); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", models.MetaHasTable, v)
		}
		req.HasTable = &b
	}
	for name, dst := range map[string]*int{"offset": &req.Offset, "limit": &req.Limit} {
		if v := q.Get(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s: %q", name, v)
			}
			*dst = n
		}
	}
	return req, check(req)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("k", req.K), zap.Bool("tables_only", req.TablesOnly))
	response, err := s.searcher.Respond(r.Context(), &models.SearchQuery{
		Query:      req.Query,
		K:          req.K,
		TablesOnly: req.TablesOnly,
		Filter:     req.Filter,
	})
	if err != nil {
		s.fail(w, "search failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ingest request", zap.Strings("paths", req.Paths))
	report, err := s.ingester.ProcessFiles(r.Context(), req.Paths...)
	if err != nil {
		s.fail(w, "ingest failed", err)
		return
	}
	resp := ingestResponse{Report: report, Failures: make([]loadFailure, 0, len(report.Failures))}
	for _, f := range report.Failures {
		resp.Failures = append(resp.Failures, loadFailure{Path: f.Path, Error: f.Err.Error()})
	}
	status := http.StatusOK
	if report.Built {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Path: s.collection.Path(), Loaded: s.collection.Loaded()}
	if resp.Loaded {
		info, err := s.collection.Info()
		if err != nil {
			s.fail(w, "status: collection info failed", err)
			return
		}
		resp.Collection = info
		resp.Documents = s.collection.Count()
	}
	if du, err := s.collection.DiskUsage(); err == nil {
		resp.DiskUsageBytes = du
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// handleDocuments lists stored documents in insertion order, optionally filtered by
// source_file and has_table.
func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	req, err := parseDocumentsQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter := models.Filter{}
	if req.SourceFile != "" {
		filter[models.MetaSourceFile] = req.SourceFile
	}
	if req.HasTable != nil {
		filter[models.MetaHasTable] = *req.HasTable
	}
	docs, err := s.collection.Documents(r.Context(), filter, req.Offset, req.Limit)
	if err != nil {
		s.fail(w, "list documents failed", err)
		return
	}
	s.respondJSON(w, http.StatusOK, documentsResponse{Documents: docs, Total: len(docs), Offset: req.Offset})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchRequest
	if err := decode(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs))
	if err := s.watch.AddDirectory(abs); err != nil {
		s.fail(w, "watch add directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var req watchRequest
		if err := decode(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "path is required (query or body)")
			return
		}
		path = req.Path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.fail(w, "watch remove directory failed", err)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.appConfig == nil {
		return
	}
	s.appConfigMu.Lock()
	defer s.appConfigMu.Unlock()
	s.appConfig.Watch.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.appConfig); err != nil {
		s.logger.Warn("Failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
