// Package web serves the import engine over a localhost-only JSON API; it
// intentionally has no auth/CSRF protection in this mode.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"clinicsync/backup"
	"clinicsync/crm"
	"clinicsync/importer"
	"clinicsync/output"
	"clinicsync/rfv"
	"clinicsync/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	maxUploadBytes  = 32 << 20
	suggestionLimit = 3
	defaultLogLimit = 50
)

var errBadRequest = errors.New("bad request")

// Defaults apply when an import request does not say otherwise.
type Defaults struct {
	Backup      bool
	Recalculate bool
}

type Server struct {
	service  *importer.Service
	backups  *backup.Manager
	store    *storage.SQLiteStore
	defaults Defaults
	log      *logrus.Entry
	mux      *http.ServeMux
}

type fieldView struct {
	Name        string   `json:"name"`
	Required    bool     `json:"required"`
	Header      string   `json:"header"`
	Suggestions []string `json:"suggestions"`
}

type columnsResponse struct {
	Kind    crm.Kind          `json:"kind"`
	File    string            `json:"file"`
	Sheets  []string          `json:"sheets"`
	Sheet   string            `json:"sheet"`
	Headers []string          `json:"headers"`
	Rows    int               `json:"rows"`
	Mapping map[string]string `json:"mapping"`
	Missing []string          `json:"missing"`
	Fields  []fieldView       `json:"fields"`
}

type restoreRequest struct {
	Confirm string `json:"confirm"`
}

func NewServer(service *importer.Service, backups *backup.Manager, store *storage.SQLiteStore, defaults Defaults, log *logrus.Entry) http.Handler {
	if log == nil {
		logger := logrus.New()
		logger.SetOutput(io.Discard)
		log = logrus.NewEntry(logger)
	}
	server := &Server{
		service:  service,
		backups:  backups,
		store:    store,
		defaults: defaults,
		log:      log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/imports/columns", server.instrument("columns", server.handleAPIColumns))
	mux.HandleFunc("POST /api/imports/validate", server.instrument("validate", server.handleAPIValidate))
	mux.HandleFunc("POST /api/imports", server.instrument("import", server.handleAPIImport))
	mux.HandleFunc("GET /api/backups", server.instrument("backups", server.handleAPIBackups))
	mux.HandleFunc("POST /api/backups/{id}/restore", server.instrument("restore", server.handleAPIRestore))
	mux.HandleFunc("GET /api/import-logs", server.instrument("import_logs", server.handleAPIImportLogs))
	mux.HandleFunc("GET /api/rfv", server.instrument("rfv", server.handleAPIScores))
	mux.Handle("GET /metrics", promhttp.Handler())
	server.mux = mux

	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleAPIColumns(w http.ResponseWriter, r *http.Request) {
	session, err := s.openSession(w, r)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	mapping := session.Mapping()
	resp := columnsResponse{
		Kind:    session.Kind,
		File:    session.Filename,
		Sheets:  session.Sheets,
		Sheet:   session.Sheet.Name,
		Headers: session.Sheet.Headers,
		Rows:    len(session.Sheet.Rows),
		Mapping: mapping,
		Missing: mapping.Missing(session.Schema),
		Fields:  make([]fieldView, 0, len(session.Schema.Fields)),
	}
	if resp.Missing == nil {
		resp.Missing = []string{}
	}
	for _, field := range session.Schema.Fields {
		suggestions := importer.Suggest(session.Schema, field.Name, session.Sheet.Headers, suggestionLimit)
		if suggestions == nil {
			suggestions = []string{}
		}
		resp.Fields = append(resp.Fields, fieldView{
			Name:        field.Name,
			Required:    field.Required,
			Header:      mapping.Header(field.Name),
			Suggestions: suggestions,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAPIValidate(w http.ResponseWriter, r *http.Request) {
	session, err := s.openSession(w, r)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	result, err := s.service.Validate(r.Context(), session)
	if err != nil {
		http.Error(w, fmt.Sprintf("validate: %v", err), errorStatus(err))
		return
	}

	format := strings.TrimSpace(r.FormValue("format"))
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, result)
		return
	}
	writer, err := output.WriterForFormat(format)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	extension := reportExtension(format)
	w.Header().Set("Content-Type", contentTypes[extension])
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "validation."+extension))
	if err := writer.Write(w, output.ValidationTable(result)); err != nil {
		s.log.WithError(err).Warn("write validation report")
	}
}

func (s *Server) handleAPIImport(w http.ResponseWriter, r *http.Request) {
	session, err := s.openSession(w, r)
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}

	options := importer.RunOptions{Backup: s.defaults.Backup, Recalculate: s.defaults.Recalculate}
	if options.Backup, err = formBool(r, "backup", options.Backup); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if options.Recalculate, err = formBool(r, "recalculate", options.Recalculate); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The import outlives a dropped connection; the session is logged either way.
	report, err := s.service.Run(context.WithoutCancel(r.Context()), session, options)
	if err != nil {
		status := errorStatus(err)
		if report != nil {
			writeJSON(w, status, map[string]any{"error": err.Error(), "report": report})
			return
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAPIBackups(w http.ResponseWriter, r *http.Request) {
	active := strings.TrimSpace(r.URL.Query().Get("active")) == "1"
	artifacts, err := s.backups.List(r.Context(), active)
	if err != nil {
		http.Error(w, fmt.Sprintf("list backups: %v", err), http.StatusInternalServerError)
		return
	}
	if artifacts == nil {
		artifacts = []backup.Artifact{}
	}
	writeJSON(w, http.StatusOK, artifacts)
}

func (s *Server) handleAPIRestore(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		http.Error(w, "missing backup id", http.StatusBadRequest)
		return
	}

	var body restoreRequest
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Confirm != "Y" {
		http.Error(w, `rollback requires {"confirm":"Y"}`, http.StatusPreconditionRequired)
		return
	}

	artifact, err := s.service.Rollback(r.Context(), id)
	if err != nil {
		status := errorStatus(err)
		if errors.Is(err, backup.ErrBackupIncomplete) {
			status = http.StatusConflict
		}
		http.Error(w, fmt.Sprintf("rollback: %v", err), status)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

func (s *Server) handleAPIImportLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := s.store.ListImportLogs(r.Context(), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("list import logs: %v", err), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []importer.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleAPIScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.store.ListScores(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("list rfv scores: %v", err), http.StatusInternalServerError)
		return
	}
	if scores == nil {
		scores = []rfv.Score{}
	}
	writeJSON(w, http.StatusOK, scores)
}

// openSession loads the uploaded file named "file" as the record kind in
// "kind", switching to "sheet" and applying the JSON object in "mapping"
// when given.
func (s *Server) openSession(w http.ResponseWriter, r *http.Request) (*importer.Session, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, fmt.Errorf("%w: parse multipart form: %w", errBadRequest, err)
	}

	kind, err := crm.ParseKind(r.FormValue("kind"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errBadRequest, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: missing file upload", errBadRequest)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read upload: %w", errBadRequest, err)
	}

	session, err := s.service.Open(r.Context(), kind, header.Filename, data, strings.TrimSpace(r.FormValue("sheet")))
	if err != nil {
		return nil, err
	}

	if raw := strings.TrimSpace(r.FormValue("mapping")); raw != "" {
		var overrides map[string]string
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return nil, fmt.Errorf("%w: mapping must be a JSON object of field to header: %w", errBadRequest, err)
		}
		if err := session.ApplyMapping(overrides); err != nil {
			return nil, fmt.Errorf("%w: %w", errBadRequest, err)
		}
	}
	return session, nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, importer.ErrUnreadableSource):
		return http.StatusBadRequest
	case errors.Is(err, importer.ErrMappingIncomplete):
		return http.StatusUnprocessableEntity
	case errors.Is(err, importer.ErrImportInProgress), errors.Is(err, backup.ErrRollbackConflict):
		return http.StatusConflict
	case errors.Is(err, storage.ErrBackupNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func formBool(r *http.Request, key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(r.FormValue(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q", key, raw)
	}
	return value, nil
}

var contentTypes = map[string]string{
	"csv":  "text/csv; charset=utf-8",
	"xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func reportExtension(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "excel", "xlsx":
		return "xlsx"
	default:
		return "csv"
	}
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
