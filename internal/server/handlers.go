package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/raaihank/lvs-console/internal/backend"
	"github.com/raaihank/lvs-console/internal/hierarchy"
	"github.com/raaihank/lvs-console/internal/logparse"
	"github.com/raaihank/lvs-console/internal/session"
)

// maxTextBody caps pasted logs and name lists
const maxTextBody = 32 << 20

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":              "lvs-console",
		"version":           Version,
		"backend":           s.backend.BaseURL().String(),
		"rules":             s.state.Rules(),
		"cache_enabled":     s.cache != nil,
		"store_enabled":     s.store != nil,
		"websocket_clients": s.wsHub.GetStats().ActiveConnections,
		"uptime":            time.Since(s.started).Round(time.Second).String(),
	})
}

type parseResponse struct {
	Strategy logparse.StrategyName `json:"strategy"`
	Rows     []logparse.RuleCount  `json:"rows"`
	Filtered []logparse.RuleCount  `json:"filtered"`
	Total    int                   `json:"total"`
	Cached   bool                  `json:"cached"`
}

// handleParseLogs aggregates a pasted or uploaded violation log
func (s *Server) handleParseLogs(w http.ResponseWriter, r *http.Request) {
	text, err := readText(w, r, "file", maxTextBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, cached := s.parseLog(r.Context(), text)
	writeJSON(w, http.StatusOK, parseResponse{
		Strategy: res.Strategy,
		Rows:     res.Rows,
		Filtered: logparse.Filter(res.Rows, r.URL.Query().Get("q")),
		Total:    logparse.Total(res.Rows),
		Cached:   cached,
	})
}

// parseLog parses text, going through the cache when one is configured
func (s *Server) parseLog(ctx context.Context, text string) (logparse.Result, bool) {
	if s.cache != nil {
		if res, ok := s.cache.Get(ctx, text); ok {
			return *res, true
		}
	}

	res := logparse.ParseWithStrategy(text)
	s.logger.Debug("Violation log parsed",
		zap.String("strategy", string(res.Strategy)),
		zap.Int("rules", len(res.Rows)))

	if s.cache != nil && len(text) > 0 {
		if err := s.cache.Put(ctx, text, res); err != nil {
			s.logger.Warn("Failed to cache parse result", zap.Error(err))
		}
	}
	return res, false
}

type diffRequest struct {
	Canonical json.RawMessage `json:"canonical"`
	Supplied  json.RawMessage `json:"supplied"`
	Text      json.RawMessage `json:"text"`
}

// nameList reads a JSON array of names. Anything else, including null, is an
// empty list; non-string items are skipped.
func nameList(raw json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return []string{}
	}
	names := make([]string, 0, len(items))
	for _, it := range items {
		if n, ok := it.(string); ok {
			names = append(names, n)
		}
	}
	return names
}

func textValue(raw json.RawMessage) string {
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return ""
	}
	return text
}

// handleHierarchyDiff compares a canonical cell list with a supplied one
func (s *Server) handleHierarchyDiff(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req diffRequest
	if err := decodeValidated(s.schemas.hierarchyDiff, raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	canonical := nameList(req.Canonical)
	supplied := nameList(req.Supplied)
	if text := textValue(req.Text); text != "" {
		supplied = append(supplied, hierarchy.ParseNameList(text)...)
	}

	if r.URL.Query().Get("format") == "diff" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		io.WriteString(w, hierarchy.UnifiedReport(canonical, supplied, hierarchy.ReportOptions{}))
		return
	}

	writeJSON(w, http.StatusOK, hierarchy.Diff(canonical, supplied))
}

// handleHierarchyScan compares the layout hierarchy with the uploaded name list
func (s *Server) handleHierarchyScan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.HierarchyScan())
}

// handleCellsText takes a cell name list; an empty body clears it
func (s *Server) handleCellsText(w http.ResponseWriter, r *http.Request) {
	text, err := readText(w, r, "file", maxTextBody)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	names := hierarchy.ParseNameList(text)
	s.state.SetTextNames(names)

	snap := s.state.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"names":   snap.TextNames,
		"checked": snap.CheckedCells,
	})
}

// handleUploadGDS forwards a layout to the backend, then scans it and
// refreshes the LVS cell list in parallel.
func (s *Server) handleUploadGDS(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	var up *backend.GDSUpload
	err := s.streamUpload(w, r, "gds_file", func(filename string, part io.Reader) error {
		var err error
		up, err = s.backend.UploadGDS(r.Context(), filename, part)
		if err == nil && up.SavedPath == "" {
			up.SavedPath = filename
		}
		return err
	})
	if err != nil {
		s.writeUploadError(w, err)
		return
	}

	s.state.SetGDS(up)
	gdsName := backend.BaseName(up.SavedPath)

	unit, precision := up.Unit, up.Precision
	if unit == 0 {
		unit = s.config.Backend.ScanUnit
	}
	if precision == 0 {
		precision = s.config.Backend.ScanPrecision
	}

	var (
		scan    *backend.GDSScan
		scanErr error
		lvsErr  error
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		scan, scanErr = s.backend.ScanGDS(ctx, backend.ScanRequest{InpGds: gdsName, Unit: unit, Precision: precision})
		if scanErr == nil {
			scanErr = s.state.SetScan(session.ScanGDS, scan)
		}
		return nil
	})
	g.Go(func() error {
		lvsErr = s.refreshIfPaired(ctx)
		return nil
	})
	_ = g.Wait()

	resp := map[string]any{"upload": up, "scan": scan}
	if scanErr != nil {
		log.Warn("GDS scan failed", zap.String("gds", gdsName), zap.Error(scanErr))
		resp["scanError"] = scanErr.Error()
	}
	if lvsErr != nil {
		log.Warn("LVS cell refresh failed", zap.Error(lvsErr))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUploadCIR forwards a netlist to the backend and scans it
func (s *Server) handleUploadCIR(w http.ResponseWriter, r *http.Request) {
	log := s.logger.WithRequestID(getRequestID(r.Context()))

	var up *backend.CIRUpload
	err := s.streamUpload(w, r, "cir_file", func(filename string, part io.Reader) error {
		var err error
		up, err = s.backend.UploadCIR(r.Context(), filename, part)
		if err == nil && up.SavedPath == "" {
			up.SavedPath = filename
		}
		return err
	})
	if err != nil {
		s.writeUploadError(w, err)
		return
	}

	s.state.SetCIR(up)
	cirName := backend.BaseName(up.SavedPath)

	var (
		scan    *backend.CIRScan
		scanErr error
		lvsErr  error
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		scan, scanErr = s.backend.ScanCIR(ctx, cirName)
		if scanErr == nil {
			scanErr = s.state.SetScan(session.ScanCIR, scan)
		}
		return nil
	})
	g.Go(func() error {
		lvsErr = s.refreshIfPaired(ctx)
		return nil
	})
	_ = g.Wait()

	resp := map[string]any{"upload": up, "scan": scan}
	if scanErr != nil {
		log.Warn("CIR scan failed", zap.String("cir", cirName), zap.Error(scanErr))
		resp["scanError"] = scanErr.Error()
	}
	if lvsErr != nil {
		log.Warn("LVS cell refresh failed", zap.Error(lvsErr))
	}
	writeJSON(w, http.StatusOK, resp)
}

// refreshIfPaired reloads the LVS cell list once both files are known
func (s *Server) refreshIfPaired(ctx context.Context) error {
	cir, gds := s.state.Pair()
	if cir == "" || gds == "" {
		return nil
	}
	_, err := s.state.RefreshLVSCells(ctx, s.backend)
	if errors.Is(err, backend.ErrSuperseded) {
		return nil
	}
	return err
}

// handleLVSCells fetches the cells common to the current netlist and layout
func (s *Server) handleLVSCells(w http.ResponseWriter, r *http.Request) {
	cells, err := s.state.RefreshLVSCells(r.Context(), s.backend)
	if err != nil {
		writeFailure(w, err)
		return
	}

	q := strings.ToLower(r.URL.Query().Get("q"))
	filtered := []string{}
	for _, c := range cells {
		if q == "" || strings.Contains(strings.ToLower(c), q) {
			filtered = append(filtered, c)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalLVSCells": len(cells),
		"lvsCells":      cells,
		"filtered":      filtered,
	})
}

// handleGetSession returns the session snapshot
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

type sessionUpdate struct {
	session.Update
	ToggleCell    string `json:"toggleCell"`
	ToggleChecked string `json:"toggleChecked"`
	ToggleRule    string `json:"toggleRule"`
	SelectAll     *struct {
		Filter string `json:"filter"`
	} `json:"selectAll"`
	ToggleAllRules bool `json:"toggleAllRules"`
}

// handlePutSession applies selection changes
func (s *Server) handlePutSession(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTextBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req sessionUpdate
	if err := decodeValidated(s.schemas.sessionUpdate, raw, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.state.Apply(req.Update); err != nil {
		writeFailure(w, err)
		return
	}
	if req.ToggleRule != "" {
		if err := s.state.ToggleRule(req.ToggleRule); err != nil {
			writeFailure(w, err)
			return
		}
	}
	if req.ToggleAllRules {
		s.state.ToggleAllRules()
	}
	if req.ToggleCell != "" {
		s.state.ToggleCell(req.ToggleCell)
	}
	if req.ToggleChecked != "" {
		s.state.ToggleChecked(req.ToggleChecked)
	}
	if req.SelectAll != nil {
		s.state.SelectAllCells(req.SelectAll.Filter)
	}

	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

// runEvent is published when a run finishes
type runEvent struct {
	RunID      string               `json:"runId"`
	Status     string               `json:"status"`
	Filename   string               `json:"filename,omitempty"`
	Violations int                  `json:"violations"`
	Rules      []logparse.RuleCount `json:"rules,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// handleRun runs LVS for the current selection and streams back the report
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	req, err := s.state.RunRequest()
	if err != nil {
		writeFailure(w, err)
		return
	}
	if err := validateValue(s.schemas.runRequest, req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid run request: %v", err))
		return
	}

	rec := newRunRecord(req)
	log := s.logger.WithRequestID(getRequestID(r.Context())).WithRunID(rec.RunID)
	log.Info("LVS run started",
		zap.String("layout", req.Layout),
		zap.String("netlist", req.Netlist),
		zap.Int("cells", len(req.SelectedCells)),
		zap.Bools("checks", req.Checks),
	)

	start := time.Now()
	report, err := s.backend.RunLVS(r.Context(), req)
	rec.DurationMS = time.Since(start).Milliseconds()

	if err != nil {
		log.Error("LVS run failed", zap.Error(err))
		rec.fail(err)
		s.recordRun(r.Context(), log, rec, nil)
		s.wsHub.Publish(session.EventRun, runEvent{RunID: rec.RunID, Status: rec.Status, Error: rec.Error})
		writeFailure(w, err)
		return
	}

	parsed := logparse.ParseWithStrategy(string(report.Body))
	rec.succeed(report, logparse.Total(parsed.Rows))
	s.recordRun(r.Context(), log, rec, parsed.Rows)

	log.Info("LVS run completed",
		zap.String("report", report.Filename),
		zap.Int("report_size", len(report.Body)),
		zap.String("strategy", string(parsed.Strategy)),
		zap.Int64("violations", rec.Violations),
		zap.Int64("duration_ms", rec.DurationMS),
	)

	s.wsHub.Publish(session.EventRun, runEvent{
		RunID:      rec.RunID,
		Status:     rec.Status,
		Filename:   report.Filename,
		Violations: int(rec.Violations),
		Rules:      parsed.Rows,
	})

	contentType := report.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": report.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(report.Body)))
	w.Header().Set("X-Run-ID", rec.RunID)
	w.WriteHeader(http.StatusOK)
	w.Write(report.Body)
}

// handleRuns lists recent runs
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.store.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// streamUpload hands the named multipart file field to send without
// buffering it on disk.
func (s *Server) streamUpload(w http.ResponseWriter, r *http.Request, field string, send func(filename string, part io.Reader) error) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadSize)

	mr, err := r.MultipartReader()
	if err != nil {
		return &requestError{msg: "expected multipart/form-data upload"}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return &requestError{msg: fmt.Sprintf("missing %q file field", field)}
		}
		if err != nil {
			return &requestError{msg: fmt.Sprintf("failed to read upload: %v", err)}
		}
		if part.FormName() != field || part.FileName() == "" {
			part.Close()
			continue
		}

		err = send(part.FileName(), part)
		part.Close()
		return err
	}
}

// requestError is a client mistake detected before the backend is called
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (s *Server) writeUploadError(w http.ResponseWriter, err error) {
	var re *requestError
	if errors.As(err, &re) {
		writeError(w, http.StatusBadRequest, re.msg)
		return
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	writeFailure(w, err)
}

// readText returns the request body as text, or the named file field of a
// multipart request.
func readText(w http.ResponseWriter, r *http.Request, field string, limit int64) (string, error) {
	body := http.MaxBytesReader(w, r.Body, limit)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = body
		mr, err := r.MultipartReader()
		if err != nil {
			return "", fmt.Errorf("invalid multipart body: %w", err)
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", fmt.Errorf("missing %q file field", field)
			}
			if err != nil {
				return "", fmt.Errorf("failed to read upload: %w", err)
			}
			if part.FormName() != field {
				part.Close()
				continue
			}
			data, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				return "", fmt.Errorf("failed to read upload: %w", err)
			}
			return string(data), nil
		}
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("failed to read request body: %w", err)
	}
	return string(data), nil
}
