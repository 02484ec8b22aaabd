// Package backend is a typed client for the remote LVS backend: GDS and
// netlist upload and scan, the LVS cell list and the LVS runner.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/raaihank/lvs-console/internal/logger"
)

// maxErrorBody caps how much of an error reply is read
const maxErrorBody = 64 << 10

// Config contains backend client configuration
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RunTimeout time.Duration
}

// Client talks to the LVS backend
type Client struct {
	baseURL    *url.URL
	http       *http.Client
	timeout    time.Duration
	runTimeout time.Duration
	logger     *logger.Logger
}

type tokenKey struct{}

// WithToken attaches a bearer token that outgoing backend calls forward
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// New creates a backend client
func New(cfg Config, log *logger.Logger) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse backend url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend url must be absolute: %q", cfg.BaseURL)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}

	return &Client{
		baseURL:    u,
		http:       &http.Client{},
		timeout:    cfg.Timeout,
		runTimeout: cfg.RunTimeout,
		logger:     log,
	}, nil
}

// BaseURL returns the backend base URL
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// UploadGDS sends a layout file to /gds/get_cellnames
func (c *Client) UploadGDS(ctx context.Context, filename string, r io.Reader) (*GDSUpload, error) {
	var out GDSUpload
	if err := c.upload(ctx, "/gds/get_cellnames", "gds_file", filename, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanGDS asks the backend for the layers, text layers and labels of an uploaded layout
func (c *Client) ScanGDS(ctx context.Context, req ScanRequest) (*GDSScan, error) {
	if req.Type == "" {
		req.Type = "both"
	}
	var out GDSScan
	if err := c.postJSON(ctx, c.timeout, "/gds/scan_gds", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadCIR sends a netlist file to /cir/get_circells
func (c *Client) UploadCIR(ctx context.Context, filename string, r io.Reader) (*CIRUpload, error) {
	var out CIRUpload
	if err := c.upload(ctx, "/cir/get_circells", "cir_file", filename, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanCIR rescans an uploaded netlist by name
func (c *Client) ScanCIR(ctx context.Context, name string) (*CIRScan, error) {
	var out CIRScan
	body := map[string]string{"inpCir": name}
	if err := c.postJSON(ctx, c.timeout, "/cir/scan_cir", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LVSCells returns the cells present in both the netlist and the layout
func (c *Client) LVSCells(ctx context.Context, cirName, gdsName string) (*LVSCellList, error) {
	var out LVSCellList
	body := map[string]string{"cir_File": cirName, "gds_File": gdsName}
	if err := c.postJSON(ctx, c.timeout, "/cell_list/lvs_celllist", body, &out); err != nil {
		return nil, err
	}
	if out.LVSCells == nil {
		out.LVSCells = []string{}
	}
	return &out, nil
}

// RunLVS triggers the LVS runner and returns the report file it produces
func (c *Client) RunLVS(ctx context.Context, req RunRequest) (*Report, error) {
	ctx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode run request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/lvs/lvs_runner", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeError(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	return &Report{
		Filename:    ReportFilename(resp.Header.Get("Content-Disposition")),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// ReportFilename extracts the download name from a Content-Disposition
// header, preferring the RFC 5987 filename* form.
func ReportFilename(disposition string) string {
	if disposition == "" {
		return DefaultReportName
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return DefaultReportName
	}
	// mime decodes filename* into filename
	name := path.Base(strings.ReplaceAll(params["filename"], `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return DefaultReportName
	}
	return name
}

func (c *Client) postJSON(ctx context.Context, timeout time.Duration, endpoint string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", endpoint, err)
	}

	resp, err := c.do(ctx, http.MethodPost, endpoint, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, endpoint, out)
}

// upload streams a single file as multipart/form-data under field
var errUploadDone = errors.New("upload finished")

func (c *Client) upload(ctx context.Context, endpoint, field, filename string, r io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	// the writer goroutine reads r, so it must be gone before we return
	done := make(chan struct{})
	defer func() {
		pr.CloseWithError(errUploadDone)
		<-done
	}()

	go func() {
		defer close(done)
		part, err := mw.CreateFormFile(field, filename)
		if err == nil {
			_, err = io.Copy(part, r)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	resp, err := c.do(ctx, http.MethodPost, endpoint, mw.FormDataContentType(), pr)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeJSON(resp, endpoint, out)
}

func (c *Client) do(ctx context.Context, method, endpoint, contentType string, body io.Reader) (*http.Response, error) {
	target := c.baseURL.JoinPath(endpoint)

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if token := tokenFrom(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.logger.LogBackendCall(method, endpoint, req.Header, status, time.Since(start), err)

	if err != nil {
		return nil, fmt.Errorf("backend request %s failed: %w", endpoint, err)
	}
	return resp, nil
}

func decodeJSON(resp *http.Response, endpoint string, out any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}

// decodeError turns an error reply into *Error, using "message" or "error"
// from a JSON body when there is one.
func decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	e := &Error{Status: resp.StatusCode}
	var body errorBody
	if strings.Contains(resp.Header.Get("Content-Type"), "json") && json.Unmarshal(raw, &body) == nil {
		e.Message = body.Message
		if e.Message == "" {
			e.Message = body.Error
		}
		e.MissingFiles = body.MissingFiles
	}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}

	return e
}
