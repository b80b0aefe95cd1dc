package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cutline/internal/config"
	"cutline/internal/edl"
	"cutline/internal/notifications"
)

// ErrUnavailable is returned when no API address is configured.
var ErrUnavailable = errors.New("daemon api not configured (paths.api_bind is empty)")

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient builds a client from the [paths] api settings.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrUnavailable
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, ErrUnavailable
	}
	return NewClientForURL(bind, cfg.Paths.APIToken)
}

// NewClientForURL builds a client for an explicit address.
func NewClientForURL(address, token string) (*Client, error) {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	base, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		http:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &resp)
	return resp, err
}

// CreateProject registers a source.
func (c *Client) CreateProject(ctx context.Context, sourceRef string) (Project, error) {
	var resp ProjectResponse
	err := c.do(ctx, http.MethodPost, "/api/projects", nil, CreateProjectRequest{SourceRef: sourceRef}, &resp)
	return resp.Project, err
}

// ListProjects lists every project.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var resp ProjectListResponse
	err := c.do(ctx, http.MethodGet, "/api/projects", nil, nil, &resp)
	return resp.Projects, err
}

// GetProject fetches one project.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp ProjectResponse
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(id), nil, nil, &resp)
	return resp.Project, err
}

// Append submits ops on top of baseVersion.
func (c *Client) Append(ctx context.Context, projectID string, baseVersion int64, ops []edl.Op) (AppendResponse, error) {
	var resp AppendResponse
	err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/edits", nil,
		AppendRequest{BaseVersion: baseVersion, Ops: ops}, &resp)
	return resp, err
}

// History lists the edit log of a project.
func (c *Client) History(ctx context.Context, projectID string) ([]EditEntry, error) {
	var resp HistoryResponse
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/edits", nil, nil, &resp)
	return resp.Entries, err
}

// RequestRender queues a render of version.
func (c *Client) RequestRender(ctx context.Context, projectID string, version int64, kind string) (Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/renders", nil,
		RenderRequest{Version: version, Kind: kind}, &resp)
	return resp.Job, err
}

// ListExports lists the exports of a project, newest version first.
func (c *Client) ListExports(ctx context.Context, projectID string) ([]Export, error) {
	var resp ExportListResponse
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/exports", nil, nil, &resp)
	return resp.Exports, err
}

// LatestExport fetches the highest-version ready or marked export of a
// project.
func (c *Client) LatestExport(ctx context.Context, projectID string) (Export, error) {
	var resp ExportResponse
	err := c.do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/exports/latest", nil, nil, &resp)
	return resp.Export, err
}

// ListJobs lists render jobs, optionally filtered.
func (c *Client) ListJobs(ctx context.Context, projectID string, states ...string) ([]Job, error) {
	values := url.Values{}
	if projectID != "" {
		values.Set("project", projectID)
	}
	for _, state := range states {
		values.Add("state", state)
	}
	var resp JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, &resp)
	return resp.Jobs, err
}

// GetJob fetches one job.
func (c *Client) GetJob(ctx context.Context, id string) (Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, &resp)
	return resp.Job, err
}

// CancelJob cancels a queued or running job.
func (c *Client) CancelJob(ctx context.Context, id string) (Job, error) {
	var resp JobResponse
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, &resp)
	return resp.Job, err
}

// Pin protects an export from GC.
func (c *Client) Pin(ctx context.Context, exportID string) (Export, error) {
	var resp ExportResponse
	err := c.do(ctx, http.MethodPost, "/api/exports/"+url.PathEscape(exportID)+"/pin", nil, nil, &resp)
	return resp.Export, err
}

// Unpin removes GC protection from an export.
func (c *Client) Unpin(ctx context.Context, exportID string) (Export, error) {
	var resp ExportResponse
	err := c.do(ctx, http.MethodPost, "/api/exports/"+url.PathEscape(exportID)+"/unpin", nil, nil, &resp)
	return resp.Export, err
}

// Candidates computes GC candidates. Negative values use the daemon policy.
func (c *Client) Candidates(ctx context.Context, ttlDays, keepLatest int) (CandidatesResponse, error) {
	values := url.Values{}
	if ttlDays >= 0 {
		values.Set("ttlDays", strconv.Itoa(ttlDays))
	}
	if keepLatest >= 0 {
		values.Set("keepLatest", strconv.Itoa(keepLatest))
	}
	var resp CandidatesResponse
	err := c.do(ctx, http.MethodGet, "/api/gc/candidates", values, nil, &resp)
	return resp, err
}

// Mark marks exports for archive.
func (c *Client) Mark(ctx context.Context, ids []string) (ReportResponse, error) {
	var resp ReportResponse
	err := c.do(ctx, http.MethodPost, "/api/gc/mark", nil, IDsRequest{IDs: ids}, &resp)
	return resp, err
}

// Unmark returns marked exports to ready.
func (c *Client) Unmark(ctx context.Context, ids []string) (ReportResponse, error) {
	var resp ReportResponse
	err := c.do(ctx, http.MethodPost, "/api/gc/unmark", nil, IDsRequest{IDs: ids}, &resp)
	return resp, err
}

// Archive runs the archive stage.
func (c *Client) Archive(ctx context.Context) (ReportResponse, error) {
	var resp ReportResponse
	err := c.do(ctx, http.MethodPost, "/api/gc/archive", nil, nil, &resp)
	return resp, err
}

// DeleteArchived runs the delete stage. A negative minDays uses the daemon
// policy.
func (c *Client) DeleteArchived(ctx context.Context, minDays int) (ReportResponse, error) {
	values := url.Values{}
	if minDays >= 0 {
		values.Set("minDays", strconv.Itoa(minDays))
	}
	var resp ReportResponse
	err := c.do(ctx, http.MethodPost, "/api/gc/delete", values, nil, &resp)
	return resp, err
}

// TestNotification asks the daemon to publish a test event.
func (c *Client) TestNotification(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/notifications/test", nil, nil, nil)
}

// Events streams lifecycle events until ctx ends or fn returns false.
func (c *Client) Events(ctx context.Context, fn func(notifications.Message) bool) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/events", nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	stream := &http.Client{Transport: c.http.Transport}
	resp, err := stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var msg notifications.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if !fn(msg) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	var payload ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&payload); err == nil {
		if payload.Error != "" {
			apiErr.Message = payload.Error
		}
		apiErr.Kind = payload.Kind
	}
	return apiErr
}
