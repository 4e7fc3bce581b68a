// Package clamav talks to a ClamAV REST sidecar. Scan failures are
// classified so the workflow engine can tell a flaky gate from a bad file.
package clamav

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/domain"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/core/ports"
	"github.com/hestami-ai/ai-home-maintenance-sub020/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	storage    ports.BlobStorage
	logger     *slog.Logger
	executor   *resilience.Executor

	maxDefinitionAge time.Duration

	mu            sync.Mutex
	lastRefreshed time.Time
}

type Option func(*Client)

func WithResilienceExecutor(executor *resilience.Executor) Option {
	return func(c *Client) { c.executor = executor }
}

func WithScanTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func New(baseURL string, storage ports.BlobStorage, logger *slog.Logger, maxDefinitionAge time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:          strings.TrimRight(baseURL, "/"),
		httpClient:       &http.Client{Timeout: 60 * time.Second},
		storage:          storage,
		logger:           logger,
		maxDefinitionAge: maxDefinitionAge,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type scanResponse struct {
	Infected  bool   `json:"infected"`
	Signature string `json:"signature,omitempty"`
}

// Scan streams the staged object to the sidecar and returns the verdict.
// Stale definitions trigger a best-effort refresh first; a refresh failure
// never blocks scanning with the existing set. Gate failures come back as
// temporary-kind errors.
func (c *Client) Scan(ctx context.Context, storagePath string) (ports.ScanVerdict, error) {
	c.refreshIfStale(ctx)

	var verdict ports.ScanVerdict
	call := func(callCtx context.Context) error {
		v, err := c.scanOnce(callCtx, storagePath)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "clamav.scan", call, classifyScanError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return ports.ScanVerdict{}, wrapTemporaryIfNeeded("malware scan", err)
	}
	return verdict, nil
}

func (c *Client) scanOnce(ctx context.Context, storagePath string) (ports.ScanVerdict, error) {
	file, err := c.storage.Open(ctx, storagePath)
	if err != nil {
		// A missing staged object is a content problem, not a gate problem.
		return ports.ScanVerdict{}, domain.WrapError(domain.ErrPermanentContent, "open staged object", err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		part, err := writer.CreateFormFile("file", "upload")
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, file); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(writer.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/scan", pr)
	if err != nil {
		return ports.ScanVerdict{}, fmt.Errorf("create scan request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.ScanVerdict{}, fmt.Errorf("clamav scan request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return ports.ScanVerdict{}, newHTTPStatusError("scan", resp)
	}

	var result scanResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ports.ScanVerdict{}, fmt.Errorf("decode scan response: %w", err)
	}

	if result.Infected {
		return ports.ScanVerdict{Status: domain.ScanStatusInfected, Signature: result.Signature}, nil
	}
	return ports.ScanVerdict{Status: domain.ScanStatusClean}, nil
}

// EnsureDefinitions performs the initial definition download when the
// sidecar reports none present. Called once at worker startup.
func (c *Client) EnsureDefinitions(ctx context.Context) error {
	fresh, err := c.definitionsPresent(ctx)
	if err != nil {
		return fmt.Errorf("check definitions: %w", err)
	}
	if fresh {
		c.markRefreshed()
		return nil
	}
	if err := c.RefreshDefinitions(ctx); err != nil {
		return fmt.Errorf("initial definition download: %w", err)
	}
	return nil
}

// RefreshDefinitions asks the sidecar to reload its virus database.
func (c *Client) RefreshDefinitions(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/reload", nil)
	if err != nil {
		return fmt.Errorf("create reload request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("clamav reload request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return newHTTPStatusError("reload", resp)
	}
	c.markRefreshed()
	return nil
}

// StartRefresher refreshes definitions on the configured interval until ctx
// is cancelled. Refresh failures are logged; scanning continues with the
// definitions already loaded.
func (c *Client) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.RefreshDefinitions(ctx); err != nil {
				c.logger.Warn("definition_refresh_failed", "error", err)
			}
		}
	}
}

func (c *Client) refreshIfStale(ctx context.Context) {
	c.mu.Lock()
	stale := c.maxDefinitionAge > 0 && time.Since(c.lastRefreshed) > c.maxDefinitionAge
	c.mu.Unlock()
	if !stale {
		return
	}
	if err := c.RefreshDefinitions(ctx); err != nil {
		c.logger.Warn("stale_definition_refresh_failed", "error", err)
	}
}

func (c *Client) definitionsPresent(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/version", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode < 300, nil
}

func (c *Client) markRefreshed() {
	c.mu.Lock()
	c.lastRefreshed = time.Now()
	c.mu.Unlock()
}
