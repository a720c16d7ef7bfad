// Package provider wraps the hosted handwriting-OCR API: streaming multipart
// upload, rate-limit backoff, and bounded result polling.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/internal/common"
)

// StreamSource opens a fresh byte stream of the source document. Each upload
// attempt opens its own stream so a rate-limited request can be replayed
// without buffering the whole scan in memory.
type StreamSource func(ctx context.Context) (io.ReadCloser, error)

// SubmitMetadata accompanies the document upload.
type SubmitMetadata struct {
	Filename    string
	ContentType string
}

// Config holds provider tunables; zero values fall back to defaults.
type Config struct {
	Endpoint      string // base URL of the provider API
	APIKey        string
	FileField     string        // multipart field name for the document
	UploadRetries int           // total attempts for a rate-limited upload
	PollInterval  time.Duration // delay between result polls
	PollAttempts  int           // poll budget before timing out
}

// Client talks to the OCR provider over HTTP with bearer auth.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if cfg.FileField == "" {
		cfg.FileField = "file"
	}
	if cfg.UploadRetries <= 0 {
		cfg.UploadRetries = 3
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 40
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	return &Client{cfg: cfg, httpClient: httpClient, logger: logger}
}

type submitResponse struct {
	ID string `json:"id"`
}

// Submit uploads the document and returns the provider job id. The multipart
// body is streamed: the boundary prefix, the live byte stream of the source,
// and the boundary suffix are piped straight into the request. HTTP 429 is
// retried after the Retry-After delay, up to the configured attempt budget.
func (c *Client) Submit(ctx context.Context, src StreamSource, meta SubmitMetadata) (string, error) {
	reqID := uuid.New().String()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.UploadRetries; attempt++ {
		jobID, retryAfter, err := c.submitOnce(ctx, src, meta, reqID, attempt)
		if err == nil {
			return jobID, nil
		}
		lastErr = err
		if retryAfter <= 0 {
			return "", err
		}
		c.logger.Warn("provider.upload.rate_limited",
			"req_id", reqID, "attempt", attempt, "retry_after", retryAfter.String())
		select {
		case <-ctx.Done():
			return "", common.WrapError(common.KindTransport, "upload canceled", ctx.Err())
		case <-time.After(retryAfter):
		}
	}
	return "", lastErr
}

// submitOnce performs one upload attempt. A positive retryAfter on error means
// the provider rate-limited us and the attempt may be replayed.
func (c *Client) submitOnce(ctx context.Context, src StreamSource, meta SubmitMetadata, reqID string, attempt int) (string, time.Duration, error) {
	stream, err := src(ctx)
	if err != nil {
		return "", 0, common.WrapError(common.KindTransport, "open source stream", err)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		defer stream.Close()
		part, err := mw.CreateFormFile(c.cfg.FileField, meta.Filename)
		if err == nil {
			_, err = io.Copy(part, stream)
		}
		if err == nil {
			err = mw.WriteField("action", "transcribe")
		}
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/documents", pr)
	if err != nil {
		pr.Close()
		return "", 0, common.WrapError(common.KindTransport, "build upload request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	c.logger.Info("provider.upload.request",
		"req_id", reqID, "attempt", attempt, "filename", meta.Filename)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, common.WrapError(common.KindTransport, "upload document", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	c.logger.Info("provider.upload.response",
		"req_id", reqID, "status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds())

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", retryAfterDelay(resp), common.UpstreamError(
			common.KindRateLimited, resp.StatusCode, "ocr provider rate limit exceeded")
	}
	if resp.StatusCode/100 != 2 {
		return "", 0, common.UpstreamError(
			common.KindTransport, resp.StatusCode, bodyDetail(body))
	}

	var sr submitResponse
	if err := json.Unmarshal(body, &sr); err != nil || sr.ID == "" {
		return "", 0, common.NewError(common.KindUpstreamFailure, "upload response missing document id")
	}
	return sr.ID, 0, nil
}

type resultResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Transcript string `json:"transcript"`
	} `json:"results"`
	Message string `json:"message"`
}

// AwaitResult polls the provider until the job is processed and returns the
// assembled transcript. HTTP 202 means still processing. The poll budget
// bounds the wait; exhausting it is an upstream timeout.
func (c *Client) AwaitResult(ctx context.Context, jobID string) (string, error) {
	url := fmt.Sprintf("%s/documents/%s.json", c.cfg.Endpoint, jobID)

	for attempt := 1; attempt <= c.cfg.PollAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return "", common.WrapError(common.KindTransport, "result poll canceled", ctx.Err())
			case <-time.After(c.cfg.PollInterval):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", common.WrapError(common.KindTransport, "build result request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return "", common.WrapError(common.KindTransport, "poll result", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusAccepted {
			continue
		}
		if resp.StatusCode/100 != 2 {
			return "", common.UpstreamError(common.KindTransport, resp.StatusCode, bodyDetail(body))
		}

		var rr resultResponse
		if err := json.Unmarshal(body, &rr); err != nil {
			return "", common.WrapError(common.KindUpstreamFailure, "decode result response", err)
		}
		switch strings.ToLower(rr.Status) {
		case "processed":
			c.logger.Info("provider.result.ok", "job_id", jobID, "pages", len(rr.Results), "polls", attempt)
			return assembleTranscript(rr), nil
		case "failed":
			detail := rr.Message
			if detail == "" {
				detail = "ocr provider reported failure"
			}
			return "", common.UpstreamError(common.KindUpstreamFailure, resp.StatusCode, detail)
		default:
			// Some variants return 200 with an in-progress status.
			continue
		}
	}
	return "", common.NewErrorf(common.KindUpstreamTimeout,
		"ocr result not ready after %d polls", c.cfg.PollAttempts)
}

// assembleTranscript joins each page's non-empty trimmed transcript with a
// blank line, in page order.
func assembleTranscript(rr resultResponse) string {
	parts := make([]string, 0, len(rr.Results))
	for _, page := range rr.Results {
		if t := strings.TrimSpace(page.Transcript); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

// retryAfterDelay reads Retry-After seconds, defaulting to 1 and flooring at 1s.
func retryAfterDelay(resp *http.Response) time.Duration {
	secs := 1
	if v := resp.Header.Get("Retry-After"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			secs = n
		}
	}
	d := time.Duration(secs) * time.Second
	if d < time.Second {
		d = time.Second
	}
	return d
}

// bodyDetail pulls a detail or message field out of a JSON error body,
// falling back to a capped raw body.
func bodyDetail(body []byte) string {
	var payload struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Detail != "" {
			return payload.Detail
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 500 {
		s = s[:500]
	}
	if s == "" {
		s = "ocr provider returned an error"
	}
	return s
}
