// Package apiclient talks to the worksheet service's OCR endpoints and maps
// responses into canonical status updates for the job controller.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/auth"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/status"
)

type Config struct {
	// BaseURL is the service root, e.g. http://localhost:8080.
	BaseURL string
	// Users resolves the acting user for the auth headers.
	Users auth.Source
}

type Client struct {
	baseURL    string
	users      auth.Source
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		users:      cfg.Users,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Start kicks off OCR for an upload. The response body, whatever its shape,
// goes through the normalizer so the controller only ever sees canonical
// updates.
func (c *Client) Start(ctx context.Context, fileID uuid.UUID) (status.Update, error) {
	payload, err := json.Marshal(map[string]string{"upload_id": fileID.String()})
	if err != nil {
		return status.Update{}, common.WrapError(common.KindInternal, "encode start request", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/api/ocr/start", bytes.NewReader(payload))
	if err != nil {
		return status.Update{}, err
	}
	return status.NormalizeJSON(body, constants.OCRStatusPending), nil
}

// Status fetches the current job state for an upload.
func (c *Client) Status(ctx context.Context, fileID uuid.UUID, prior constants.OCRStatus) (status.Update, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/ocr/status/"+fileID.String(), nil)
	if err != nil {
		return status.Update{}, err
	}
	return status.NormalizeJSON(body, prior), nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "build request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	userID, err := c.users.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	auth.SetUserHeaders(req.Header, userID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, common.WrapError(common.KindTransport, fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, common.WrapError(common.KindTransport, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, common.UpstreamError(kindForHTTPStatus(resp.StatusCode), resp.StatusCode, errorDetail(data))
	}
	return data, nil
}

func kindForHTTPStatus(code int) common.ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return common.KindRateLimited
	case code == http.StatusNotFound:
		return common.KindNotFound
	case code == http.StatusUnauthorized:
		return common.KindAuthRequired
	case code == http.StatusForbidden:
		return common.KindForbidden
	case code == http.StatusGatewayTimeout:
		return common.KindUpstreamTimeout
	case code >= 500:
		return common.KindUpstreamFailure
	default:
		return common.KindTransport
	}
}

// errorDetail pulls a human-readable message out of an error body. The
// service writes {"detail": ...}; older deployments used {"error": ...} or
// {"message": ...}.
func errorDetail(body []byte) string {
	var parsed struct {
		Detail  string `json:"detail"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, v := range []string{parsed.Detail, parsed.Error, parsed.Message} {
			if v != "" {
				return v
			}
		}
	}
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "upstream error"
	}
	if len(raw) > 300 {
		raw = raw[:300]
	}
	return raw
}
