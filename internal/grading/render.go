package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/graderai/worksheets/internal/common"
)

// RenderClient calls the external render service that draws verdict overlays
// onto worksheet scans and returns the annotated PDF.
type RenderClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewRenderClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *RenderClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *RenderClient) GeneratePDF(ctx context.Context, req RenderRequest) ([]byte, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "encode render request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, common.WrapError(common.KindInternal, "build render request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, common.WrapError(common.KindTransport, "render service request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, common.UpstreamError(common.KindUpstreamFailure, resp.StatusCode,
			strings.TrimSpace(string(detail)))
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, common.WrapError(common.KindTransport, "read rendered pdf", err)
	}
	if len(pdf) == 0 {
		return nil, common.NewError(common.KindUpstreamFailure, "render service returned empty pdf")
	}
	c.logger.Debug("pdf rendered", "upload_id", req.UploadID, "bytes", len(pdf))
	return pdf, nil
}
