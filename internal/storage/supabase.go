package storage

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

	"github.com/graderai/worksheets/internal/common"
)

// SupabaseStore talks to a Supabase storage deployment with a service key.
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewSupabaseStore(baseURL, serviceKey string, httpClient *http.Client, logger *slog.Logger) *SupabaseStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SupabaseStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// NormalizeKey strips a leading slash and a redundant bucket prefix so callers
// can pass either a bucket-relative key or a full storage path.
func NormalizeKey(bucket, path string) string {
	key := strings.TrimPrefix(path, "/")
	key = strings.TrimPrefix(key, bucket+"/")
	return key
}

type signResponse struct {
	SignedURL    string `json:"signedURL"`
	AltSignedURL string `json:"signed_url"`
}

func (s *SupabaseStore) CreateSignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	key = NormalizeKey(bucket, key)
	url := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", s.baseURL, bucket, key)
	payload, _ := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})

	body, status, err := s.do(ctx, http.MethodPost, url, payload, "application/json")
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", common.NewErrorf(common.KindNotFound, "object not found for key=%s", key)
	}
	if status/100 != 2 {
		return "", common.UpstreamError(common.KindTransport, status, "sign url failed")
	}

	var sr signResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", common.WrapError(common.KindTransport, "decode sign response", err)
	}
	signed := sr.SignedURL
	if signed == "" {
		signed = sr.AltSignedURL
	}
	if signed == "" {
		return "", common.NewErrorf(common.KindNotFound, "object not found for key=%s", key)
	}
	// Some deployments return only the querystring.
	if !strings.HasPrefix(signed, "http") {
		signed = fmt.Sprintf("%s/storage/v1/object/sign/%s/%s?%s",
			s.baseURL, bucket, key, strings.TrimPrefix(strings.TrimPrefix(signed, "/"), "?"))
	}
	s.logger.Debug("storage.sign.ok", "bucket", bucket, "key", key)
	return signed, nil
}

func (s *SupabaseStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	key = NormalizeKey(bucket, key)
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, bucket, key)

	_, status, err := s.do(ctx, http.MethodPost, url, data, contentType)
	if err != nil {
		return "", err
	}
	// Overwrite an existing object instead of failing; artifact generation is
	// idempotent and re-invocation replaces the previous output.
	if status == http.StatusConflict {
		_, status, err = s.do(ctx, http.MethodPut, url, data, contentType)
		if err != nil {
			return "", err
		}
	}
	if status/100 != 2 {
		return "", common.UpstreamError(common.KindTransport, status, "object upload failed")
	}
	s.logger.Info("storage.upload.ok", "bucket", bucket, "key", key, "bytes", len(data))
	return key, nil
}

func (s *SupabaseStore) Remove(ctx context.Context, bucket string, keys []string) error {
	normalized := make([]string, 0, len(keys))
	for _, k := range keys {
		normalized = append(normalized, NormalizeKey(bucket, k))
	}
	url := fmt.Sprintf("%s/storage/v1/object/%s", s.baseURL, bucket)
	payload, _ := json.Marshal(map[string][]string{"prefixes": normalized})

	_, status, err := s.do(ctx, http.MethodDelete, url, payload, "application/json")
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return common.UpstreamError(common.KindTransport, status, "object removal failed")
	}
	s.logger.Info("storage.remove.ok", "bucket", bucket, "keys", len(normalized))
	return nil
}

func (s *SupabaseStore) do(ctx context.Context, method, url string, body []byte, contentType string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, common.WrapError(common.KindTransport, "build storage request", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, common.WrapError(common.KindTransport, "storage request", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return raw, resp.StatusCode, nil
}
