package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ImageRef points at a rendered scannable image of Payload.
type ImageRef struct {
	Ref         string `json:"image_ref"`
	ContentType string `json:"content_type,omitempty"`
	Payload     string `json:"payload"`
}

// ImageRenderer turns a payload string into a scannable image. Encoding the
// image is the renderer's job; callers only own the payload.
type ImageRenderer interface {
	Render(ctx context.Context, payload string) (*ImageRef, error)
}

type HTTPImageRenderer struct {
	endpoint string
	client   *http.Client
}

func NewHTTPImageRenderer(endpoint string, timeout time.Duration) *HTTPImageRenderer {
	return &HTTPImageRenderer{
		endpoint: endpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (r *HTTPImageRenderer) Render(ctx context.Context, payload string) (*ImageRef, error) {
	body, err := json.Marshal(map[string]string{"payload": payload})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("render image: unexpected status %d", resp.StatusCode)
	}
	var out ImageRef
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode render response: %w", err)
	}
	if out.Ref == "" {
		return nil, fmt.Errorf("render image: empty image reference")
	}
	out.Payload = payload
	return &out, nil
}

// UnavailableImageRenderer is used when no renderer endpoint is configured.
type UnavailableImageRenderer struct{}

func (UnavailableImageRenderer) Render(context.Context, string) (*ImageRef, error) {
	return nil, fmt.Errorf("image renderer not configured")
}
