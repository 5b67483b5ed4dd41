package embed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"photocull/internal/config"
)

// ModelCLIP delegates to an external embedding server
const ModelCLIP = "clip"

// Remote computes embeddings on an HTTP embedding server exposing
// POST /embed/image with a multipart "file" field.
type Remote struct {
	client    *resty.Client
	baseURL   string
	dim       int
	retries   int
	retryWait time.Duration
}

// embeddingResponse represents the response from the embedding server
type embeddingResponse struct {
	Dim        int       `json:"dim"`
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Pretrained string    `json:"pretrained"`
}

// NewRemote creates a client for the server at baseURL producing dim-length vectors
func NewRemote(baseURL string, dim int) (*Remote, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: grouping.embedding_url is required for model %q", config.ErrConfiguration, ModelCLIP)
	}
	if dim <= 0 {
		return nil, fmt.Errorf("%w: grouping.embedding_dim must be > 0 for model %q", config.ErrConfiguration, ModelCLIP)
	}

	return &Remote{
		client:    resty.New().SetTimeout(60 * time.Second),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		dim:       dim,
		retries:   2,
		retryWait: 500 * time.Millisecond,
	}, nil
}

func (r *Remote) Model() string { return ModelCLIP }

func (r *Remote) Dim() int { return r.dim }

// Extract posts each thumbnail in turn. A thumbnail the server rejects gets
// a nil entry and its error is joined into the returned error.
func (r *Remote) Extract(ctx context.Context, batch []image.Image) ([][]float32, error) {
	out := make([][]float32, len(batch))
	var errs []error
	for i, img := range batch {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		vec, err := r.embed(ctx, img)
		if err != nil {
			errs = append(errs, fmt.Errorf("image %d: %w", i, err))
			continue
		}
		out[i] = vec
	}
	return out, errors.Join(errs...)
}

// errRetryable marks failures worth another attempt
var errRetryable = errors.New("retryable")

// embed retries transport errors and 5xx responses, with a fresh multipart
// body per attempt.
func (r *Remote) embed(ctx context.Context, img image.Image) ([]float32, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	var err error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.retryWait):
			}
		}
		var vec []float32
		vec, err = r.post(ctx, buf.Bytes())
		if err == nil {
			return vec, nil
		}
		if !errors.Is(err, errRetryable) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, err
}

func (r *Remote) post(ctx context.Context, jpg []byte) ([]float32, error) {
	var resp embeddingResponse
	httpResp, err := r.client.R().
		SetContext(ctx).
		SetFileReader("file", "image.jpg", bytes.NewReader(jpg)).
		SetResult(&resp).
		Post(r.baseURL + "/embed/image")
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding server: %w: %w", errRetryable, err)
	}
	if code := httpResp.StatusCode(); code != http.StatusOK {
		err := fmt.Errorf("embedding server error (status %d): %s", code, httpResp.String())
		if code >= http.StatusInternalServerError {
			err = fmt.Errorf("%w: %w", errRetryable, err)
		}
		return nil, err
	}

	if len(resp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	if len(resp.Embedding) != r.dim {
		return nil, fmt.Errorf("embedding server returned %d dimensions, want %d", len(resp.Embedding), r.dim)
	}
	return resp.Embedding, nil
}
