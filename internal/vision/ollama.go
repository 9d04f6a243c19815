package vision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog/log"
)

// OllamaRuntime runs the vision model on an Ollama server and keeps it resident.
type OllamaRuntime struct {
	client   *api.Client
	endpoint string
	model    string
	urlErr   error
}

// residentForever is sent as keep_alive so the server never evicts the model.
var residentForever = &api.Duration{Duration: -1}

func NewOllamaRuntime(endpoint, model string, client *http.Client) *OllamaRuntime {
	if client == nil {
		client = &http.Client{}
	}
	r := &OllamaRuntime{endpoint: strings.TrimRight(endpoint, "/"), model: model}
	base, err := url.Parse(r.endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		r.urlErr = fmt.Errorf("invalid vision endpoint %q", endpoint)
		return r
	}
	r.client = api.NewClient(base, client)
	return r
}

// Load asks the server to bring the model into memory with no expiry.
func (r *OllamaRuntime) Load(ctx context.Context) error {
	if r.model == "" {
		return errors.New("vision model not configured")
	}
	if r.urlErr != nil {
		return r.urlErr
	}
	start := time.Now()
	_, err := r.generate(ctx, &api.GenerateRequest{Model: r.model, KeepAlive: residentForever})
	if err != nil {
		return fmt.Errorf("load %s: %w", r.model, err)
	}
	log.Info().
		Str("endpoint", r.endpoint).
		Str("model", r.model).
		Dur("duration", time.Since(start)).
		Msg("vision model resident")
	return nil
}

// Generate runs one greedy decoding pass over prompt and image.
func (r *OllamaRuntime) Generate(ctx context.Context, req Request) (string, error) {
	if r.urlErr != nil {
		return "", r.urlErr
	}
	payload := &api.GenerateRequest{
		Model:     r.model,
		Prompt:    req.Prompt,
		Raw:       true,
		KeepAlive: residentForever,
		Options: map[string]any{
			"temperature": 0,
			"top_k":       1,
		},
	}
	if req.MaxTokens > 0 {
		payload.Options["num_predict"] = req.MaxTokens
	}
	if len(req.Image) > 0 {
		payload.Images = []api.ImageData{req.Image}
	}
	return r.generate(ctx, payload)
}

// generate issues a non-streaming request and returns the accumulated response.
func (r *OllamaRuntime) generate(ctx context.Context, req *api.GenerateRequest) (string, error) {
	stream := false
	req.Stream = &stream

	var sb strings.Builder
	err := r.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		if resp.Done && resp.DoneReason != "" {
			log.Debug().Str("model", resp.Model).Str("reason", resp.DoneReason).Msg("vision generation done")
		}
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("ollama status %d: %s", se.StatusCode, se.ErrorMessage)
		}
		return "", err
	}
	return sb.String(), nil
}
