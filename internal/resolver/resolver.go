package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"ratupdater/internal/failure"
)

// maxResponse bounds how much of a resolver response is read.
const maxResponse = 1 << 20

// Service looks up named resources against an ordered list of API endpoints.
type Service struct {
	Client    *http.Client
	Endpoints []string
}

// Resolve returns the "value" field of the first endpoint that answers
// successfully. A transport failure or non-2xx status moves on to the next
// endpoint; a successful answer without a string value is final.
func (s *Service) Resolve(ctx context.Context, name string) (string, error) {
	if len(s.Endpoints) == 0 {
		return "", failure.Errorf(failure.ResolutionFailed, "resolve "+name, "no endpoints configured")
	}
	var lastErr error
	for _, endpoint := range s.Endpoints {
		body, err := s.get(ctx, endpoint, name)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		value := gjson.GetBytes(body, "value")
		if !gjson.ValidBytes(body) || value.Type != gjson.String || value.Str == "" {
			return "", failure.Errorf(failure.ResolutionFailed, "resolve "+name, "invalid API response from %s", endpoint)
		}
		return value.Str, nil
	}
	return "", failure.New(failure.ResolutionFailed, "resolve "+name, lastErr)
}

func (s *Service) get(ctx context.Context, endpoint, name string) ([]byte, error) {
	target, err := url.JoinPath(endpoint, name)
	if err != nil {
		return nil, fmt.Errorf("endpoint %q: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	return body, nil
}
