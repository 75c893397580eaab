package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// maxBodySize caps how much of a provider response is read.
const maxBodySize = 8 << 20

// HTTPDoer is the transport used by provider clients. Both *http.Client and
// *resilience.Client satisfy it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Response is a fully read provider response.
type Response struct {
	StatusCode int
	Body       []byte
}

// Get issues a GET request bounded by timeout and reads the whole body.
// Any failure before a status line arrives is reported as Transport.
func Get(ctx context.Context, doer HTTPDoer, providerName, rawURL string, timeout time.Duration) (*Response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, Wrap(providerName, BadRequest, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := doer.Do(req)
	if err != nil {
		return nil, Wrap(providerName, Transport, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, Wrap(providerName, Transport, fmt.Errorf("read response: %w", err))
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// StatusError maps a non-2xx HTTP status to an *Error. message is the provider's
// own explanation when one could be extracted from the body.
func StatusError(providerName string, status int, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("unexpected status code: %d", status)
	}
	switch {
	case status == http.StatusUnauthorized:
		return Errorf(providerName, Unauthorized, "%s", message)
	case status >= 400 && status < 500:
		return Errorf(providerName, BadRequest, "%s", message)
	default:
		return Errorf(providerName, ProviderRejected, "%s", message)
	}
}

// Decode unmarshals a provider body, reporting failures as UnexpectedShape.
func Decode(providerName string, body []byte, out any) error {
	if err := json.Unmarshal(body, out); err != nil {
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return Errorf(providerName, UnexpectedShape, "response is not valid JSON: %v", err)
		}
		return Wrap(providerName, UnexpectedShape, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
