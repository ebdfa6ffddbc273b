package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/autovolt/voice-agent/internal/types"
)

// ErrUnavailable means the executor could not be reached at all, even after
// retries. Distinct from a command the backend understood but refused,
// which comes back as a CommandResult with Success=false.
var ErrUnavailable = errors.New("command executor unreachable")

// Client executes parsed voice commands against the device backend.
type Client interface {
	Execute(ctx context.Context, command string) (types.CommandResult, error)
}

type HTTPClient struct {
	http       *http.Client
	base       string
	maxRetries int
	backoff    time.Duration
}

func NewClient(base string, timeout time.Duration, maxRetries int, backoff time.Duration) *HTTPClient {
	return &HTTPClient{
		http:       &http.Client{Timeout: timeout},
		base:       base,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Execute posts the command text to the backend. Transport failures and 5xx
// responses are retried with doubling backoff up to maxRetries; 4xx and
// well-formed responses are terminal.
func (c *HTTPClient) Execute(ctx context.Context, command string) (types.CommandResult, error) {
	body, _ := json.Marshal(map[string]string{"command": command})

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			metricRetries.Inc()
			d := c.backoff << (attempt - 1)
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return types.CommandResult{}, ctx.Err()
			}
		}

		result, retry, err := c.attempt(ctx, body)
		if err == nil {
			return result, nil
		}
		if !retry {
			return types.CommandResult{}, err
		}
		lastErr = err
		log.Printf("[executor] attempt %d failed: %v", attempt+1, err)
	}
	return types.CommandResult{}, fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

func (c *HTTPClient) attempt(ctx context.Context, body []byte) (types.CommandResult, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/voice/command", bytes.NewReader(body))
	if err != nil {
		return types.CommandResult{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return types.CommandResult{}, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode/100 == 2:
		var result types.CommandResult
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&result); err != nil {
			return types.CommandResult{}, false, fmt.Errorf("decode executor response: %w", err)
		}
		return result, false, nil
	case resp.StatusCode/100 == 5:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return types.CommandResult{}, true, fmt.Errorf("executor status=%d body=%s", resp.StatusCode, string(b))
	default:
		// 4xx: the backend rejected the command; not retryable.
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return types.CommandResult{Success: false, Message: rejectionMessage(b)}, false, nil
	}
}

func rejectionMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return "command was rejected"
}
