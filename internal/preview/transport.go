// Package preview owns the live-preview peer connections, one per camera
// input, negotiated against the appliance's WHEP-style endpoints.
package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SignalTransport performs the one-shot offer/answer exchange for a
// single preview attempt. Retry policy belongs to the caller; a failed
// exchange is terminal for the attempt.
type SignalTransport interface {
	Exchange(ctx context.Context, inputID, offer string) (answer string, err error)
}

// WHEPTransport exchanges SDP over HTTPS against a per-input endpoint.
type WHEPTransport struct {
	urlTemplate string // %s is the input id
	http        *http.Client
}

// NewWHEPTransport creates a transport for the given URL template
// (e.g. "http://r58.local:8889/%s/whep").
func NewWHEPTransport(urlTemplate string, timeout time.Duration) *WHEPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WHEPTransport{
		urlTemplate: urlTemplate,
		http:        &http.Client{Timeout: timeout},
	}
}

// Exchange posts the local offer and returns the remote answer. Any
// non-2xx status or empty body fails the attempt.
func (t *WHEPTransport) Exchange(ctx context.Context, inputID, offer string) (string, error) {
	url := fmt.Sprintf(t.urlTemplate, inputID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(offer))
	if err != nil {
		return "", fmt.Errorf("create signaling request: %w", err)
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := t.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("signaling request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("signaling endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read answer: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return "", fmt.Errorf("signaling endpoint returned empty answer")
	}
	return string(body), nil
}
