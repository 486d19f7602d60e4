package report

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/crypto/hkdf"

	"inputsentry/internal/verdict"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Inputsentry-Signature"

// SessionHeader identifies the session whose key signed the body.
const SessionHeader = "X-Inputsentry-Session"

// ErrRejected is returned when the collector answers with a non-2xx status.
var ErrRejected = errors.New("report: collector rejected payload")

// HTTPConfig configures an HTTPReporter.
type HTTPConfig struct {
	// Endpoint is the collector URL.
	Endpoint string

	// UserAgent and TargetApp are copied into every payload.
	UserAgent string
	TargetApp string

	// Secret enables body signing when non-empty.
	Secret []byte

	// Session scopes the derived signing key.
	Session string

	// Timeout is the client-level timeout; per-call deadlines come from ctx.
	Timeout time.Duration
}

// HTTPReporter posts verdict payloads as JSON.
type HTTPReporter struct {
	cfg     HTTPConfig
	client  *http.Client
	signKey []byte
}

// NewHTTPReporter creates a reporter for cfg. A nil client gets a default
// one with cfg.Timeout.
func NewHTTPReporter(cfg HTTPConfig, client *http.Client) (*HTTPReporter, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("report: endpoint is required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}

	r := &HTTPReporter{cfg: cfg, client: client}
	if len(cfg.Secret) > 0 {
		key, err := DeriveSigningKey(cfg.Secret, cfg.Session)
		if err != nil {
			return nil, err
		}
		r.signKey = key
	}
	return r, nil
}

// DeriveSigningKey derives a 32-byte per-session HMAC key from secret.
func DeriveSigningKey(secret []byte, session string) ([]byte, error) {
	kdf := hkdf.New(sha256.New, secret, []byte(session), []byte("inputsentry report signing v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}

// Sign returns the hex HMAC-SHA256 of body under key.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Report implements engine.Reporter.
func (r *HTTPReporter) Report(ctx context.Context, v verdict.Verdict) error {
	body, err := json.Marshal(NewPayload(v, r.cfg.UserAgent, r.cfg.TargetApp))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.signKey != nil {
		req.Header.Set(SignatureHeader, Sign(r.signKey, body))
		if r.cfg.Session != "" {
			req.Header.Set(SessionHeader, r.cfg.Session)
		}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post verdict: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	return nil
}
