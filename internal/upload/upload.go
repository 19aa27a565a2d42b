package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Reason classifies upload failures for the completion gate.
type Reason string

const (
	AuthError         Reason = "auth_error"
	TransportError    Reason = "transport_error"
	ServerError       Reason = "server_error"
	MalformedResponse Reason = "malformed_response"
)

// Error is the typed failure of a single upload attempt.
type Error struct {
	Reason Reason
	Status int // HTTP status when one was received, 0 otherwise
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upload failed (%s, status %d): %v", e.Reason, e.Status, e.Err)
	}
	return fmt.Sprintf("upload failed (%s): %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNotConfigured means no endpoint or credential is set. The strict-mode
// gate turns this into a failed job; best-effort mode skips the attempt.
var ErrNotConfigured = errors.New("upload gateway not configured")

// Uploader publishes a result payload and returns the server-assigned
// artifact identifier. Exactly one network attempt per call.
type Uploader interface {
	Upload(ctx context.Context, payload []byte, name string) (string, error)
	Configured() bool
}

// Client posts files to {baseURL}/files with an X-API-Key header.
// The timeout is generous: payloads for large corpora run to minutes.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

const DefaultTimeout = 10 * time.Minute

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}
}

// Configured reports whether both endpoint and credential are present.
func (c *Client) Configured() bool {
	return c.baseURL != "" && c.apiKey != ""
}

// Upload performs the single POST {baseURL}/files call. The artifact ID comes
// from the response body's file_id field; the caller never synthesizes one.
func (c *Client) Upload(ctx context.Context, payload []byte, name string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {fmt.Sprintf(`form-data; name="file"; filename=%q`, name)},
		"Content-Type":        {"text/plain; charset=utf-8"},
	})
	if err != nil {
		return "", &Error{Reason: TransportError, Err: fmt.Errorf("build multipart body: %w", err)}
	}
	if _, err := part.Write(payload); err != nil {
		return "", &Error{Reason: TransportError, Err: fmt.Errorf("write multipart body: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return "", &Error{Reason: TransportError, Err: fmt.Errorf("close multipart body: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &body)
	if err != nil {
		return "", &Error{Reason: TransportError, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Reason: TransportError, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", &Error{Reason: AuthError, Status: resp.StatusCode, Err: errors.New("credential rejected")}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", &Error{Reason: ServerError, Status: resp.StatusCode, Err: errors.New("non-2xx status")}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &Error{Reason: MalformedResponse, Status: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	var parsed struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", &Error{Reason: MalformedResponse, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if strings.TrimSpace(parsed.FileID) == "" {
		return "", &Error{Reason: MalformedResponse, Status: resp.StatusCode, Err: errors.New("response missing file_id")}
	}
	return parsed.FileID, nil
}
