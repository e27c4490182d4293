// Package processor is the client of the remote watermark processing service.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdf_unmark/actions"
)

const (
	DefaultTimeout = 2 * time.Minute

	applyPath        = "/apply-multipart"
	analyzePath      = "/analyze"
	clearSessionPath = "/clear-session"

	// maxErrorBody bounds how much of a failed response is read for the message
	maxErrorBody = 64 << 10
)

// File is the document sent to the service.
type File struct {
	Name     string
	MIMEType string
	Data     []byte
}

// ServiceError is a failed call to the processing service. Status is zero
// when no response was received.
type ServiceError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("processing service %s failed (%d): %s", e.Op, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("processing service %s failed: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("processing service %s failed: %s", e.Op, e.Message)
	}
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Candidate is a watermark guess returned by Analyze.
type Candidate struct {
	Page       int        `json:"page"`
	BBox       [4]float64 `json:"bbox"`
	Kind       string     `json:"kind"`
	Angle      *float64   `json:"angle,omitempty"`
	Alpha      *float64   `json:"alpha,omitempty"`
	Confidence float64    `json:"confidence"`
	Signature  string     `json:"signature"`
}

type AnalyzeResponse struct {
	Pages      int         `json:"pages"`
	Candidates []Candidate `json:"candidates"`
	Message    string      `json:"message,omitempty"`
}

// Client talks to the processing service over HTTP. Calls are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. to share a transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the processing service at baseURL. Each call
// is bounded by timeout.
func NewClient(baseURL string, timeout time.Duration, logger zerolog.Logger, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "processor").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply uploads file with the compiled actions and returns the cleaned file bytes.
func (c *Client) Apply(ctx context.Context, file File, acts []actions.Action, reOCR bool) ([]byte, error) {
	actionsJSON, err := actions.Marshal(acts)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeForm(&file, map[string]string{
		"actions": string(actionsJSON),
		"re_ocr":  strconv.FormatBool(reOCR),
	})
	if err != nil {
		return nil, &ServiceError{Op: "apply", Err: err}
	}

	start := time.Now()
	data, err := c.post(ctx, "apply", applyPath, body, contentType)
	if err != nil {
		return nil, err
	}
	c.logger.Info().
		Str("file", file.Name).
		Int("actions", len(acts)).
		Bool("re_ocr", reOCR).
		Int("bytes", len(data)).
		Dur("took", time.Since(start)).
		Msg("document processed")
	return data, nil
}

// Analyze asks the service for watermark candidates.
func (c *Client) Analyze(ctx context.Context, file File) (*AnalyzeResponse, error) {
	body, contentType, err := encodeForm(&file, nil)
	if err != nil {
		return nil, &ServiceError{Op: "analyze", Err: err}
	}
	data, err := c.post(ctx, "analyze", analyzePath, body, contentType)
	if err != nil {
		return nil, err
	}
	var resp AnalyzeResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &ServiceError{Op: "analyze", Message: "invalid response", Err: err}
	}
	return &resp, nil
}

// ClearSession asks the service to drop anything it cached for this client.
func (c *Client) ClearSession(ctx context.Context) error {
	_, err := c.post(ctx, "clear-session", clearSessionPath, nil, "")
	return err
}

func (c *Client) post(ctx context.Context, op, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, &ServiceError{Op: op, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Msg("processing service unreachable")
		return nil, &ServiceError{Op: op, Message: "no response from processing service", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		serr := &ServiceError{Op: op, Status: resp.StatusCode, Message: errorMessage(raw)}
		c.logger.Warn().Int("status", resp.StatusCode).Str("op", op).Str("message", serr.Message).Msg("processing service returned error")
		return nil, serr
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ServiceError{Op: op, Message: "failed to read response", Err: err}
	}
	return data, nil
}

// errorMessage extracts "detail" or "error" from a JSON error payload.
func errorMessage(raw []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		var detail string
		if len(payload.Detail) > 0 && json.Unmarshal(payload.Detail, &detail) == nil && detail != "" {
			return detail
		}
		if len(payload.Detail) > 0 && string(payload.Detail) != "null" {
			return string(payload.Detail)
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return "server error"
}

func encodeForm(file *File, fields map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, file.Name))
		mimeType := file.MIMEType
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		h.Set("Content-Type", mimeType)
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	// deterministic field order
	for _, key := range []string{"actions", "re_ocr"} {
		if v, ok := fields[key]; ok {
			if err := w.WriteField(key, v); err != nil {
				return nil, "", err
			}
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
