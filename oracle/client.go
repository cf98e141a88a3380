// Package oracle calls the external image detector that decides whether a
// photo shows the reported issue.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type Alternative struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Verdict is the detector's decision. Accepted=false is a decision, not an error.
type Verdict struct {
	Accepted       bool          `json:"accepted"`
	Confidence     float64       `json:"confidence"`
	Label          string        `json:"label"`
	Alternatives   []Alternative `json:"alternatives,omitempty"`
	Count          int           `json:"count"`
	AnnotatedImage string        `json:"annotated_image,omitempty"`
	Model          string        `json:"model,omitempty"`
	VerifiedAt     time.Time     `json:"verified_at"`
}

// Error is a transport-level failure: non-200, timeout or undecodable body.
// It is transient and may be retried.
type Error struct {
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("detection service error (%d): %s", e.Status, e.Body)
	case e.Err != nil:
		return "detection service error: " + e.Err.Error()
	}
	return "detection service error"
}

func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the failure was the request deadline.
func (e *Error) Timeout() bool { return errors.Is(e.Err, context.DeadlineExceeded) }

type Config struct {
	URL           string
	Timeout       time.Duration
	RPS           float64
	ConfThreshold float64
	Model         string
}

// Client is a single-attempt detector client; retries belong to the caller.
type Client struct {
	url       string
	timeout   time.Duration
	threshold float64
	model     string
	http      *http.Client
	limiter   *rate.Limiter
	now       func() time.Time
}

func NewClient(cfg Config, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{}
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RPS), int(cfg.RPS)+1)
	}
	if cfg.Model == "" {
		cfg.Model = "yolov8-pothole"
	}
	return &Client{
		url:       cfg.URL,
		timeout:   cfg.Timeout,
		threshold: cfg.ConfThreshold,
		model:     cfg.Model,
		http:      hc,
		limiter:   lim,
		now:       time.Now,
	}
}

type detectRequest struct {
	ImageURL      string   `json:"image_url"`
	ConfThreshold *float64 `json:"conf_threshold,omitempty"`
}

type detectResponse struct {
	Detected       bool          `json:"detected"`
	NumPotholes    int           `json:"num_potholes"`
	MeanConfidence float64       `json:"mean_confidence"`
	Confidence     *float64      `json:"confidence"`
	AnnotatedImage string        `json:"annotated_image"`
	Label          string        `json:"label"`
	Alternatives   []Alternative `json:"alternatives"`
}

// Verify asks the detector whether imageURL shows label.
func (c *Client) Verify(ctx context.Context, imageURL, label string) (Verdict, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Verdict{}, &Error{Err: err}
	}

	in := detectRequest{ImageURL: imageURL}
	if c.threshold > 0 {
		in.ConfThreshold = &c.threshold
	}
	body, err := json.Marshal(in)
	if err != nil {
		return Verdict{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Verdict{}, &Error{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Verdict{}, &Error{Status: resp.StatusCode, Body: string(bytes.TrimSpace(text))}
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Verdict{}, &Error{Err: fmt.Errorf("decode response: %w", err)}
	}

	v := Verdict{
		Accepted:       out.Detected,
		Confidence:     out.MeanConfidence,
		Label:          label,
		Alternatives:   out.Alternatives,
		Count:          out.NumPotholes,
		AnnotatedImage: out.AnnotatedImage,
		Model:          c.model,
		VerifiedAt:     c.now().UTC(),
	}
	if out.Confidence != nil {
		v.Confidence = *out.Confidence
	}
	if out.Label != "" {
		v.Label = out.Label
	}
	return v, nil
}
