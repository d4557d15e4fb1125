package procd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	gojson "github.com/goccy/go-json"
	"github.com/gojek/heimdall/v7"
	"github.com/gojek/heimdall/v7/httpclient"

	"github.com/multios/introspect/internal/errorutil"
	"github.com/multios/introspect/internal/memory"
	"github.com/multios/introspect/internal/trace"
)

const (
	httpTimeout     = 30 * time.Second
	retryCount      = 2
	backoffInterval = 250 * time.Millisecond
	backoffJitter   = 50 * time.Millisecond
)

type (
	// Client talks to the process introspection daemon over HTTP. It is the
	// production capture source and memory inspector: sessions pull syscall
	// events from the daemon's long-poll stream endpoints and snapshots
	// enumerate memory views through its region endpoints.
	Client struct {
		http *httpclient.Client
		url  string
	}

	attachResponse struct {
		StreamID string `json:"stream_id"`
	}

	regionsResponse struct {
		Regions []wireRegion `json:"regions"`
	}

	ErrorResponse struct {
		Error Error `json:"error"`
	}

	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

func NewClient(host string) (Client, error) {
	if host == "" {
		return Client{}, errors.New("host must be set")
	}
	return Client{
		url: host,
		http: httpclient.NewClient(
			httpclient.WithHTTPTimeout(httpTimeout),
			httpclient.WithRetryCount(retryCount),
			httpclient.WithRetrier(heimdall.NewRetrier(heimdall.NewConstantBackoff(backoffInterval, backoffJitter))),
		),
	}, nil
}

func (c Client) URL() string {
	return c.url
}

// Attach asks the daemon to start tracing the process and returns the stream
// its syscall events arrive on. The context only bounds the attach call
// itself, not the stream.
func (c Client) Attach(ctx context.Context, processID uint64) (trace.Stream, error) {
	if processID == 0 {
		return nil, fmt.Errorf("%w: process id must be positive", errorutil.ErrInvalidArgument)
	}

	s := sentry.StartSpan(ctx, "procd.attach")
	s.Description = fmt.Sprintf("Attach to process %d", processID)
	defer s.Finish()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/processes/%d/trace", c.url, processID), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("sentry-trace", s.ToSentryTrace())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: attach to process %d: %v", errorutil.ErrCaptureUnavailable, processID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	var ar attachResponse
	if err := gojson.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return nil, fmt.Errorf("procd: decode attach response: %w", err)
	}
	if ar.StreamID == "" {
		return nil, errors.New("procd: attach response carries no stream id")
	}
	return &stream{client: c, id: ar.StreamID}, nil
}

// Regions enumerates one memory view of the process. Region and snapshot IDs
// are assigned by the caller, not the daemon.
func (c Client) Regions(ctx context.Context, processID uint64, view memory.View) ([]memory.Region, error) {
	if processID == 0 {
		return nil, fmt.Errorf("%w: process id must be positive", errorutil.ErrInvalidArgument)
	}
	if !memory.ValidView(view) {
		return nil, fmt.Errorf("%w: unknown memory view %q", errorutil.ErrInvalidArgument, view)
	}

	s := sentry.StartSpan(ctx, "procd.regions")
	s.Description = fmt.Sprintf("Enumerate %s regions of process %d", view, processID)
	defer s.Finish()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/processes/%d/memory/%s", c.url, processID, view), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("sentry-trace", s.ToSentryTrace())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: enumerate %s regions of process %d: %v", errorutil.ErrCaptureUnavailable, view, processID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp)
	}

	d := s.StartChild("json.unmarshal")
	d.Description = "Decode region list"
	defer d.Finish()

	var rr regionsResponse
	if err := gojson.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return nil, fmt.Errorf("procd: decode region list: %w", err)
	}
	regions := make([]memory.Region, 0, len(rr.Regions))
	for _, w := range rr.Regions {
		regions = append(regions, w.region())
	}
	return regions, nil
}

// responseError maps a daemon error response onto the service error
// taxonomy. The daemon's error code decides; the HTTP status is only a
// fallback for responses without a decodable body.
func responseError(resp *http.Response) error {
	var er ErrorResponse
	_ = gojson.NewDecoder(resp.Body).Decode(&er)
	msg := er.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	var base error
	switch er.Error.Code {
	case "invalid_argument":
		base = errorutil.ErrInvalidArgument
	case "no_such_process", "no_such_stream":
		base = errorutil.ErrNotFound
	case "permission_denied", "capture_unavailable":
		base = errorutil.ErrCaptureUnavailable
	default:
		switch resp.StatusCode {
		case http.StatusBadRequest:
			base = errorutil.ErrInvalidArgument
		case http.StatusNotFound:
			base = errorutil.ErrNotFound
		case http.StatusForbidden, http.StatusServiceUnavailable:
			base = errorutil.ErrCaptureUnavailable
		}
	}
	if base == nil {
		return fmt.Errorf("procd: http status %d: %s", resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: procd: %s", base, msg)
}
