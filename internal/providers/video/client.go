package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
)

const tracerName = "vidgen/internal/providers/video"

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("video: api key is required")
	// ErrRejected marks a task the provider refused; retrying the same
	// request will not help.
	ErrRejected = errors.New("video: task rejected")
)

// Options configures the HTTP provider client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
	// RatePerSecond caps outbound calls across all goroutines. Zero disables
	// the cap.
	RatePerSecond float64
	Burst         int
	Tracer        trace.Tracer
}

// Client talks to the asynchronous image-to-video task API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
	limiter    *rate.Limiter
	tracer     trace.Tracer
}

type createTaskRequest struct {
	Model       string    `json:"model"`
	CallBackURL string    `json:"callBackUrl,omitempty"`
	Input       taskInput `json:"input"`
}

type taskInput struct {
	Prompt      string `json:"prompt"`
	ImageURL    string `json:"image_url"`
	Duration    string `json:"duration"`
	Quality     string `json:"quality"`
	AspectRatio string `json:"aspect_ratio"`
	Watermark   string `json:"watermark,omitempty"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

type recordInfoData struct {
	TaskID     string `json:"taskId"`
	State      string `json:"state"`
	ResultJSON string `json:"resultJson"`
	FailMsg    string `json:"failMsg"`
	Progress   int    `json:"progress"`
}

type resultJSON struct {
	ResultURLs []string `json:"resultUrls"`
}

// NewClient constructs a client with defaults for unset options.
func NewClient(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		return nil, errors.New("video: base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("video: invalid base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "wan2.2-i2v"
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.Nop())
		logger = &l
	}
	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = int(opts.RatePerSecond) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
		limiter:    limiter,
		tracer:     tracer,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit creates a provider task. Transport failures and 5xx answers wrap
// domain.ErrProviderUnavailable; refusals wrap ErrRejected.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (_ *Submission, err error) {
	ctx, span := c.tracer.Start(ctx, "video.submit",
		trace.WithAttributes(
			attribute.String("vidgen.job.id", req.JobID),
			attribute.String("vidgen.provider.model", c.model),
		),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer func() { endSpan(span, err) }()

	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	payload := createTaskRequest{
		Model:       c.model,
		CallBackURL: req.CallbackURL,
		Input: taskInput{
			Prompt:      req.Params.Prompt,
			ImageURL:    req.ImageURL,
			Duration:    fmt.Sprintf("%d", req.Params.Duration),
			Quality:     req.Params.Quality,
			AspectRatio: req.Params.AspectRatio,
			Watermark:   req.Params.Watermark,
		},
	}
	var data createTaskData
	if err := c.call(ctx, http.MethodPost, "/api/v1/jobs/createTask", payload, &data); err != nil {
		return nil, err
	}
	taskID := strings.TrimSpace(data.TaskID)
	if taskID == "" {
		return nil, fmt.Errorf("%w: empty task id", domain.ErrProviderUnavailable)
	}
	span.SetAttributes(attribute.String("vidgen.provider.task_id", taskID))
	c.logger.Debug().Str("job_id", req.JobID).Str("task_id", taskID).Msg("video: task created")
	return &Submission{TaskID: taskID}, nil
}

// Task reads the provider's view of taskID.
func (c *Client) Task(ctx context.Context, taskID string) (_ *TaskStatus, err error) {
	ctx, span := c.tracer.Start(ctx, "video.task",
		trace.WithAttributes(attribute.String("vidgen.provider.task_id", taskID)),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer func() { endSpan(span, err) }()

	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	var data recordInfoData
	path := "/api/v1/jobs/recordInfo?taskId=" + url.QueryEscape(taskID)
	if err := c.call(ctx, http.MethodGet, path, nil, &data); err != nil {
		return nil, err
	}
	status := &TaskStatus{
		TaskID:       taskID,
		State:        ParseState(data.State),
		ErrorMessage: strings.TrimSpace(data.FailMsg),
		Progress:     domain.ClampProgress(data.Progress),
	}
	if raw := strings.TrimSpace(data.ResultJSON); raw != "" {
		var result resultJSON
		if err := json.Unmarshal([]byte(raw), &result); err != nil {
			return nil, fmt.Errorf("video: decode result json: %w", err)
		}
		status.ResultURLs = result.ResultURLs
	}
	return status, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate wait: %v", domain.ErrProviderUnavailable, err)
		}
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("video: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("video: build request: %w", err)
	}
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrProviderUnavailable, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d: %s", domain.ErrProviderUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrProviderUnavailable, err)
	}
	switch {
	case env.Code == http.StatusOK:
	case env.Code >= 500:
		return fmt.Errorf("%w: %s (%d)", domain.ErrProviderUnavailable, env.Msg, env.Code)
	default:
		return fmt.Errorf("%w: %s (%d)", ErrRejected, env.Msg, env.Code)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("video: decode data: %w", err)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

var _ Generator = (*Client)(nil)
