package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/example/learnsync/pkg/models"
	"github.com/sirupsen/logrus"
)

// Endpoints consumed from the backend
const (
	EndpointExercises   = "/exercises"
	EndpointRecommended = "/exercises/recommended"
	EndpointSchedule    = "/spaced-repetition/schedule"
	EndpointAttempt     = "/exercises/attempt"
	EndpointCompetences = "/competences"
	EndpointProgress    = "/progress"
)

// Error is a response the backend answered but did not accept
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying later may succeed
func (e *Error) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// IsTransient reports whether err means the backend could not be reached or
// could not process the request right now.
func IsTransient(err error) bool {
	if errors.Is(err, models.ErrNetworkUnavailable) {
		return true
	}
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Temporary()
}

// Client talks JSON over HTTP to the learning backend
type Client struct {
	baseURL *url.URL
	http    *http.Client
	token   string
	logger  logrus.FieldLogger
}

// NewClient creates a client for baseURL. Cookies set by the backend are kept
// and sent back, and token, when set, is sent as a bearer credential.
func NewClient(baseURL, token string, timeout time.Duration, logger logrus.FieldLogger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout, Jar: jar},
		token:   token,
		logger:  logger,
	}, nil
}

// ListExercises returns exercises matching filters
func (c *Client) ListExercises(ctx context.Context, filters models.ExerciseFilters) ([]models.Exercise, error) {
	q := url.Values{}
	if filters.StudentID != 0 {
		q.Set("studentId", strconv.FormatInt(filters.StudentID, 10))
	}
	if filters.CompetenceID != nil {
		q.Set("competenceId", strconv.FormatInt(*filters.CompetenceID, 10))
	}
	if filters.Level != "" {
		q.Set("level", filters.Level)
	}
	if filters.Subject != "" {
		q.Set("subject", filters.Subject)
	}
	if filters.Limit > 0 {
		q.Set("limit", strconv.Itoa(filters.Limit))
	}
	var exercises []models.Exercise
	err := c.call(ctx, http.MethodGet, EndpointExercises, q, nil, &exercises)
	return exercises, err
}

// ListRecommended returns the exercises the backend recommends for the student
func (c *Client) ListRecommended(ctx context.Context, studentID int64) ([]models.Exercise, error) {
	q := url.Values{"studentId": {strconv.FormatInt(studentID, 10)}}
	var exercises []models.Exercise
	err := c.call(ctx, http.MethodGet, EndpointRecommended, q, nil, &exercises)
	return exercises, err
}

// ListSchedule returns the student's spaced repetition schedule
func (c *Client) ListSchedule(ctx context.Context, studentID int64) ([]models.ScheduleEntry, error) {
	q := url.Values{"studentId": {strconv.FormatInt(studentID, 10)}}
	var schedule []models.ScheduleEntry
	err := c.call(ctx, http.MethodGet, EndpointSchedule, q, nil, &schedule)
	return schedule, err
}

// SubmitAttempt posts an exercise attempt
func (c *Client) SubmitAttempt(ctx context.Context, payload models.AttemptPayload) (*models.SubmissionResult, error) {
	var result models.SubmissionResult
	if err := c.call(ctx, http.MethodPost, EndpointAttempt, nil, payload, &result); err != nil {
		return nil, err
	}
	result.Success = true
	return &result, nil
}

// ListCompetences returns competences matching filters
func (c *Client) ListCompetences(ctx context.Context, filters models.CompetenceFilters) ([]models.Competence, error) {
	q := url.Values{}
	if filters.Subject != "" {
		q.Set("subject", filters.Subject)
	}
	if filters.Level != "" {
		q.Set("level", filters.Level)
	}
	var competences []models.Competence
	err := c.call(ctx, http.MethodGet, EndpointCompetences, q, nil, &competences)
	return competences, err
}

// ListProgress returns progress records matching filters
func (c *Client) ListProgress(ctx context.Context, filters models.ProgressFilters) ([]models.ProgressRecord, error) {
	q := url.Values{}
	if filters.StudentID != 0 {
		q.Set("studentId", strconv.FormatInt(filters.StudentID, 10))
	}
	if filters.CompetenceID != nil {
		q.Set("competenceId", strconv.FormatInt(*filters.CompetenceID, 10))
	}
	var records []models.ProgressRecord
	err := c.call(ctx, http.MethodGet, EndpointProgress, q, nil, &records)
	return records, err
}

// Deliver replays a queued request as-is and returns the status code. Transport
// failures are wrapped in models.ErrNetworkUnavailable.
func (c *Client) Deliver(ctx context.Context, req models.QueuedRequest) (int, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := c.newRequest(ctx, req.Method, req.Endpoint, nil, body)
	if err != nil {
		return 0, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", models.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + endpoint
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// call performs a request and unwraps the response envelope into out
func (c *Client) call(ctx context.Context, method, endpoint string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := c.newRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithFields(logrus.Fields{"method": method, "endpoint": endpoint}).WithError(err).Debug("backend unreachable")
		return fmt.Errorf("%w: %w", models.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.WithFields(logrus.Fields{
		"method":   method,
		"endpoint": endpoint,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("backend request completed")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %w", models.ErrNetworkUnavailable, err)
	}

	var envelope models.Envelope[json.RawMessage]
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decode response from %s: %w", endpoint, err)
		}
	}

	if resp.StatusCode >= 300 || !envelope.Success {
		apiErr := &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if envelope.Error != nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}

	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("decode %s payload: %w", endpoint, err)
	}
	return nil
}
