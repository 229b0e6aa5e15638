package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/learnsync/pkg/models"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	logger, _ := test.NewNullLogger()
	c, err := NewClient(srv.URL+"/api", "secret", 5*time.Second, logger)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func writeEnvelope(w http.ResponseWriter, status int, env any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func TestListExercisesSendsFiltersAndToken(t *testing.T) {
	competence := int64(7)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/exercises" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("competenceId"); got != "7" {
			t.Errorf("competenceId = %q", got)
		}
		if got := r.URL.Query().Get("level"); got != "CE1" {
			t.Errorf("level = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		writeEnvelope(w, http.StatusOK, models.Envelope[[]models.Exercise]{
			Success: true,
			Data:    []models.Exercise{{ID: 1, Title: "Addition"}, {ID: 2, Title: "Soustraction"}},
		})
	})

	exercises, err := c.ListExercises(context.Background(), models.ExerciseFilters{
		StudentID:    3,
		CompetenceID: &competence,
		Level:        "CE1",
	})
	if err != nil {
		t.Fatalf("ListExercises: %v", err)
	}
	if len(exercises) != 2 || exercises[1].Title != "Soustraction" {
		t.Fatalf("unexpected exercises: %+v", exercises)
	}
}

func TestEnvelopeErrorIsReturned(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusBadRequest, models.Envelope[any]{
			Error: &models.APIError{Code: "VALIDATION", Message: "bad score"},
		})
	})

	_, err := c.SubmitAttempt(context.Background(), models.AttemptPayload{ExerciseID: 1})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "VALIDATION" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
	if IsTransient(err) {
		t.Fatal("4xx must not be transient")
	}
}

func TestServerErrorIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := c.ListCompetences(context.Background(), models.CompetenceFilters{})
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	logger, _ := test.NewNullLogger()
	c, err := NewClient(url, "", time.Second, logger)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.ListRecommended(context.Background(), 1)
	if !errors.Is(err, models.ErrNetworkUnavailable) {
		t.Fatalf("expected ErrNetworkUnavailable, got %v", err)
	}
	if !IsTransient(err) {
		t.Fatal("network failure must be transient")
	}
}

func TestDeliverReplaysRequest(t *testing.T) {
	var gotKey, gotHeader, gotMethod string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.Header.Get("Idempotency-Key")
		gotHeader = r.Header.Get("X-Client")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	})

	status, err := c.Deliver(context.Background(), models.QueuedRequest{
		Endpoint:       EndpointAttempt,
		Method:         http.MethodPost,
		Body:           json.RawMessage(`{"exerciseId":4}`),
		Headers:        map[string]string{"X-Client": "tablet"},
		IdempotencyKey: "abc",
	})
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("status = %d", status)
	}
	if gotMethod != http.MethodPost || gotKey != "abc" || gotHeader != "tablet" {
		t.Fatalf("unexpected request: method=%s key=%s header=%s", gotMethod, gotKey, gotHeader)
	}
	if gotBody["exerciseId"] != float64(4) {
		t.Fatalf("unexpected body: %v", gotBody)
	}
}

func TestCookiesAreKept(t *testing.T) {
	var sawCookie bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err == nil {
			sawCookie = true
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
		writeEnvelope(w, http.StatusOK, models.Envelope[[]models.ProgressRecord]{Success: true})
	})

	for i := 0; i < 2; i++ {
		if _, err := c.ListProgress(context.Background(), models.ProgressFilters{StudentID: 1}); err != nil {
			t.Fatalf("ListProgress: %v", err)
		}
	}
	if !sawCookie {
		t.Fatal("session cookie was not sent back")
	}
}
