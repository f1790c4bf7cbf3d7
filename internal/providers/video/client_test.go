package video

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"vidgen/internal/domain"
	"vidgen/internal/domain/jsoncfg"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, Model: "wan-test"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return client
}

func TestSubmitPayloadAndTaskID(t *testing.T) {
	var captured createTaskRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/jobs/createTask" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"code":200,"msg":"success","data":{"taskId":"abc123"}}`))
	})

	sub, err := client.Submit(context.Background(), SubmitRequest{
		JobID:       "job-1",
		ImageURL:    "https://img.example.com/cat.png",
		CallbackURL: "https://api.example.com/jobs/callback",
		Params: jsoncfg.PromptParams{
			Prompt: "a cat surfing", Duration: 5, Quality: "720p", AspectRatio: "16:9",
		},
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if sub.TaskID != "abc123" {
		t.Fatalf("TaskID = %q, want abc123", sub.TaskID)
	}
	if captured.Model != "wan-test" || captured.CallBackURL != "https://api.example.com/jobs/callback" {
		t.Fatalf("unexpected payload: %+v", captured)
	}
	if captured.Input.ImageURL != "https://img.example.com/cat.png" || captured.Input.Duration != "5" {
		t.Fatalf("unexpected input: %+v", captured.Input)
	}
}

func TestSubmitErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"server error", http.StatusBadGateway, `bad gateway`, domain.ErrProviderUnavailable},
		{"client error", http.StatusBadRequest, `{"code":400,"msg":"bad image"}`, ErrRejected},
		{"envelope rejection", http.StatusOK, `{"code":422,"msg":"image too small"}`, ErrRejected},
		{"envelope outage", http.StatusOK, `{"code":501,"msg":"overloaded"}`, domain.ErrProviderUnavailable},
		{"empty task id", http.StatusOK, `{"code":200,"data":{}}`, domain.ErrProviderUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := client.Submit(context.Background(), SubmitRequest{JobID: "j"})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSubmitWithoutKey(t *testing.T) {
	client, err := NewClient(Options{BaseURL: "https://provider.example.com"})
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	if _, err := client.Submit(context.Background(), SubmitRequest{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestTaskParsesResultJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("taskId") != "abc123" {
			t.Errorf("taskId query = %q", r.URL.Query().Get("taskId"))
		}
		_, _ = w.Write([]byte(`{"code":200,"data":{"taskId":"abc123","state":"success","resultJson":"{\"resultUrls\":[\"https://cdn.example.com/v.mp4\"]}"}}`))
	})

	status, err := client.Task(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("Task error: %v", err)
	}
	if status.State != StateSuccess {
		t.Fatalf("State = %q, want success", status.State)
	}
	if len(status.ResultURLs) != 1 || status.ResultURLs[0] != "https://cdn.example.com/v.mp4" {
		t.Fatalf("ResultURLs = %v", status.ResultURLs)
	}
}

func TestParseState(t *testing.T) {
	tests := map[string]TaskState{
		"success":    StateSuccess,
		"FAIL":       StateFail,
		"failed":     StateFail,
		"error":      StateFail,
		"waiting":    StateWaiting,
		"queuing":    StateWaiting,
		"generating": StateGenerating,
		"processing": StateGenerating,
		"mystery":    StateUnknown,
	}
	for raw, want := range tests {
		if got := ParseState(raw); got != want {
			t.Fatalf("ParseState(%q) = %q, want %q", raw, got, want)
		}
	}
}
