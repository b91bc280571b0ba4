package predictor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestPredict_Success(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reimbursementClass":"Medium","confidence":0.8,"reimbursementAmount":750,"modelVersion":"v1"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", time.Second)
	resp, err := c.Predict(context.Background(), "client-1", "bulletin-1")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}

	if got.ClientID != "client-1" || got.MedicalBulletinID != "bulletin-1" {
		t.Errorf("unexpected request body %+v", got)
	}
	if resp.ReimbursementClass == nil || *resp.ReimbursementClass != "Medium" {
		t.Errorf("unexpected class %v", resp.ReimbursementClass)
	}
	if resp.ReimbursementAmount == nil || *resp.ReimbursementAmount != 750 {
		t.Errorf("unexpected amount %v", resp.ReimbursementAmount)
	}
	if resp.Confidence == nil || *resp.Confidence != 0.8 {
		t.Errorf("unexpected confidence %v", resp.Confidence)
	}
	if resp.ModelVersion == nil || *resp.ModelVersion != "v1" {
		t.Errorf("unexpected model version %v", resp.ModelVersion)
	}
}

func TestPredict_OptionalFieldsAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"reimbursementClass":"Low"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, time.Second).Predict(context.Background(), "c", "b")
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if resp.ReimbursementAmount != nil || resp.Confidence != nil || resp.ModelVersion != nil {
		t.Errorf("expected absent fields to stay nil, got %+v", resp)
	}
}

func TestPredict_NonSuccessStatusWithDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"bulletin features missing"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Predict(context.Background(), "c", "b")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", statusErr.StatusCode)
	}
	if statusErr.Detail != "bulletin features missing" {
		t.Errorf("unexpected detail %q", statusErr.Detail)
	}
}

func TestPredict_NonSuccessStatusWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Predict(context.Background(), "c", "b")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestPredict_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 50*time.Millisecond).Predict(context.Background(), "c", "b")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPredict_ContextDeadlineShortensCall(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewClient(srv.URL, 10*time.Second).Predict(ctx, "c", "b")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("expected ctx deadline to bound the call")
	}
}

func TestPredict_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("http://127.0.0.1:1", time.Second).Predict(ctx, "c", "b")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPredict_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, time.Second).Predict(context.Background(), "c", "b")
	if err == nil {
		t.Fatal("expected error for unreachable predictor")
	}
}

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"detail":"model not loaded"}`, "model not loaded"},
		{`{"detail":[{"loc":["body"],"msg":"field required"}]}`, `[{"loc":["body"],"msg":"field required"}]`},
		{`{"error":"x"}`, ""},
		{`not json`, ""},
		{``, ""},
	}
	for _, tt := range tests {
		if got := extractDetail([]byte(tt.body)); got != tt.want {
			t.Errorf("extractDetail(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
