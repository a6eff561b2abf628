package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// fastConfig returns a config with negligible backoff for tests.
func fastConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		UserAgent:      "harvester-test/1.0",
		Timeout:        5 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("Expected error for missing endpoint")
	}

	client, err := New(Config{Endpoint: "http://example.test/graphql"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.config.MaxAttempts != 10 {
		t.Errorf("MaxAttempts default = %d, want 10", client.config.MaxAttempts)
	}
	if client.config.InitialBackoff != 2*time.Second {
		t.Errorf("InitialBackoff default = %v, want 2s", client.config.InitialBackoff)
	}
	if client.config.Timeout != 180*time.Second {
		t.Errorf("Timeout default = %v, want 180s", client.config.Timeout)
	}
}

func TestExecute_Success(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"countFilteredLicenses":{"total":42}}}`))
	}))
	defer server.Close()

	client, err := New(fastConfig(server.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := client.Execute(context.Background(),
		"query CountFilteredLicenses($input: filterLicensesInput!) { countFilteredLicenses(input: $input) { total } }",
		map[string]any{"input": map[string]any{"page": "1"}})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.HasErrors() {
		t.Errorf("HasErrors() = true, want false")
	}
	if string(resp.Data) == "" {
		t.Error("Expected data payload")
	}

	// Wire shape: {query, variables}.
	if _, ok := gotBody["query"]; !ok {
		t.Error("Request body missing query field")
	}
	if _, ok := gotBody["variables"]; !ok {
		t.Error("Request body missing variables field")
	}
}

func TestExecute_RetriesTransportErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client, _ := New(fastConfig(server.URL))
	resp, err := client.Execute(context.Background(), "query Ping { ping }", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp == nil {
		t.Fatal("Expected response after retries")
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Server calls = %d, want 3", got)
	}
}

func TestExecute_ExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := New(fastConfig(server.URL))
	_, err := client.Execute(context.Background(), "query Ping { ping }", nil)
	if err == nil {
		t.Fatal("Expected error after exhausting retries")
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("errors.Is(err, ErrRetryExhausted) = false, err = %v", err)
	}

	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("Expected *QueryError, got %T", err)
	}
	if qerr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", qerr.Attempts)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("Server calls = %d, want 3 (attempt ceiling)", got)
	}
}

func TestExecute_GraphQLErrorsReturnedAsData(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"errors":[{"message":"Variable input got invalid value"}]}`))
	}))
	defer server.Close()

	client, _ := New(fastConfig(server.URL))
	resp, err := client.Execute(context.Background(), "query Bad { bad }", nil)
	if err != nil {
		t.Fatalf("Execute() error = %v, application errors must not fail", err)
	}
	if !resp.HasErrors() {
		t.Fatal("HasErrors() = false, want true")
	}
	if resp.ErrorMessages() != "Variable input got invalid value" {
		t.Errorf("ErrorMessages() = %q", resp.ErrorMessages())
	}
	// Application-level errors are never retried.
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("Server calls = %d, want 1", got)
	}
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig(server.URL)
	cfg.InitialBackoff = 5 * time.Second
	client, _ := New(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := client.Execute(ctx, "query Ping { ping }", nil)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
}

func TestOperationName(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"named_with_vars", "query CountFilteredLicenses($input: filterLicensesInput!) { countFilteredLicenses(input: $input) { total } }", "CountFilteredLicenses"},
		{"named_plain", "query GetProvinces { provinceTownship { provinces { id name } } }", "GetProvinces"},
		{"named_no_space", "query FilterLicenses($input: filterLicensesInput!){ filterLicenses(input: $input){ license { request_number } } }", "FilterLicenses"},
		{"anonymous", "{ provinceTownship { provinces { id } } }", "anonymous"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OperationName(tt.query); got != tt.want {
				t.Errorf("OperationName() = %q, want %q", got, tt.want)
			}
		})
	}
}
