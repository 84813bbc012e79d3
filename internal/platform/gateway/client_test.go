package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"portal/internal/platform/config"
	"portal/internal/platform/metrics"
)

func newTestClient(url string) *Client {
	return NewClient(config.GatewayConfig{
		AdminURL:       url,
		RequestTimeout: 2 * time.Second,
		ProvenanceTag:  "portal",
	})
}

func TestGetConsumer_NotFoundIsNil(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not found"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	consumer, err := client.GetConsumer(context.Background(), "user_1")
	if err != nil {
		t.Errorf("Expected nil error for 404, got %v", err)
	}
	if consumer != nil {
		t.Errorf("Expected nil consumer for 404, got %+v", consumer)
	}
}

func TestGetOrCreateConsumer_CreatesOnMiss(t *testing.T) {
	var created CreateConsumerRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/consumers/user_1":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Not found"})
		case r.Method == http.MethodPost && r.URL.Path == "/consumers":
			json.NewDecoder(r.Body).Decode(&created)
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Consumer{ID: "c1", Username: created.Username, CustomID: created.CustomID, Tags: created.Tags})
		default:
			t.Errorf("Unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	consumer, err := client.GetOrCreateConsumer(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if consumer.ID != "c1" {
		t.Errorf("Expected consumer c1, got %s", consumer.ID)
	}
	if created.Username != "user_1" || created.CustomID != "user_1" {
		t.Errorf("Expected username and custom_id to equal the user id, got %+v", created)
	}
	if len(created.Tags) != 1 || created.Tags[0] != "portal" {
		t.Errorf("Expected provenance tag, got %v", created.Tags)
	}
}

func TestGetOrCreateConsumer_ConflictSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "Not found"})
			return
		}
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"message": "UNIQUE violation on username"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.GetOrCreateConsumer(context.Background(), "user_1")
	if !IsConflict(err) {
		t.Errorf("Expected conflict error, got %v", err)
	}
}

func TestListKeyAuth_UnknownConsumerIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "Not found"})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	creds, err := client.ListKeyAuth(context.Background(), "ghost")
	if err != nil {
		t.Errorf("Expected nil error for unknown consumer, got %v", err)
	}
	if len(creds) != 0 {
		t.Errorf("Expected empty list, got %d entries", len(creds))
	}
}

func TestCreateKeyAuth_ReturnsSecret(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/consumers/c1/key-auth" {
			t.Errorf("Unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(KeyAuth{
			ID:        "k1",
			Key:       "a1b2c3d4e5f6a7b8c9d0",
			Consumer:  Ref{ID: "c1"},
			CreatedAt: 1700000000,
		})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	cred, err := client.CreateKeyAuth(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cred.Key != "a1b2c3d4e5f6a7b8c9d0" {
		t.Errorf("Expected plaintext key in creation response, got %q", cred.Key)
	}
}

func TestConnectionErrorClassification(t *testing.T) {
	// Point at a closed server so the dial fails.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(url)

	before := testutil.ToFloat64(metrics.GatewayConnectionFailures)

	_, err := client.GetConsumer(context.Background(), "user_1")
	if !IsConnectionError(err) {
		t.Errorf("Expected connection error, got %v", err)
	}
	if StatusOf(err) != StatusConnectionFailed {
		t.Errorf("Expected status sentinel 0, got %d", StatusOf(err))
	}
	if after := testutil.ToFloat64(metrics.GatewayConnectionFailures); after != before+1 {
		t.Errorf("Expected connection failure counter to increment by 1, got %v -> %v", before, after)
	}

	if client.HealthCheck(context.Background()) {
		t.Error("Expected health check to fail against a closed server")
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	if !client.HealthCheck(context.Background()) {
		t.Error("Expected health check to pass")
	}
}
