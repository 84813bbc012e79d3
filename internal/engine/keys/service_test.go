package keys

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"portal/internal/platform/audit"
	"portal/internal/platform/config"
	"portal/internal/platform/gateway"
	"portal/internal/platform/repositories"
)

// fakeGateway is an in-memory Kong admin API good enough for the service's
// consumer and key-auth flows.
type fakeGateway struct {
	mux           *http.ServeMux
	consumers     map[string]*gateway.Consumer // by username
	creds         map[string][]gateway.KeyAuth // by consumer id
	healthy       bool
	consumerPosts int
	nextKey       string
}

func newFakeGateway() *fakeGateway {
	f := &fakeGateway{
		consumers: make(map[string]*gateway.Consumer),
		creds:     make(map[string][]gateway.KeyAuth),
		healthy:   true,
		nextKey:   "a1b2c3d4e5f6a7b8c9d0e1f2",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", f.handle)
	f.mux = mux
	return f
}

func (f *fakeGateway) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		if !f.healthy {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "consumers":
		f.consumerPosts++
		var req gateway.CreateConsumerRequest
		json.NewDecoder(r.Body).Decode(&req)
		if _, exists := f.consumers[req.Username]; exists {
			writeJSON(w, http.StatusConflict, map[string]string{"message": "UNIQUE violation"})
			return
		}
		c := &gateway.Consumer{ID: "c_" + req.Username, Username: req.Username, CustomID: req.CustomID, Tags: req.Tags}
		f.consumers[req.Username] = c
		writeJSON(w, http.StatusCreated, c)

	case r.Method == http.MethodGet && len(parts) == 2 && parts[0] == "consumers":
		if c, ok := f.consumers[parts[1]]; ok {
			writeJSON(w, http.StatusOK, c)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})

	case len(parts) == 3 && parts[0] == "consumers" && parts[2] == "key-auth":
		consumerID := parts[1]
		switch r.Method {
		case http.MethodPost:
			cred := gateway.KeyAuth{
				ID:        fmt.Sprintf("k_%d", len(f.creds[consumerID])+1),
				Key:       f.nextKey,
				Consumer:  gateway.Ref{ID: consumerID},
				CreatedAt: time.Now().Unix(),
			}
			f.creds[consumerID] = append(f.creds[consumerID], cred)
			writeJSON(w, http.StatusCreated, cred)
		case http.MethodGet:
			// Listings omit the plaintext secret, like the real gateway.
			out := make([]gateway.KeyAuth, 0, len(f.creds[consumerID]))
			for _, c := range f.creds[consumerID] {
				c.Key = ""
				out = append(out, c)
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": out})
		}

	case r.Method == http.MethodDelete && len(parts) == 4 && parts[0] == "consumers" && parts[2] == "key-auth":
		consumerID, keyID := parts[1], parts[3]
		for i, c := range f.creds[consumerID] {
			if c.ID == keyID {
				f.creds[consumerID] = append(f.creds[consumerID][:i], f.creds[consumerID][i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})

	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not found"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func setupMetadataDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}

	query := `
	CREATE TABLE api_key_metadata (
		credential_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		organization_id TEXT NOT NULL,
		name TEXT NOT NULL,
		key_prefix TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE TABLE audit_logs (
		id TEXT PRIMARY KEY,
		organization_id TEXT,
		user_id TEXT,
		action TEXT,
		resource_type TEXT,
		resource_id TEXT,
		metadata TEXT,
		ip_address TEXT,
		user_agent TEXT,
		created_at INTEGER
	);
	`
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("Failed to create tables: %v", err)
	}
	return db
}

func setupService(t *testing.T) (*Service, *fakeGateway, *sql.DB, func()) {
	fake := newFakeGateway()
	server := httptest.NewServer(fake.mux)

	db := setupMetadataDB(t)

	client := gateway.NewClient(config.GatewayConfig{
		AdminURL:       server.URL,
		RequestTimeout: 2 * time.Second,
		ProvenanceTag:  "portal",
	})
	repo := repositories.NewAPIKeyRepository(db)
	svc := NewService(client, repo, audit.NewLogger(db), 8)

	cleanup := func() {
		server.Close()
		db.Close()
	}
	return svc, fake, db, cleanup
}

func TestList_NoConsumer(t *testing.T) {
	svc, fake, _, cleanup := setupService(t)
	defer cleanup()

	result, err := svc.List(context.Background(), "user_new")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Keys) != 0 {
		t.Errorf("Expected empty keys, got %d", len(result.Keys))
	}
	if result.Warning != "" {
		t.Errorf("Expected no warning, got %q", result.Warning)
	}
	// Listing must never create a consumer as a side effect.
	if fake.consumerPosts != 0 {
		t.Errorf("Expected no consumer creation during listing, got %d", fake.consumerPosts)
	}
}

func TestCreateAndList(t *testing.T) {
	svc, _, _, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := svc.Create(ctx, "user_a", "org_a", "Prod Server")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	if created.Name != "Prod Server" {
		t.Errorf("Expected name 'Prod Server', got %q", created.Name)
	}
	if created.Key == "" {
		t.Error("Expected full secret in creation response")
	}
	if created.KeyPrefix != created.Key[:8] {
		t.Errorf("Expected prefix to equal first 8 chars of key, got %q vs %q", created.KeyPrefix, created.Key)
	}
	createdAt, err := time.Parse(time.RFC3339, created.CreatedAt)
	if err != nil {
		t.Fatalf("CreatedAt is not RFC3339: %v", err)
	}
	if d := time.Since(createdAt); d > 5*time.Second || d < -5*time.Second {
		t.Errorf("CreatedAt not within a few seconds of call time: %v", created.CreatedAt)
	}

	result, err := svc.List(ctx, "user_a")
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(result.Keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(result.Keys))
	}

	key := result.Keys[0]
	if key.ID != created.ID {
		t.Errorf("Expected id %s, got %s", created.ID, key.ID)
	}
	if key.Name != "Prod Server" {
		t.Errorf("Expected name 'Prod Server', got %q", key.Name)
	}
	if key.KeyPrefix != created.KeyPrefix {
		t.Errorf("Expected prefix %q, got %q", created.KeyPrefix, key.KeyPrefix)
	}
	if key.Status != "active" {
		t.Errorf("Expected status active, got %q", key.Status)
	}
	if key.LastUsed != nil {
		t.Errorf("Expected lastUsed null, got %v", *key.LastUsed)
	}

	// The plaintext secret must never reappear in listings.
	raw, _ := json.Marshal(result)
	if strings.Contains(string(raw), created.Key) {
		t.Error("Listing response contains the plaintext secret")
	}
}

func TestCreate_NameValidation(t *testing.T) {
	svc, _, _, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()

	cases := []struct {
		name    string
		keyName string
		wantErr bool
	}{
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"51 chars", strings.Repeat("x", 51), true},
		{"50 chars", strings.Repeat("x", 50), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(ctx, "user_v", "org_v", tc.keyName)
			if tc.wantErr {
				var vErr *ValidationError
				if err == nil {
					t.Fatal("Expected validation error, got nil")
				}
				if !errors.As(err, &vErr) {
					t.Errorf("Expected ValidationError, got %T: %v", err, err)
				}
			} else if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestCreate_GatewayDown(t *testing.T) {
	svc, fake, _, cleanup := setupService(t)
	defer cleanup()

	fake.healthy = false

	_, err := svc.Create(context.Background(), "user_a", "org_a", "Prod")
	if err != ErrUnavailable {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
}

func TestList_Degraded(t *testing.T) {
	svc, fake, _, cleanup := setupService(t)
	defer cleanup()

	fake.healthy = false

	result, err := svc.List(context.Background(), "user_a")
	if err != nil {
		t.Fatalf("Degraded listing must not error, got %v", err)
	}
	if len(result.Keys) != 0 {
		t.Errorf("Expected empty keys in degraded mode, got %d", len(result.Keys))
	}
	if result.Warning == "" {
		t.Error("Expected non-empty warning in degraded mode")
	}
}

func TestList_FallbackMetadata(t *testing.T) {
	svc, fake, _, cleanup := setupService(t)
	defer cleanup()

	// A credential that predates local metadata.
	fake.consumers["user_m"] = &gateway.Consumer{ID: "c_user_m", Username: "user_m"}
	fake.creds["c_user_m"] = []gateway.KeyAuth{{
		ID:        "k_legacy",
		Consumer:  gateway.Ref{ID: "c_user_m"},
		CreatedAt: 1700000000,
	}}

	result, err := svc.List(context.Background(), "user_m")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(result.Keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(result.Keys))
	}
	key := result.Keys[0]
	if key.Name != "API Key" {
		t.Errorf("Expected fallback name, got %q", key.Name)
	}
	if key.CreatedAt != time.Unix(1700000000, 0).UTC().Format(time.RFC3339) {
		t.Errorf("Expected gateway timestamp conversion, got %q", key.CreatedAt)
	}
}

func TestRevoke_Idempotent(t *testing.T) {
	svc, _, db, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := svc.Create(ctx, "user_r", "org_r", "Temp")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	if err := svc.Revoke(ctx, "user_r", created.ID); err != nil {
		t.Errorf("First revoke failed: %v", err)
	}
	if err := svc.Revoke(ctx, "user_r", created.ID); err != nil {
		t.Errorf("Second revoke must be idempotent success, got %v", err)
	}

	// Metadata is cleaned up on revoke.
	var count int
	db.QueryRow(`SELECT COUNT(*) FROM api_key_metadata WHERE credential_id = ?`, created.ID).Scan(&count)
	if count != 0 {
		t.Errorf("Expected metadata deleted on revoke, found %d rows", count)
	}
}

func TestRevoke_CrossUserKeepsOwnerMetadata(t *testing.T) {
	svc, fake, db, cleanup := setupService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := svc.Create(ctx, "user_a", "org_a", "Prod Server")
	if err != nil {
		t.Fatalf("Failed to create key: %v", err)
	}

	// user_b has their own consumer, so nothing short of the ownership
	// check stops their revoke from succeeding against the gateway's 404.
	fake.consumers["user_b"] = &gateway.Consumer{ID: "c_user_b", Username: "user_b"}

	if err := svc.Revoke(ctx, "user_b", created.ID); err != nil {
		t.Fatalf("Cross-user revoke must not error, got %v", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM api_key_metadata WHERE credential_id = ?`, created.ID).Scan(&count)
	if count != 1 {
		t.Fatalf("Owner's metadata row must survive another user's revoke, found %d rows", count)
	}

	result, err := svc.List(ctx, "user_a")
	if err != nil {
		t.Fatalf("Failed to list keys: %v", err)
	}
	if len(result.Keys) != 1 || result.Keys[0].Name != "Prod Server" {
		t.Errorf("Owner's key lost its name after cross-user revoke: %+v", result.Keys)
	}
}

func TestRevoke_NoConsumer(t *testing.T) {
	svc, _, _, cleanup := setupService(t)
	defer cleanup()

	if err := svc.Revoke(context.Background(), "user_ghost", "k_none"); err != nil {
		t.Errorf("Revoke with no consumer must succeed, got %v", err)
	}
}
