package keys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"portal/internal/pkg/validator"
	"portal/internal/platform/audit"
	"portal/internal/platform/gateway"
	"portal/internal/platform/metrics"
	"portal/internal/platform/models"
)

// ErrUnavailable means the gateway health probe failed. Listing degrades on
// it; creation fails with 503 because a key must actually exist in the
// gateway to be usable.
var ErrUnavailable = errors.New("gateway unavailable")

const unavailableWarning = "API key service temporarily unavailable"

// fallbackName labels credentials that exist in the gateway without local
// metadata (pre-migration keys).
const fallbackName = "API Key"

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Gateway is the slice of the admin client the service needs.
type Gateway interface {
	GetConsumer(ctx context.Context, usernameOrID string) (*gateway.Consumer, error)
	GetOrCreateConsumer(ctx context.Context, userID string) (*gateway.Consumer, error)
	CreateKeyAuth(ctx context.Context, consumerID string) (*gateway.KeyAuth, error)
	ListKeyAuth(ctx context.Context, consumerID string) ([]gateway.KeyAuth, error)
	DeleteKeyAuth(ctx context.Context, consumerID, keyID string) error
	HealthCheck(ctx context.Context) bool
}

// MetadataStore is the slice of the repository the service needs.
type MetadataStore interface {
	Save(meta *models.APIKeyMetadata) error
	GetForUser(userID string) (map[string]*models.APIKeyMetadata, error)
	GetByCredentialID(credentialID string) (*models.APIKeyMetadata, error)
	Delete(credentialID string) error
}

type Service struct {
	gw        Gateway
	store     MetadataStore
	audit     *audit.Logger
	prefixLen int
}

func NewService(gw Gateway, store MetadataStore, auditLogger *audit.Logger, prefixLen int) *Service {
	if prefixLen <= 0 {
		prefixLen = 8
	}
	return &Service{gw: gw, store: store, audit: auditLogger, prefixLen: prefixLen}
}

type ListResult struct {
	Keys    []models.ListedAPIKey `json:"keys"`
	Warning string                `json:"warning,omitempty"`
}

// List returns the user's keys by joining the gateway's live credentials
// with local metadata. When the gateway is unreachable it returns an empty
// list plus a warning instead of an error, so the caller can render the page
// instead of failing it.
func (s *Service) List(ctx context.Context, userID string) (*ListResult, error) {
	if !s.probeGateway(ctx) {
		return &ListResult{Keys: []models.ListedAPIKey{}, Warning: unavailableWarning}, nil
	}

	consumer, err := s.gw.GetConsumer(ctx, userID)
	if err != nil {
		if gateway.IsConnectionError(err) {
			return &ListResult{Keys: []models.ListedAPIKey{}, Warning: unavailableWarning}, nil
		}
		return nil, err
	}
	if consumer == nil {
		// A user with zero keys has never triggered consumer creation.
		return &ListResult{Keys: []models.ListedAPIKey{}}, nil
	}

	creds, err := s.gw.ListKeyAuth(ctx, consumer.ID)
	if err != nil {
		if gateway.IsConnectionError(err) {
			return &ListResult{Keys: []models.ListedAPIKey{}, Warning: unavailableWarning}, nil
		}
		return nil, err
	}

	metadata, err := s.store.GetForUser(userID)
	if err != nil {
		return nil, err
	}

	listed := make([]models.ListedAPIKey, 0, len(creds))
	for _, cred := range creds {
		listed = append(listed, s.buildListedKey(cred, metadata[cred.ID]))
	}

	metrics.KeyOperations.WithLabelValues("list", "success").Inc()
	return &ListResult{Keys: listed}, nil
}

func (s *Service) buildListedKey(cred gateway.KeyAuth, meta *models.APIKeyMetadata) models.ListedAPIKey {
	key := models.ListedAPIKey{
		ID:     cred.ID,
		Status: "active",
		// The gateway does not track usage; always null.
		LastUsed: nil,
	}

	if meta != nil {
		key.Name = meta.Name
		key.KeyPrefix = meta.KeyPrefix
		key.CreatedAt = time.Unix(meta.CreatedAt, 0).UTC().Format(time.RFC3339)
		return key
	}

	// Credential with no local metadata: synthesize a display name, derive a
	// prefix from the raw secret if the gateway still returned one (it
	// typically does not post-creation).
	key.Name = fallbackName
	if len(cred.Key) >= s.prefixLen {
		key.KeyPrefix = cred.Key[:s.prefixLen]
	}
	key.CreatedAt = time.Unix(cred.CreatedAt, 0).UTC().Format(time.RFC3339)
	return key
}

// Create issues a credential for the user and persists its metadata. Steps
// are sequential with no rollback: a metadata failure after the gateway call
// leaves an orphaned credential, which the reconciliation worker reports.
func (s *Service) Create(ctx context.Context, userID, orgID, rawName string) (*models.CreatedAPIKey, error) {
	if !s.probeGateway(ctx) {
		metrics.KeyOperations.WithLabelValues("create", "unavailable").Inc()
		return nil, ErrUnavailable
	}

	name, err := validator.KeyName(rawName)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	consumer, err := s.gw.GetOrCreateConsumer(ctx, userID)
	if err != nil {
		metrics.KeyOperations.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	cred, err := s.gw.CreateKeyAuth(ctx, consumer.ID)
	if err != nil {
		metrics.KeyOperations.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	prefix := cred.Key
	if len(prefix) > s.prefixLen {
		prefix = prefix[:s.prefixLen]
	}
	hash := sha256.Sum256([]byte(cred.Key))

	now := time.Now()
	meta := &models.APIKeyMetadata{
		CredentialID:   cred.ID,
		UserID:         userID,
		OrganizationID: orgID,
		Name:           name,
		KeyPrefix:      prefix,
		KeyHash:        hex.EncodeToString(hash[:]),
		CreatedAt:      now.Unix(),
	}
	if err := s.store.Save(meta); err != nil {
		log.Error().Err(err).Str("credential_id", cred.ID).
			Msg("metadata save failed after credential creation, credential is orphaned")
		metrics.KeyOperations.WithLabelValues("create", "error").Inc()
		return nil, err
	}

	s.audit.Log(ctx, "api_key.create", "api_key", cred.ID, map[string]interface{}{"name": name})
	metrics.KeyOperations.WithLabelValues("create", "success").Inc()

	return &models.CreatedAPIKey{
		ID:        cred.ID,
		Name:      name,
		Key:       cred.Key,
		KeyPrefix: prefix,
		CreatedAt: now.UTC().Format(time.RFC3339),
	}, nil
}

// Revoke deletes the gateway credential and then the local metadata.
// Not-found anywhere is idempotent success: an already-revoked key is a
// revoked key. Metadata cleanup is best-effort; a leftover row is picked up
// by the reconciliation worker.
func (s *Service) Revoke(ctx context.Context, userID, credentialID string) error {
	// The gateway scopes the delete to the caller's consumer, but the
	// metadata table is keyed by credential id alone. A row owned by someone
	// else must survive the caller's revoke, which the gateway reports as a
	// plain 404.
	meta, err := s.store.GetByCredentialID(credentialID)
	if err != nil {
		return err
	}
	if meta != nil && meta.UserID != userID {
		return nil
	}

	consumer, err := s.gw.GetConsumer(ctx, userID)
	if err != nil {
		return err
	}
	if consumer == nil {
		return nil
	}

	if err := s.gw.DeleteKeyAuth(ctx, consumer.ID, credentialID); err != nil && !gateway.IsNotFound(err) {
		metrics.KeyOperations.WithLabelValues("revoke", "error").Inc()
		return err
	}

	if err := s.store.Delete(credentialID); err != nil {
		log.Warn().Err(err).Str("credential_id", credentialID).
			Msg("metadata cleanup failed after revoke")
	}

	s.audit.Log(ctx, "api_key.revoke", "api_key", credentialID, nil)
	metrics.KeyOperations.WithLabelValues("revoke", "success").Inc()
	return nil
}

func (s *Service) probeGateway(ctx context.Context) bool {
	healthy := s.gw.HealthCheck(ctx)
	if healthy {
		metrics.GatewayUp.Set(1)
	} else {
		metrics.GatewayUp.Set(0)
	}
	return healthy
}
