package repositories

import (
	"database/sql"

	"portal/internal/platform/models"
)

type APIKeyRepository struct {
	db *sql.DB
}

func NewAPIKeyRepository(db *sql.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// Save persists metadata for a freshly issued credential. Called exactly
// once per successful gateway credential creation.
func (r *APIKeyRepository) Save(meta *models.APIKeyMetadata) error {
	query := `
		INSERT INTO api_key_metadata (credential_id, user_id, organization_id, name, key_prefix, key_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, meta.CredentialID, meta.UserID, meta.OrganizationID, meta.Name, meta.KeyPrefix, meta.KeyHash, meta.CreatedAt)
	return err
}

// GetForUser returns the user's metadata keyed by credential id, for
// joining against the gateway's live credential list.
func (r *APIKeyRepository) GetForUser(userID string) (map[string]*models.APIKeyMetadata, error) {
	query := `
		SELECT credential_id, user_id, organization_id, name, key_prefix, key_hash, created_at
		FROM api_key_metadata WHERE user_id = ?
	`
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metadata := make(map[string]*models.APIKeyMetadata)
	for rows.Next() {
		var m models.APIKeyMetadata
		if err := rows.Scan(&m.CredentialID, &m.UserID, &m.OrganizationID, &m.Name, &m.KeyPrefix, &m.KeyHash, &m.CreatedAt); err != nil {
			return nil, err
		}
		metadata[m.CredentialID] = &m
	}
	return metadata, rows.Err()
}

func (r *APIKeyRepository) GetByCredentialID(credentialID string) (*models.APIKeyMetadata, error) {
	query := `
		SELECT credential_id, user_id, organization_id, name, key_prefix, key_hash, created_at
		FROM api_key_metadata WHERE credential_id = ?
	`
	var m models.APIKeyMetadata
	err := r.db.QueryRow(query, credentialID).Scan(&m.CredentialID, &m.UserID, &m.OrganizationID, &m.Name, &m.KeyPrefix, &m.KeyHash, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

func (r *APIKeyRepository) Delete(credentialID string) error {
	_, err := r.db.Exec(`DELETE FROM api_key_metadata WHERE credential_id = ?`, credentialID)
	return err
}

// ListAll returns every metadata row, used by the reconciliation worker to
// find records whose gateway credential no longer exists.
func (r *APIKeyRepository) ListAll() ([]*models.APIKeyMetadata, error) {
	query := `
		SELECT credential_id, user_id, organization_id, name, key_prefix, key_hash, created_at
		FROM api_key_metadata ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []*models.APIKeyMetadata
	for rows.Next() {
		var m models.APIKeyMetadata
		if err := rows.Scan(&m.CredentialID, &m.UserID, &m.OrganizationID, &m.Name, &m.KeyPrefix, &m.KeyHash, &m.CreatedAt); err != nil {
			return nil, err
		}
		all = append(all, &m)
	}
	return all, rows.Err()
}
