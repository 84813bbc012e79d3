package models

// APIKeyMetadata is the locally owned record for a gateway-issued
// credential. The credential id is the primary key; the plaintext secret is
// never stored, only its display prefix and a sha256 fingerprint.
type APIKeyMetadata struct {
	CredentialID   string `json:"credential_id"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	KeyPrefix      string `json:"key_prefix"`
	KeyHash        string `json:"-"`
	CreatedAt      int64  `json:"created_at"`
}

// ListedAPIKey is the view model returned by the listing endpoint, built by
// joining gateway credentials against local metadata at request time.
type ListedAPIKey struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	KeyPrefix string  `json:"keyPrefix"`
	CreatedAt string  `json:"createdAt"`
	LastUsed  *string `json:"lastUsed"`
	Status    string  `json:"status"`
}

// CreatedAPIKey is the creation response. Key carries the full secret and is
// present exactly once across the credential's lifetime.
type CreatedAPIKey struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Key       string `json:"key"`
	KeyPrefix string `json:"keyPrefix"`
	CreatedAt string `json:"createdAt"`
}
