package workers

import (
	"context"

	"github.com/rs/zerolog/log"
	"portal/internal/platform/gateway"
	"portal/internal/platform/models"
	"portal/internal/platform/repositories"
)

// Reconciler removes metadata rows whose gateway credential no longer
// exists. Keys revoked while the local delete failed, and any other drift
// between the gateway and the metadata store, converge here.
type Reconciler struct {
	gw   *gateway.Client
	repo *repositories.APIKeyRepository
}

func NewReconciler(gw *gateway.Client, repo *repositories.APIKeyRepository) *Reconciler {
	return &Reconciler{gw: gw, repo: repo}
}

// Run performs one sweep. It returns the number of rows deleted. A gateway
// connection failure aborts the sweep: absence of an answer is not absence
// of a credential.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	rows, err := r.repo.ListAll()
	if err != nil {
		return 0, err
	}

	byUser := make(map[string][]*models.APIKeyMetadata)
	for _, row := range rows {
		byUser[row.UserID] = append(byUser[row.UserID], row)
	}

	deleted := 0
	for userID, userRows := range byUser {
		consumer, err := r.gw.GetConsumer(ctx, userID)
		if err != nil {
			if gateway.IsConnectionError(err) {
				return deleted, err
			}
			log.Warn().Err(err).Str("user_id", userID).Msg("consumer lookup failed, skipping user")
			continue
		}

		live := make(map[string]bool)
		if consumer != nil {
			creds, err := r.gw.ListKeyAuth(ctx, consumer.ID)
			if err != nil {
				if gateway.IsConnectionError(err) {
					return deleted, err
				}
				log.Warn().Err(err).Str("user_id", userID).Msg("credential listing failed, skipping user")
				continue
			}
			for _, cred := range creds {
				live[cred.ID] = true
			}
		}

		for _, row := range userRows {
			if live[row.CredentialID] {
				continue
			}
			if err := r.repo.Delete(row.CredentialID); err != nil {
				log.Error().Err(err).Str("credential_id", row.CredentialID).Msg("failed to delete orphaned metadata")
				continue
			}
			log.Info().Str("credential_id", row.CredentialID).Str("user_id", userID).
				Msg("deleted metadata for revoked credential")
			deleted++
		}
	}

	return deleted, nil
}
