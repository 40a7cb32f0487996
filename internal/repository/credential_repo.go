package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
)

// CredentialRepository persists per-organization integration credentials.
// It implements integration.CredentialStore.
type CredentialRepository struct {
	db *sqlx.DB
}

// NewCredentialRepository creates a credential repository.
func NewCredentialRepository(db *sqlx.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Get returns the stored credential, or nil when the pair has never
// authenticated.
func (r *CredentialRepository) Get(ctx context.Context, orgID, integrationID string) (*integration.Credential, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT credential FROM integration_credentials
		 WHERE organization_id = $1 AND integration_id = $2`,
		orgID, integrationID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	var cred integration.Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential for %s: %w", integrationID, err)
	}
	return &cred, nil
}

// Set stores the credential, replacing any previous one for the pair.
func (r *CredentialRepository) Set(ctx context.Context, orgID, integrationID string, cred *integration.Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("failed to marshal credential for %s: %w", integrationID, err)
	}

	query := `
		INSERT INTO integration_credentials (organization_id, integration_id, credential, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, integration_id) DO UPDATE SET
			credential = EXCLUDED.credential,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.ExecContext(ctx, query, orgID, integrationID, raw, time.Now()); err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// Delete removes the stored credential. A missing row is a no-op.
func (r *CredentialRepository) Delete(ctx context.Context, orgID, integrationID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM integration_credentials
		 WHERE organization_id = $1 AND integration_id = $2`,
		orgID, integrationID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
