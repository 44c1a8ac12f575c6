package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/models"
)

type AccountRepository interface {
	Upsert(ctx context.Context, a *models.TikTokAccount) (int64, error)
	GetByLabel(ctx context.Context, label string) (*models.TikTokAccount, error)
	ListAll(ctx context.Context) ([]*models.TikTokAccount, error)
	ListByLabels(ctx context.Context, labels []string) ([]*models.TikTokAccount, error)
	ListExpiring(ctx context.Context, before time.Time) ([]*models.TikTokAccount, error)
	SetTokens(ctx context.Context, label, accessToken, refreshToken string, expiresAt time.Time) error
	SetNeedsReauth(ctx context.Context, label string, needsReauth bool) error
}

type accountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, account_label, open_id, access_token, refresh_token,
	granted_scopes, posting_mode, needs_reauth, token_expires_at, created_at, updated_at`

func (r *accountRepository) Upsert(ctx context.Context, a *models.TikTokAccount) (int64, error) {
	query := `
		INSERT INTO tiktok_accounts(
			account_label,
			open_id,
			access_token,
			refresh_token,
			granted_scopes,
			posting_mode,
			needs_reauth,
			token_expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_label) DO UPDATE SET
			open_id = EXCLUDED.open_id,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			granted_scopes = EXCLUDED.granted_scopes,
			posting_mode = EXCLUDED.posting_mode,
			needs_reauth = EXCLUDED.needs_reauth,
			token_expires_at = EXCLUDED.token_expires_at,
			updated_at = now()
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		a.AccountLabel,
		a.OpenID,
		a.AccessToken,
		a.RefreshToken,
		a.GrantedScopes,
		a.PostingMode,
		a.NeedsReauth,
		a.TokenExpiresAt,
	).Scan(&id)
	if err != nil {
		log.Error().Err(err).Str("account_label", a.AccountLabel).Msg("account upsert failed")
		return 0, err
	}
	return id, nil
}

func (r *accountRepository) GetByLabel(ctx context.Context, label string) (*models.TikTokAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM tiktok_accounts WHERE account_label = $1`
	row := r.db.QueryRowContext(ctx, query, label)

	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *accountRepository) ListAll(ctx context.Context) ([]*models.TikTokAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM tiktok_accounts ORDER BY account_label ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *accountRepository) ListByLabels(ctx context.Context, labels []string) ([]*models.TikTokAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM tiktok_accounts
		WHERE account_label = ANY($1) ORDER BY account_label ASC`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(labels))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *accountRepository) ListExpiring(ctx context.Context, before time.Time) ([]*models.TikTokAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM tiktok_accounts
		WHERE token_expires_at <= $1 AND needs_reauth = FALSE AND refresh_token <> ''`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *accountRepository) SetTokens(ctx context.Context, label, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE tiktok_accounts
		SET access_token = $2,
			refresh_token = $3,
			token_expires_at = $4,
			needs_reauth = FALSE,
			updated_at = now()
		WHERE account_label = $1
	`
	_, err := r.db.ExecContext(ctx, query, label, accessToken, refreshToken, expiresAt)
	return err
}

func (r *accountRepository) SetNeedsReauth(ctx context.Context, label string, needsReauth bool) error {
	query := `UPDATE tiktok_accounts SET needs_reauth = $2, updated_at = now() WHERE account_label = $1`
	_, err := r.db.ExecContext(ctx, query, label, needsReauth)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.TikTokAccount, error) {
	var a models.TikTokAccount
	err := row.Scan(&a.ID, &a.AccountLabel, &a.OpenID, &a.AccessToken, &a.RefreshToken,
		&a.GrantedScopes, &a.PostingMode, &a.NeedsReauth, &a.TokenExpiresAt,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAccounts(rows *sql.Rows) ([]*models.TikTokAccount, error) {
	var accounts []*models.TikTokAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
