package models

import "time"

const (
	PostingModeDraft  = "draft"
	PostingModeDirect = "direct"
)

// TikTokAccount is a registered destination account. Access and refresh
// tokens are stored AES-GCM encrypted; only the service layer ever sees
// them decrypted.
type TikTokAccount struct {
	ID             int64     `db:"id" json:"id"`
	AccountLabel   string    `db:"account_label" json:"account_label"`
	OpenID         string    `db:"open_id" json:"open_id"`
	AccessToken    string    `db:"access_token" json:"-"`
	RefreshToken   string    `db:"refresh_token" json:"-"`
	GrantedScopes  string    `db:"granted_scopes" json:"granted_scopes"`
	PostingMode    string    `db:"posting_mode" json:"posting_mode"`
	NeedsReauth    bool      `db:"needs_reauth" json:"needs_reauth"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
