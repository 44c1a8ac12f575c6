package transfer

import "github.com/golang-jwt/jwt/v5"

type TiktokTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int    `json:"expires_in"`
	OpenID           string `json:"open_id"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	TokenType        string `json:"token_type"`
}

type TiktokUser struct {
	OpenID      string `json:"open_id"`
	AvatarURL   string `json:"avatar_url"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
}

type TiktokUserData struct {
	User TiktokUser `json:"user"`
}

type TiktokUserResponse struct {
	Data  TiktokUserData `json:"data"`
	Error TiktokError    `json:"error"`
}

type TiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

// OK reports whether the error envelope denotes success. TikTok returns
// code "ok" (or an empty envelope) on success.
func (e TiktokError) OK() bool {
	return e.Code == "" || e.Code == "ok"
}

type PostInfo struct {
	Title string `json:"title"`
}

type VideoSourceInfo struct {
	Source    string `json:"source"`
	VideoSize int64  `json:"video_size"`
}

type PhotoSourceInfo struct {
	Source     string `json:"source"`
	MediaCount int    `json:"media_count"`
	MediaType  string `json:"media_type"`
}

type VideoInitRequest struct {
	PostMode   string          `json:"post_mode"`
	PostInfo   PostInfo        `json:"post_info"`
	SourceInfo VideoSourceInfo `json:"source_info"`
}

type PhotoInitRequest struct {
	PostMode   string          `json:"post_mode"`
	PostInfo   PostInfo        `json:"post_info"`
	SourceInfo PhotoSourceInfo `json:"source_info"`
}

type PublishRequest struct {
	PublishID string   `json:"publish_id"`
	PostMode  string   `json:"post_mode"`
	PostInfo  PostInfo `json:"post_info"`
}

type InitData struct {
	PublishID  string   `json:"publish_id"`
	UploadURL  string   `json:"upload_url"`
	UploadURLs []string `json:"upload_urls"`
}

type InitResponse struct {
	Data  InitData    `json:"data"`
	Error TiktokError `json:"error"`
}

type PublishData struct {
	PublishID string `json:"publish_id"`
	PostID    string `json:"post_id"`
	ItemID    string `json:"item_id"`
}

type PublishResponse struct {
	Data  PublishData `json:"data"`
	Error TiktokError `json:"error"`
}

// StateClaims is the payload of the signed OAuth state token that carries
// the pending registration through the TikTok authorization redirect.
type StateClaims struct {
	AccountLabel string `json:"account_label"`
	Mode         string `json:"mode"`
	jwt.RegisteredClaims
}

// AccountInfo is the credential-free view of an account exposed by the
// admin inspection endpoint.
type AccountInfo struct {
	AccountLabel   string `json:"account_label"`
	OpenID         string `json:"open_id"`
	PostingMode    string `json:"posting_mode"`
	GrantedScopes  string `json:"granted_scopes"`
	NeedsReauth    bool   `json:"needs_reauth"`
	TokenExpiresAt string `json:"token_expires_at"`
}
