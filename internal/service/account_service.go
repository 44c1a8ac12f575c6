package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/models"
	"github.com/anterny/tokrelay/internal/repository"
	"github.com/anterny/tokrelay/internal/transfer"
	"github.com/anterny/tokrelay/pkg/utils"
)

// ErrAccountUnusable marks an account whose credentials cannot produce a
// valid access token without operator re-authorization. Deliveries hitting it
// fail permanently instead of retrying.
var ErrAccountUnusable = errors.New("account requires re-authorization")

// tokenRefreshGrace refreshes tokens slightly before they expire so a token
// never dies mid-publish.
const tokenRefreshGrace = 90 * time.Second

const stateTokenTTL = 15 * time.Minute

// OAuthAPI is the OAuth and identity slice of the TikTok client.
type OAuthAPI interface {
	AuthorizeURL(mode, state string) string
	ExchangeCode(ctx context.Context, code string) (*transfer.TiktokTokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*transfer.TiktokTokenResponse, error)
	UserInfo(ctx context.Context, accessToken string) (*transfer.TiktokUser, error)
}

type AccountService interface {
	BuildAuthorizationURL(accountLabel, mode string) (string, error)
	HandleCallback(ctx context.Context, code, state string) (*models.TikTokAccount, error)
	List(ctx context.Context) ([]transfer.AccountInfo, error)
	EnsureAccessToken(ctx context.Context, acc *models.TikTokAccount) (string, error)
	RefreshAccount(ctx context.Context, acc *models.TikTokAccount) error
}

type accountService struct {
	api       OAuthAPI
	accounts  repository.AccountRepository
	secretKey string
}

func NewAccountService(api OAuthAPI, accounts repository.AccountRepository, secretKey string) AccountService {
	return &accountService{
		api:       api,
		accounts:  accounts,
		secretKey: secretKey,
	}
}

func (s *accountService) BuildAuthorizationURL(accountLabel, mode string) (string, error) {
	if accountLabel == "" {
		return "", errors.New("account label is required")
	}
	if mode != models.PostingModeDraft && mode != models.PostingModeDirect {
		return "", fmt.Errorf("unknown posting mode %q", mode)
	}

	state, err := utils.GenerateStateToken(s.secretKey, accountLabel, mode, stateTokenTTL)
	if err != nil {
		return "", err
	}
	return s.api.AuthorizeURL(mode, state), nil
}

func (s *accountService) HandleCallback(ctx context.Context, code, state string) (*models.TikTokAccount, error) {
	if code == "" {
		return nil, errors.New("authorization code is empty")
	}

	claims, err := utils.ValidateStateToken(s.secretKey, state)
	if err != nil {
		return nil, fmt.Errorf("invalid state token: %w", err)
	}

	tokenResponse, err := s.api.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	user, err := s.api.UserInfo(ctx, tokenResponse.AccessToken)
	if err != nil {
		return nil, err
	}

	encryptedAccess, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(s.secretKey))
	if err != nil {
		return nil, err
	}
	encryptedRefresh, err := utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(s.secretKey))
	if err != nil {
		return nil, err
	}

	acc := &models.TikTokAccount{
		AccountLabel:   claims.AccountLabel,
		OpenID:         user.OpenID,
		AccessToken:    encryptedAccess,
		RefreshToken:   encryptedRefresh,
		GrantedScopes:  tokenResponse.Scope,
		PostingMode:    claims.Mode,
		NeedsReauth:    false,
		TokenExpiresAt: time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second),
	}

	id, err := s.accounts.Upsert(ctx, acc)
	if err != nil {
		return nil, err
	}
	acc.ID = id

	log.Info().
		Str("account", acc.AccountLabel).
		Str("mode", acc.PostingMode).
		Str("scopes", acc.GrantedScopes).
		Msg("tiktok account registered")

	return acc, nil
}

func (s *accountService) List(ctx context.Context) ([]transfer.AccountInfo, error) {
	accounts, err := s.accounts.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]transfer.AccountInfo, 0, len(accounts))
	for _, acc := range accounts {
		infos = append(infos, transfer.AccountInfo{
			AccountLabel:   acc.AccountLabel,
			OpenID:         acc.OpenID,
			PostingMode:    acc.PostingMode,
			GrantedScopes:  acc.GrantedScopes,
			NeedsReauth:    acc.NeedsReauth,
			TokenExpiresAt: acc.TokenExpiresAt.UTC().Format(time.RFC3339),
		})
	}
	return infos, nil
}

// EnsureAccessToken returns a decrypted access token that is valid for at
// least the grace period, refreshing first when needed. Accounts flagged for
// re-authorization, or whose refresh fails, return ErrAccountUnusable.
func (s *accountService) EnsureAccessToken(ctx context.Context, acc *models.TikTokAccount) (string, error) {
	if acc.NeedsReauth {
		return "", fmt.Errorf("account %s: %w", acc.AccountLabel, ErrAccountUnusable)
	}

	if time.Until(acc.TokenExpiresAt) > tokenRefreshGrace {
		token, err := utils.Decrypt(acc.AccessToken, []byte(s.secretKey))
		if err != nil {
			return "", err
		}
		return string(token), nil
	}

	if err := s.RefreshAccount(ctx, acc); err != nil {
		return "", err
	}
	token, err := utils.Decrypt(acc.AccessToken, []byte(s.secretKey))
	if err != nil {
		return "", err
	}
	return string(token), nil
}

// RefreshAccount exchanges the stored refresh token for new credentials and
// updates the account in place. A rejected refresh token flags the account
// for re-authorization.
func (s *accountService) RefreshAccount(ctx context.Context, acc *models.TikTokAccount) error {
	if acc.RefreshToken == "" {
		return s.markUnusable(ctx, acc, errors.New("no refresh token stored"))
	}

	refreshToken, err := utils.Decrypt(acc.RefreshToken, []byte(s.secretKey))
	if err != nil {
		return err
	}

	tokenResponse, err := s.api.RefreshToken(ctx, string(refreshToken))
	if err != nil {
		return s.markUnusable(ctx, acc, err)
	}

	encryptedAccess, err := utils.Encrypt([]byte(tokenResponse.AccessToken), []byte(s.secretKey))
	if err != nil {
		return err
	}
	encryptedRefresh, err := utils.Encrypt([]byte(tokenResponse.RefreshToken), []byte(s.secretKey))
	if err != nil {
		return err
	}
	expiresAt := time.Now().Add(time.Duration(tokenResponse.ExpiresIn) * time.Second)

	if err := s.accounts.SetTokens(ctx, acc.AccountLabel, encryptedAccess, encryptedRefresh, expiresAt); err != nil {
		return err
	}

	acc.AccessToken = encryptedAccess
	acc.RefreshToken = encryptedRefresh
	acc.TokenExpiresAt = expiresAt

	log.Info().Str("account", acc.AccountLabel).Time("expires_at", expiresAt).Msg("token refreshed")
	return nil
}

func (s *accountService) markUnusable(ctx context.Context, acc *models.TikTokAccount, cause error) error {
	log.Warn().Str("account", acc.AccountLabel).Err(cause).Msg("flagging account for re-authorization")
	if err := s.accounts.SetNeedsReauth(ctx, acc.AccountLabel, true); err != nil {
		return err
	}
	acc.NeedsReauth = true
	return fmt.Errorf("account %s: %v: %w", acc.AccountLabel, cause, ErrAccountUnusable)
}
