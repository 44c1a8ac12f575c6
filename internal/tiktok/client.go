package tiktok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anterny/tokrelay/internal/transfer"
)

const DefaultBaseURL = "https://open.tiktokapis.com"

const authorizeURL = "https://www.tiktok.com/v2/auth/authorize/"

// ModeScopes maps a posting mode to the OAuth scopes it needs. Direct posting
// additionally requires video.publish.
var ModeScopes = map[string]string{
	"draft":  "user.info.basic,video.upload",
	"direct": "user.info.basic,video.upload,video.publish",
}

// Client talks to the TikTok open API. BaseURL is configurable so tests can
// point it at a local server.
type Client struct {
	ClientKey    string
	ClientSecret string
	RedirectURI  string
	BaseURL      string

	http *http.Client
}

func NewClient(clientKey, clientSecret, redirectURI string) *Client {
	return &Client{
		ClientKey:    clientKey,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		BaseURL:      DefaultBaseURL,
		http:         &http.Client{Timeout: 60 * time.Second},
	}
}

// AuthorizeURL builds the consent page URL for the given posting mode and
// signed state token.
func (c *Client) AuthorizeURL(mode, state string) string {
	scopes, ok := ModeScopes[mode]
	if !ok {
		scopes = ModeScopes["draft"]
	}
	params := url.Values{}
	params.Set("client_key", c.ClientKey)
	params.Set("scope", scopes)
	params.Set("response_type", "code")
	params.Set("redirect_uri", c.RedirectURI)
	params.Set("state", state)
	return authorizeURL + "?" + params.Encode()
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (*transfer.TiktokTokenResponse, error) {
	data := url.Values{}
	data.Set("client_key", c.ClientKey)
	data.Set("client_secret", c.ClientSecret)
	data.Set("code", code)
	data.Set("grant_type", "authorization_code")
	data.Set("redirect_uri", c.RedirectURI)

	return c.tokenRequest(ctx, data)
}

func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*transfer.TiktokTokenResponse, error) {
	data := url.Values{}
	data.Set("client_key", c.ClientKey)
	data.Set("client_secret", c.ClientSecret)
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	return c.tokenRequest(ctx, data)
}

func (c *Client) tokenRequest(ctx context.Context, data url.Values) (*transfer.TiktokTokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v2/oauth/token/", strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	var tokenResponse transfer.TiktokTokenResponse
	if err := json.Unmarshal(body, &tokenResponse); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResponse.AccessToken == "" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "token response missing access_token: " + string(body)}
	}
	return &tokenResponse, nil
}

func (c *Client) UserInfo(ctx context.Context, accessToken string) (*transfer.TiktokUser, error) {
	endpoint := c.BaseURL + "/v2/user/info/?fields=open_id,avatar_url,display_name,username"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result transfer.TiktokUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if !result.Error.OK() {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       result.Error.Code,
			Message:    result.Error.Message,
			LogID:      result.Error.LogID,
		}
	}
	return &result.Data.User, nil
}

// InitVideo starts a video publish and returns the publish id and upload URL.
// postMode is the wire value, DIRECT_POST or MEDIA_UPLOAD.
func (c *Client) InitVideo(ctx context.Context, accessToken, postMode, title string, videoSize int64) (*transfer.InitData, error) {
	payload := transfer.VideoInitRequest{
		PostMode: postMode,
		PostInfo: transfer.PostInfo{Title: title},
		SourceInfo: transfer.VideoSourceInfo{
			Source:    "FILE_UPLOAD",
			VideoSize: videoSize,
		},
	}
	return c.initRequest(ctx, accessToken, "/v2/post/publish/video/init/", payload)
}

func (c *Client) FinalizeVideo(ctx context.Context, accessToken, postMode, publishID, title string) (*transfer.PublishData, error) {
	return c.publishRequest(ctx, accessToken, "/v2/post/publish/video/publish/", postMode, publishID, title)
}

// InitPhotos starts a photo post publish with one upload URL per image.
func (c *Client) InitPhotos(ctx context.Context, accessToken, postMode, title string, mediaCount int) (*transfer.InitData, error) {
	payload := transfer.PhotoInitRequest{
		PostMode: postMode,
		PostInfo: transfer.PostInfo{Title: title},
		SourceInfo: transfer.PhotoSourceInfo{
			Source:     "FILE_UPLOAD",
			MediaCount: mediaCount,
			MediaType:  "PHOTO",
		},
	}
	return c.initRequest(ctx, accessToken, "/v2/post/publish/content/init/", payload)
}

func (c *Client) FinalizePhotos(ctx context.Context, accessToken, postMode, publishID, title string) (*transfer.PublishData, error) {
	return c.publishRequest(ctx, accessToken, "/v2/post/publish/content/publish/", postMode, publishID, title)
}

func (c *Client) initRequest(ctx context.Context, accessToken, path string, payload any) (*transfer.InitData, error) {
	body, err := c.postJSON(ctx, accessToken, path, payload)
	if err != nil {
		return nil, err
	}

	var result transfer.InitResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode init response: %w", err)
	}
	return &result.Data, nil
}

func (c *Client) publishRequest(ctx context.Context, accessToken, path, postMode, publishID, title string) (*transfer.PublishData, error) {
	payload := transfer.PublishRequest{
		PublishID: publishID,
		PostMode:  postMode,
		PostInfo:  transfer.PostInfo{Title: title},
	}
	body, err := c.postJSON(ctx, accessToken, path, payload)
	if err != nil {
		return nil, err
	}

	var result transfer.PublishResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode publish response: %w", err)
	}
	return &result.Data, nil
}

func (c *Client) postJSON(ctx context.Context, accessToken, path string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Error transfer.TiktokError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && !envelope.Error.OK() {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
			LogID:      envelope.Error.LogID,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}

// Upload PUTs a media payload to the URL returned by an init call.
func (c *Client) Upload(ctx context.Context, uploadURL string, payload []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/%d", len(payload)-1, len(payload)))
	req.ContentLength = int64(len(payload))

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		log.Warn().Int("status", resp.StatusCode).Msg("media upload returned non-2xx status")
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}
	return nil
}
