package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"kamiview/internal/gateway"
	"kamiview/internal/logging"
)

// Caller issues one correlated call. gateway.Gateway satisfies it.
type Caller interface {
	Call(ctx context.Context, kind string, payload any, budget time.Duration) (json.RawMessage, error)
}

// Client exposes one method per backend message kind.
type Client struct {
	caller Caller
	budget time.Duration
	light  time.Duration
	logger *slog.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBudgets overrides the general and light call budgets.
func WithBudgets(general, light time.Duration) ClientOption {
	return func(c *Client) {
		if general > 0 {
			c.budget = general
		}
		if light > 0 {
			c.light = light
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "api")
	}
}

// NewClient wraps caller.
func NewClient(caller Caller, opts ...ClientOption) *Client {
	c := &Client{
		caller: caller,
		budget: gateway.DefaultBudget,
		light:  gateway.LightBudget,
		logger: logging.NewComponentLogger(nil, "api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Budget returns the budget used for kind.
func (c *Client) Budget(kind string) time.Duration {
	if kind == KindGetPlaybackInfo {
		return c.light
	}
	return c.budget
}

func (c *Client) call(ctx context.Context, kind string, payload any) (json.RawMessage, error) {
	data, err := c.caller.Call(ctx, kind, payload, c.Budget(kind))
	if err != nil {
		var backendErr *gateway.BackendError
		if !errors.As(err, &backendErr) {
			c.logger.Debug("call failed", logging.String(logging.FieldKind, kind), logging.Error(err))
		}
		return nil, err
	}
	return data, nil
}

// Search queries the catalogue.
func (c *Client) Search(ctx context.Context, query string) ([]MediaResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("search query is required")
	}
	data, err := c.call(ctx, KindSearch, searchPayload{Query: query})
	if err != nil {
		return nil, err
	}
	resp, err := decode[SearchResponse](KindSearch, data)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// SelectAnime loads translations and the episode count for one title.
func (c *Client) SelectAnime(ctx context.Context, shikimoriID string) (*AnimeInfo, error) {
	shikimoriID = strings.TrimSpace(shikimoriID)
	if shikimoriID == "" {
		return nil, errors.New("shikimori id is required")
	}
	data, err := c.call(ctx, KindAnimeSelected, selectPayload{ShikimoriID: shikimoriID})
	if err != nil {
		return nil, err
	}
	info, err := decode[AnimeInfo](KindAnimeSelected, data)
	if err != nil {
		return nil, err
	}
	info.Translations = NormalizeTranslations(info.Translations)
	return &info, nil
}

// PlayEpisode starts playback. The success data is backend-defined and
// returned untouched.
func (c *Client) PlayEpisode(ctx context.Context, req PlayRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.ShikimoriID) == "" {
		return nil, errors.New("shikimori id is required")
	}
	if req.Episode < 1 {
		return nil, fmt.Errorf("invalid episode %d", req.Episode)
	}
	if strings.TrimSpace(req.TranslationID) == "" {
		return nil, errors.New("translation id is required")
	}
	return c.call(ctx, KindPlayEpisode, req)
}

// PlaybackInfo reads the current player state using the light budget.
func (c *Client) PlaybackInfo(ctx context.Context) (PlaybackInfo, error) {
	return c.playbackCall(ctx, KindGetPlaybackInfo, nil)
}

// SetPaused asks the player to pause or resume.
func (c *Client) SetPaused(ctx context.Context, paused bool) (PlaybackInfo, error) {
	return c.playbackCall(ctx, KindTogglePlayback, togglePayload{Paused: paused})
}

// TogglePlayback flips the paused state relative to current.
func (c *Client) TogglePlayback(ctx context.Context, current PlaybackInfo) (PlaybackInfo, error) {
	return c.SetPaused(ctx, !current.Paused)
}

// StopPlayback stops the player.
func (c *Client) StopPlayback(ctx context.Context) (PlaybackInfo, error) {
	return c.playbackCall(ctx, KindStopPlayback, nil)
}

func (c *Client) playbackCall(ctx context.Context, kind string, payload any) (PlaybackInfo, error) {
	data, err := c.call(ctx, kind, payload)
	if err != nil {
		return PlaybackInfo{}, err
	}
	return decode[PlaybackInfo](kind, data)
}

// NormalizeDownload validates req and applies the default content type.
func NormalizeDownload(req DownloadRequest) (DownloadRequest, error) {
	req.Content = strings.TrimSpace(req.Content)
	req.Filename = strings.TrimSpace(req.Filename)
	req.ContentType = strings.TrimSpace(req.ContentType)
	if req.Content == "" {
		return req, errors.New("download content is required")
	}
	if req.Filename == "" {
		return req, errors.New("download filename is required")
	}
	if req.ContentType == "" {
		req.ContentType = DefaultDownloadContentType
	}
	return req, nil
}

// StartDownload issues startDownload and waits for the acknowledgement.
// Progress arrives separately as unsolicited events.
func (c *Client) StartDownload(ctx context.Context, req DownloadRequest) error {
	req, err := NormalizeDownload(req)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, KindStartDownload, req)
	return err
}

// OpenAuthURL asks the backend to open the sign-in page. The URL is
// returned when the backend reports it.
func (c *Client) OpenAuthURL(ctx context.Context) (string, error) {
	data, err := c.call(ctx, KindOpenAuthURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := decode[AuthURL](KindOpenAuthURL, data)
	if err != nil {
		// Some backends answer with a bare message; the call still succeeded.
		c.logger.Debug("auth url reply not decoded", logging.String(logging.FieldKind, KindOpenAuthURL), logging.Error(err))
		return "", nil
	}
	return resp.URL, nil
}

// ExchangeCode trades an OAuth code for the signed-in user.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*UserInfo, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("authorization code is required")
	}
	data, err := c.call(ctx, KindExchangeCode, exchangePayload{Code: code})
	if err != nil {
		return nil, err
	}
	return decodeUser(KindExchangeCode, data)
}

// UserInfo returns the signed-in user.
func (c *Client) UserInfo(ctx context.Context) (*UserInfo, error) {
	data, err := c.call(ctx, KindGetUserInfo, nil)
	if err != nil {
		return nil, err
	}
	return decodeUser(KindGetUserInfo, data)
}

func decodeUser(kind string, data json.RawMessage) (*UserInfo, error) {
	user, err := decode[UserInfo](kind, data)
	if err != nil {
		return nil, err
	}
	if user.Username == "" {
		return nil, &DecodeError{Kind: kind, Err: errors.New("missing username")}
	}
	return &user, nil
}

// Logout signs the user out.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, KindLogout, nil)
	return err
}
