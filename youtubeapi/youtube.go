// Package youtubeapi wraps Google OAuth2 client config and the YouTube Data
// API for the bot's needs: polling and posting live chat messages, and
// resolving a video id to its active live chat. Tokens are persisted via the
// provided TokenStore interface keyed by channel id, so each channel's bot
// runs on that channel's own credential.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/onnwee/livechat-tender/backend/bot"
	"github.com/onnwee/livechat-tender/backend/config"
)

// ErrNoToken is returned when a channel has no stored credential. The caller
// must complete the OAuth flow before the bot can act for that channel.
var ErrNoToken = errors.New("no youtube token stored for channel")

type TokenStore interface {
	UpsertToken(ctx context.Context, channelID, accessToken, refreshToken string, expiry time.Time, scope string) error
	GetToken(ctx context.Context, channelID string) (accessToken, refreshToken string, expiry time.Time, scope string, err error)
}

type Service struct {
	cfg    *config.Config
	tokens TokenStore
	oauth  *oauth2.Config

	// Options are extra client options applied when building API clients;
	// tests point them at a mock server.
	Options []option.ClientOption
}

func New(cfg *config.Config, ts TokenStore) *Service {
	scopes := []string{"https://www.googleapis.com/auth/youtube"}
	if cfg.YTScopes != "" {
		// allow comma or space separated
		s := strings.ReplaceAll(cfg.YTScopes, ",", " ")
		fields := strings.Fields(s)
		if len(fields) > 0 {
			scopes = fields
		}
	}
	oauth := &oauth2.Config{
		ClientID:     cfg.YTClientID,
		ClientSecret: cfg.YTClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.YTRedirectURI,
		Scopes:       scopes,
	}
	return &Service{cfg: cfg, tokens: ts, oauth: oauth}
}

func (s *Service) AuthCodeURL(state string) string {
	return s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an auth code for a token. The token is not persisted here:
// the caller must first discover which channel owns it (MyChannelID) and then
// store it via StoreToken.
func (s *Service) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return s.oauth.Exchange(ctx, code)
}

// StoreToken persists a token under the owning channel id.
func (s *Service) StoreToken(ctx context.Context, channelID string, tok *oauth2.Token) error {
	return s.tokens.UpsertToken(ctx, channelID, tok.AccessToken, tok.RefreshToken, tok.Expiry, strings.Join(s.oauth.Scopes, " "))
}

// token loads the channel's credential, refreshing and re-persisting it when
// it is within two minutes of expiry.
func (s *Service) token(ctx context.Context, channelID string) (*oauth2.Token, error) {
	access, refresh, expiry, scope, err := s.tokens.GetToken(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if access == "" && refresh == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoToken, channelID)
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: refresh, Expiry: expiry}
	if time.Until(tok.Expiry) > 2*time.Minute {
		return tok, nil
	}
	newTok, err := s.oauth.TokenSource(ctx, tok).Token()
	if err != nil {
		return tok, err
	}
	_ = s.tokens.UpsertToken(ctx, channelID, newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, scope)
	return newTok, nil
}

// Client builds a YouTube API client authorized as the given channel.
func (s *Service) Client(ctx context.Context, channelID string) (*yt.Service, error) {
	tok, err := s.token(ctx, channelID)
	if err != nil {
		return nil, err
	}
	return s.ClientWithToken(ctx, tok)
}

// ClientWithToken builds a YouTube API client from an in-hand token, used by
// the OAuth callback before the owning channel is known.
func (s *Service) ClientWithToken(ctx context.Context, tok *oauth2.Token) (*yt.Service, error) {
	opts := append([]option.ClientOption{option.WithHTTPClient(s.oauth.Client(ctx, tok))}, s.Options...)
	return yt.NewService(ctx, opts...)
}

// MyChannelID returns the channel id the service's credential belongs to.
func MyChannelID(ctx context.Context, svc *yt.Service) (string, error) {
	resp, err := svc.Channels.List([]string{"id"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list own channel: %w", err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("credential has no channel")
	}
	return resp.Items[0].Id, nil
}

// ResolveLiveChatID maps a live stream's video id to its active live chat id.
func ResolveLiveChatID(ctx context.Context, svc *yt.Service, videoID string) (string, error) {
	resp, err := svc.Videos.List([]string{"liveStreamingDetails"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("list video %s: %w", videoID, err)
	}
	if len(resp.Items) == 0 {
		return "", fmt.Errorf("video %s not found", videoID)
	}
	details := resp.Items[0].LiveStreamingDetails
	if details == nil || details.ActiveLiveChatId == "" {
		return "", fmt.Errorf("video %s has no active live chat", videoID)
	}
	return details.ActiveLiveChatId, nil
}

// LiveChatClient implements bot.Feed over the liveChatMessages API.
type LiveChatClient struct {
	Service *yt.Service
}

// liveChatParts selects everything the router needs per message.
var liveChatParts = []string{"id", "snippet", "authorDetails"}

// FetchPage retrieves one page of chat messages newer than cursor. An empty
// cursor asks the feed for the current live position.
func (c *LiveChatClient) FetchPage(ctx context.Context, sessionID, cursor string) (bot.Page, error) {
	call := c.Service.LiveChatMessages.List(sessionID, liveChatParts).Context(ctx)
	if cursor != "" {
		call = call.PageToken(cursor)
	}
	resp, err := call.Do()
	if err != nil {
		return bot.Page{}, fmt.Errorf("list live chat messages: %w", err)
	}

	page := bot.Page{
		NextCursor:   resp.NextPageToken,
		PollInterval: time.Duration(resp.PollingIntervalMillis) * time.Millisecond,
	}
	for _, it := range resp.Items {
		m := bot.Message{ID: it.Id}
		if it.Snippet != nil {
			m.Kind = it.Snippet.Type
			if it.Snippet.TextMessageDetails != nil {
				m.Text = it.Snippet.TextMessageDetails.MessageText
			}
		}
		if it.AuthorDetails != nil {
			m.AuthorName = it.AuthorDetails.DisplayName
			m.IsModerator = it.AuthorDetails.IsChatModerator
			m.IsOwner = it.AuthorDetails.IsChatOwner
		}
		page.Messages = append(page.Messages, m)
	}
	return page, nil
}

// Send posts one text message into the live chat.
func (c *LiveChatClient) Send(ctx context.Context, sessionID, text string) error {
	msg := &yt.LiveChatMessage{
		Snippet: &yt.LiveChatMessageSnippet{
			LiveChatId: sessionID,
			Type:       bot.KindTextMessage,
			TextMessageDetails: &yt.LiveChatTextMessageDetails{
				MessageText: text,
			},
		},
	}
	if _, err := c.Service.LiveChatMessages.Insert([]string{"snippet"}, msg).Context(ctx).Do(); err != nil {
		return fmt.Errorf("insert live chat message: %w", err)
	}
	return nil
}
