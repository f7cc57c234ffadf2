package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockYouTubeServer creates a test server that mocks YouTube Data API responses
type MockYouTubeServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockYouTubeServer creates a new mock YouTube API server. Wire it into a
// youtubeapi.Service with option.WithEndpoint(m.URL).
func NewMockYouTubeServer(t *testing.T) *MockYouTubeServer {
	t.Helper()
	m := &MockYouTubeServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockChatPageResponse adds a handler for the liveChat/messages list endpoint
func (m *MockYouTubeServer) MockChatPageResponse(items []map[string]interface{}, nextPageToken string, pollingIntervalMillis int) {
	m.Handlers["/youtube/v3/liveChat/messages"] = func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			// Insert call: echo back a minimal message resource
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "sent"}) //nolint:errcheck // test mock response
			return
		}
		response := map[string]interface{}{
			"items":                 items,
			"nextPageToken":         nextPageToken,
			"pollingIntervalMillis": pollingIntervalMillis,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// ChatItem builds one liveChatMessage resource for MockChatPageResponse
func ChatItem(id, kind, text, author string, isMod, isOwner bool) map[string]interface{} {
	return map[string]interface{}{
		"id": id,
		"snippet": map[string]interface{}{
			"type": kind,
			"textMessageDetails": map[string]interface{}{
				"messageText": text,
			},
		},
		"authorDetails": map[string]interface{}{
			"displayName":     author,
			"isChatModerator": isMod,
			"isChatOwner":     isOwner,
		},
	}
}

// MockVideoResponse adds a handler for the videos list endpoint returning the
// given active live chat id
func (m *MockYouTubeServer) MockVideoResponse(videoID, liveChatID string) {
	m.Handlers["/youtube/v3/videos"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"items": []map[string]interface{}{
				{
					"id": videoID,
					"liveStreamingDetails": map[string]interface{}{
						"activeLiveChatId": liveChatID,
					},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockChannelResponse adds a handler for the channels list endpoint
func (m *MockYouTubeServer) MockChannelResponse(channelID string) {
	m.Handlers["/youtube/v3/channels"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"items": []map[string]interface{}{
				{"id": channelID},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockOAuthTokenResponse adds a handler for an OAuth token endpoint
func (m *MockYouTubeServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handlers["/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
