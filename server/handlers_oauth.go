package server

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/livechat-tender/backend/youtubeapi"
)

// HandleYouTubeOAuthStart initiates the YouTube OAuth flow.
func (h *Handlers) HandleYouTubeOAuthStart(w http.ResponseWriter, r *http.Request) {
	// generate state
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		http.Error(w, "state gen error", 500)
		return
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, time.Now().Add(10*time.Minute))
	http.Redirect(w, r, h.youtube.AuthCodeURL(st), http.StatusFound)
}

// HandleYouTubeOAuthCallback exchanges the auth code, discovers which channel
// the credential belongs to, and stores the token under that channel id.
func (h *Handlers) HandleYouTubeOAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	st := r.URL.Query().Get("state")
	if code == "" || st == "" {
		http.Error(w, "missing code/state", 400)
		return
	}
	if !h.takeOAuthState(st) {
		http.Error(w, "invalid state", 400)
		return
	}
	ctx := r.Context()

	tok, err := h.youtube.Exchange(ctx, code)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	svc, err := h.youtube.ClientWithToken(ctx, tok)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	channelID, err := youtubeapi.MyChannelID(ctx, svc)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if err := h.youtube.StoreToken(ctx, channelID, tok); err != nil {
		http.Error(w, err.Error(), 500)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"status":                "ok",
		"channel_id":            channelID,
		"expiry":                tok.Expiry,
		"access_token_present":  tok.AccessToken != "",
		"refresh_token_present": tok.RefreshToken != "",
	}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
