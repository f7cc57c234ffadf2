package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/onnwee/livechat-tender/backend/db"
	"github.com/onnwee/livechat-tender/backend/telemetry"
	"github.com/onnwee/livechat-tender/backend/youtubeapi"
)

// HandleJoin is the trigger endpoint: given a live stream's video id it
// resolves the active live chat, and unless a bot execution is already
// present in that chat, enqueues a task to join it. Responses are plain text
// for a human poking the URL, and the handler never retries anything itself.
func (h *Handlers) HandleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()
	log := telemetry.LoggerWithCorr(ctx)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	videoID := r.URL.Query().Get("videoId")
	if videoID == "" {
		fmt.Fprint(w, "Please supply the video ID of a YouTube live stream as a query parameter, i.e. ?videoId=xxx.")
		return
	}

	// Resolve the acting channel: explicit ?channelId=... or, for the common
	// single-credential deployment, the sole stored credential.
	channelID := r.URL.Query().Get("channelId")
	if channelID == "" {
		channels, err := db.ListTokenChannels(ctx, h.db)
		if err != nil {
			log.Error("list credentials failed", slog.Any("err", err))
			http.Error(w, "credential lookup failed", http.StatusInternalServerError)
			return
		}
		switch len(channels) {
		case 0:
			http.Error(w, "no YouTube credential stored; visit /auth/youtube/start first", http.StatusUnauthorized)
			return
		case 1:
			channelID = channels[0]
		default:
			http.Error(w, "multiple channels authorized; supply ?channelId=...", http.StatusBadRequest)
			return
		}
	}

	svc, err := h.youtube.Client(ctx, channelID)
	if err != nil {
		if errors.Is(err, youtubeapi.ErrNoToken) {
			http.Error(w, "channel not authorized; visit /auth/youtube/start first", http.StatusUnauthorized)
			return
		}
		log.Error("youtube client failed", slog.String("channel_id", channelID), slog.Any("err", err))
		http.Error(w, "youtube client failed", http.StatusBadGateway)
		return
	}

	liveChatID, err := youtubeapi.ResolveLiveChatID(ctx, svc, videoID)
	if err != nil {
		log.Warn("live chat resolution failed", slog.String("video_id", videoID), slog.Any("err", err))
		http.Error(w, fmt.Sprintf("could not resolve an active live chat for video %s", videoID), http.StatusNotFound)
		return
	}

	if h.presence.Present(ctx, liveChatID) {
		fmt.Fprint(w, "The bot's already in that chat! Try saying .hi to it, or asking it to .leave! "+
			"If the bot isn't in chat, wait 4 minutes then try adding it again.")
		return
	}

	if err := h.queue.Enqueue(ctx, channelID, liveChatID); err != nil {
		log.Error("enqueue failed", slog.Any("err", err))
		http.Error(w, "failed to enqueue bot task", http.StatusInternalServerError)
		return
	}
	log.Info("bot task enqueued", slog.String("channel_id", channelID), slog.String("session_id", liveChatID))
	fmt.Fprintf(w, "Created the bot task for live chat %s on channel %s! The bot should join the channel soon and say hello :)", liveChatID, channelID)
}
