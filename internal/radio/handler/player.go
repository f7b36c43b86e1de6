package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wavify-audio/wavify-core/internal/queue"
	"github.com/wavify-audio/wavify-core/internal/radio/service"
)

// PlayerHandlers holds the gin route handlers for transport control,
// status, and queue manipulation.
type PlayerHandlers struct {
	player *service.Player
}

func NewPlayerHandlers(player *service.Player) *PlayerHandlers {
	return &PlayerHandlers{player: player}
}

// Status handles GET /api/status.
func (h *PlayerHandlers) Status(c *gin.Context) {
	snap := h.player.Status()
	ok(c, http.StatusOK, gin.H{
		"song":            snap.Song,
		"playing":         snap.Playing,
		"elapsedSeconds":  snap.Elapsed.Seconds(),
		"durationSeconds": snap.Duration.Seconds(),
		"loopMode":        int(snap.LoopMode),
		"shuffleEnabled":  snap.ShuffleEnabled,
		"queueLength":     snap.QueueLength,
		"crossfadeState":  snap.CrossfadeState,
	})
}

// Toggle handles POST /api/playback/toggle.
func (h *PlayerHandlers) Toggle(c *gin.Context) {
	h.player.Toggle()
	ok(c, http.StatusOK, gin.H{})
}

// Next handles POST /api/playback/next.
func (h *PlayerHandlers) Next(c *gin.Context) {
	if err := h.player.Next(c.Request.Context()); err != nil {
		fail(c, http.StatusConflict, err)
		return
	}
	ok(c, http.StatusOK, gin.H{})
}

// Previous handles POST /api/playback/previous.
func (h *PlayerHandlers) Previous(c *gin.Context) {
	if err := h.player.Previous(c.Request.Context()); err != nil {
		fail(c, http.StatusConflict, err)
		return
	}
	ok(c, http.StatusOK, gin.H{})
}

// Seek handles POST /api/playback/seek?seconds=12.5
func (h *PlayerHandlers) Seek(c *gin.Context) {
	d, err := parseSeekSeconds(c.Query("seconds"))
	if err != nil {
		failMsg(c, http.StatusBadRequest, "invalid seconds")
		return
	}
	h.player.Seek(c.Request.Context(), d)
	ok(c, http.StatusOK, gin.H{})
}

// Enqueue handles POST /api/queue with a Song body, appending to the
// user-queue.
func (h *PlayerHandlers) Enqueue(c *gin.Context) {
	var song queue.Song
	if err := c.ShouldBindJSON(&song); err != nil {
		failMsg(c, http.StatusBadRequest, "invalid song body")
		return
	}
	h.player.Enqueue(song)
	ok(c, http.StatusCreated, gin.H{"song": song})
}

// PlayNow handles POST /api/queue/play-now with a Song body, inserting it
// immediately after the current song and loading it.
func (h *PlayerHandlers) PlayNow(c *gin.Context) {
	var song queue.Song
	if err := c.ShouldBindJSON(&song); err != nil {
		failMsg(c, http.StatusBadRequest, "invalid song body")
		return
	}
	if err := h.player.PlayNow(c.Request.Context(), song); err != nil {
		fail(c, http.StatusConflict, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"song": song})
}

// CycleLoopMode handles POST /api/queue/loop-mode.
func (h *PlayerHandlers) CycleLoopMode(c *gin.Context) {
	mode := h.player.CycleLoopMode()
	ok(c, http.StatusOK, gin.H{"loopMode": int(mode)})
}

// SetShuffle handles PUT /api/queue/shuffle with a {"enabled": bool} body.
func (h *PlayerHandlers) SetShuffle(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		failMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}
	h.player.SetShuffle(body.Enabled)
	ok(c, http.StatusOK, gin.H{"shuffleEnabled": body.Enabled})
}
