package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wavify-audio/wavify-core/internal/eqsettings"
)

// EQHandlers holds the gin route handlers for the EQ Settings Store.
type EQHandlers struct {
	store *eqsettings.Store
}

func NewEQHandlers(store *eqsettings.Store) *EQHandlers {
	return &EQHandlers{store: store}
}

// Get handles GET /api/eq.
func (h *EQHandlers) Get(c *gin.Context) {
	ok(c, http.StatusOK, gin.H{"settings": h.store.Current()})
}

// SetEnabled handles PUT /api/eq/enabled with a {"enabled": bool} body.
func (h *EQHandlers) SetEnabled(c *gin.Context) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		failMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}
	h.store.SetEnabled(body.Enabled)
	ok(c, http.StatusOK, gin.H{"settings": h.store.Current()})
}

// SetBand handles PUT /api/eq/bands/:band with a {"gainDb": float} body.
func (h *EQHandlers) SetBand(c *gin.Context) {
	band, err := parseID(c.Param("band"))
	if err != nil {
		failMsg(c, http.StatusBadRequest, "invalid band index")
		return
	}
	var body struct {
		GainDB float64 `json:"gainDb"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		failMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}
	h.store.SetBandGain(int(band), body.GainDB)
	ok(c, http.StatusOK, gin.H{"settings": h.store.Current()})
}

// ApplyPreset handles PUT /api/eq/preset with a {"preset": string} body.
func (h *EQHandlers) ApplyPreset(c *gin.Context) {
	var body struct {
		Preset string `json:"preset"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		failMsg(c, http.StatusBadRequest, "invalid request body")
		return
	}
	h.store.ApplyPreset(eqsettings.Preset(body.Preset))
	ok(c, http.StatusOK, gin.H{"settings": h.store.Current()})
}
