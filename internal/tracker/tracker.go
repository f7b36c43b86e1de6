// Package tracker fires the fire-and-forget playback pings the host
// analytics endpoint expects: an init ping at session start, milestone
// pings at 10/30/60 seconds and then every 60 seconds, and a closing
// attestation ping when the session ends. Built on resty, the HTTP client
// library already present in the retrieved corpus's player manifests, the
// same way a CLI radio player would fire its own station-check requests.
package tracker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// milestonesSeconds are the elapsed-time thresholds (beyond the initial
// ping) at which a watch-time ping fires, before the steady 60s cadence
// takes over.
var milestonesSeconds = []float64{10, 30, 60}

const steadyIntervalSeconds = 60

// Session tracks one playback session's watch-time pings.
type Session struct {
	cpn       string
	clientID  string
	baseURL   string
	client    *resty.Client

	mu          sync.Mutex
	startTime   time.Time
	lastPingAt  float64 // elapsed seconds at the last fired milestone
	nextIdx     int     // index into milestonesSeconds, once exhausted we use the steady cadence
	ended       bool
}

// NewSession creates a tracker session and immediately fires the init ping
// in the background. baseURL may be empty, in which case all pings are
// silently skipped (no tracking endpoint configured).
func NewSession(client *resty.Client, baseURL, cpn, clientID string) *Session {
	s := &Session{
		cpn:      cpn,
		clientID: clientID,
		baseURL:  baseURL,
		client:   client,
		startTime: time.Now(),
	}
	go s.firePing(0, 0, "init")
	return s
}

// Observe is called periodically (e.g. from the same 0.5s timer driving
// song-end detection) with the current elapsed playback time in seconds.
// It fires milestone or steady-cadence pings as thresholds are crossed.
func (s *Session) Observe(elapsedSeconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}

	for s.nextIdx < len(milestonesSeconds) && elapsedSeconds >= milestonesSeconds[s.nextIdx] {
		threshold := milestonesSeconds[s.nextIdx]
		s.nextIdx++
		s.lastPingAt = threshold
		go s.firePing(threshold-10, threshold, "milestone")
	}

	if s.nextIdx >= len(milestonesSeconds) {
		for elapsedSeconds >= s.lastPingAt+steadyIntervalSeconds {
			windowStart := s.lastPingAt
			s.lastPingAt += steadyIntervalSeconds
			windowEnd := s.lastPingAt
			go s.firePing(windowStart, windowEnd, "steady")
		}
	}
}

// End fires the closing attestation ping. Idempotent: a second call is a
// no-op.
func (s *Session) End(elapsedSeconds float64) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	windowStart := s.lastPingAt
	s.mu.Unlock()

	s.firePing(windowStart, elapsedSeconds, "attestation")
}

// firePing issues one GET with a 10s timeout; all failures are swallowed
// after a debug-level log, per the fire-and-forget contract.
func (s *Session) firePing(watchStart, watchEnd float64, kind string) {
	if s.baseURL == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"cpn":  s.cpn,
			"ver":  "2",
			"c":    "WEB_REMIX",
			"cmt":  formatSeconds(watchEnd),
			"st":   formatSeconds(watchStart),
			"et":   formatSeconds(watchEnd),
		}).
		Get(s.baseURL)

	if err != nil {
		slog.Debug("playback tracker ping failed", "kind", kind, "error", err)
	}
}

func formatSeconds(s float64) string {
	if s < 0 {
		s = 0
	}
	return time.Duration(s * float64(time.Second)).String()
}

// NewClient builds the resty client shared by every tracker session,
// configured with the fire-and-forget timeout as its default.
func NewClient() *resty.Client {
	return resty.New().SetTimeout(10 * time.Second)
}
