package library

import (
	"math/rand"
	"os"
	"sync"

	"github.com/wavify-audio/wavify-core/internal/queue"
)

// Library is the in-memory catalog of local tracks discovered by Scan. It is
// safe for concurrent use.
type Library struct {
	mu     sync.RWMutex
	tracks map[string]*Track // keyed by checksum
}

// New creates an empty Library.
func New() *Library {
	return &Library{tracks: make(map[string]*Track)}
}

// addOrUpdate inserts t if its checksum is new, otherwise refreshes the
// stored file path (the file may have moved) while keeping the existing
// entry's identity.
func (l *Library) addOrUpdate(t *Track) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.tracks[t.Checksum]; ok {
		existing.FilePath = t.FilePath
		return
	}
	l.tracks[t.Checksum] = t
}

// Count returns the number of tracks currently cataloged.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tracks)
}

// Find returns the track behind a "local:" video id produced by
// Track.LocalVideoID, if it is still cataloged.
func (l *Library) Find(localVideoID string) (*Track, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, t := range l.tracks {
		if t.LocalVideoID() == localVideoID {
			return t, true
		}
	}
	return nil, false
}

// RemoveStale drops any cataloged track whose file no longer exists on disk,
// returning the checksums removed.
func (l *Library) RemoveStale() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []string
	for checksum, t := range l.tracks {
		if _, err := os.Stat(t.FilePath); err != nil {
			delete(l.tracks, checksum)
			removed = append(removed, checksum)
		}
	}
	return removed
}

// Songs returns every cataloged track as a recommendation-seed queue.Song.
func (l *Library) Songs() []queue.Song {
	l.mu.RLock()
	defer l.mu.RUnlock()

	songs := make([]queue.Song, 0, len(l.tracks))
	for _, t := range l.tracks {
		songs = append(songs, t.Song())
	}
	return songs
}

// RandomRecommendations returns up to n cataloged tracks, excluding any whose
// video id is in exclude, in random order. Used to seed the Queue when it
// runs low and no remote recommendation source is configured.
func (l *Library) RandomRecommendations(n int, exclude map[string]bool) []queue.Song {
	candidates := l.Songs()
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	picked := make([]queue.Song, 0, n)
	for _, s := range candidates {
		if exclude[s.VideoID] {
			continue
		}
		picked = append(picked, s)
		if len(picked) == n {
			break
		}
	}
	return picked
}

// ArtworkFor returns embedded cover art for the track behind localVideoID, if
// any. Mirrors the Playback Service's artworkFor cache for remotely resolved
// songs, but reads straight from the file's tags instead of fetching a URL.
func (l *Library) ArtworkFor(localVideoID string) (data []byte, mimeType string, ok bool) {
	t, found := l.Find(localVideoID)
	if !found {
		return nil, "", false
	}
	return artworkBytes(t.FilePath)
}
