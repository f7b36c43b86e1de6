// Package library catalogs audio files found on local disk and offers them
// up as recommendation seeds for the Queue, the way the station's music
// directory scan fed its playlists — but keyed for a single listener's queue
// rather than a broadcast schedule.
package library

import (
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"

	"github.com/wavify-audio/wavify-core/internal/queue"
)

// SupportedFormats lists the audio file extensions recognized during a scan.
var SupportedFormats = []string{".mp3", ".wav", ".flac", ".aac", ".ogg", ".m4a"}

// IsSupportedFormat returns true if ext (including the leading dot) names a
// supported audio format.
func IsSupportedFormat(ext string) bool {
	lower := strings.ToLower(ext)
	for _, f := range SupportedFormats {
		if lower == f {
			return true
		}
	}
	return false
}

// Track is a single local audio file with metadata read from its tags.
// Checksum is the catalog's dedup and stable-identity key: a file that gets
// renamed or moved is still recognized as the same track.
type Track struct {
	Title    string
	Artist   string
	Album    string
	Year     int
	FilePath string
	Format   string
	Checksum string
}

// LocalVideoID derives the synthetic id this track is addressed by within
// the Queue. Local tracks never go through the Stream Extractor; playback
// of a "local:" id is resolved directly from FilePath by whatever decoder
// front-end recognizes the scheme.
func (t *Track) LocalVideoID() string {
	return "local:" + t.Checksum[:12]
}

// Song converts the track to a queue.Song recommendation seed.
func (t *Track) Song() queue.Song {
	artist := t.Artist
	if artist == "" {
		artist = "Unknown Artist"
	}
	return queue.Song{
		VideoID:          t.LocalVideoID(),
		Title:            t.Title,
		Artist:           artist,
		IsRecommendation: true,
	}
}

// newTrackFromFile reads tags and computes a checksum for the audio file at
// path.
func newTrackFromFile(path string) (*Track, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	filename := filepath.Base(absPath)
	title := strings.TrimSuffix(filename, filepath.Ext(filename))

	checksum, err := computeChecksum(absPath)
	if err != nil {
		return nil, fmt.Errorf("checksum %s: %w", absPath, err)
	}

	track := &Track{
		Title:    title,
		FilePath: absPath,
		Format:   strings.TrimPrefix(ext, "."),
		Checksum: checksum,
	}
	extractTrackMetadata(track, absPath)
	return track, nil
}

func computeChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// extractTrackMetadata reads ID3/Vorbis/MP4 tags and fills in whatever the
// filename-based defaults didn't already cover.
func extractTrackMetadata(track *Track, path string) {
	f, err := os.Open(path)
	if err != nil {
		slog.Warn("library: could not open file for metadata", "path", path, "error", err)
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		slog.Debug("library: could not read tags", "path", path, "error", err)
		return
	}

	if m.Title() != "" {
		track.Title = m.Title()
	}
	if m.Artist() != "" {
		track.Artist = m.Artist()
	}
	if m.Album() != "" {
		track.Album = m.Album()
	}
	if m.Year() != 0 {
		track.Year = m.Year()
	}
}

// artworkBytes extracts embedded cover art, if any, for Library.ArtworkFor.
func artworkBytes(path string) ([]byte, string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", false
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, "", false
	}
	pic := m.Picture()
	if pic == nil {
		return nil, "", false
	}
	return pic.Data, pic.MIMEType, true
}
