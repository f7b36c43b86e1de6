package queue

import (
	"math/rand"
	"sync"
)

// LoopMode cycles none -> one -> all -> none under Queue.CycleLoopMode.
type LoopMode int

const (
	LoopNone LoopMode = iota
	LoopOne
	LoopAll
)

// Next advances a loop mode through the fixed cycle none -> one -> all.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopNone:
		return LoopOne
	case LoopOne:
		return LoopAll
	default:
		return LoopNone
	}
}

// recommendationThreshold is the "songs_remaining" floor below which a
// background task is asked to load more recommendations, when the queue is
// not sourced from an album and loop mode is none.
const recommendationThreshold = 10

// RecommendationLoader is invoked in the background whenever the queue
// runs low, so it can append more songs asynchronously.
type RecommendationLoader func()

// Queue holds the ordered song list, the user-queue prefix, shuffle state,
// and loop mode. All mutating methods are safe for concurrent use from the
// single main coordination task (per the ordering guarantee, callers are
// expected to be single-threaded in practice, but the mutex makes the type
// safe regardless).
type Queue struct {
	mu sync.Mutex

	ordered      []Song
	currentIndex int
	userQueue    []Song // prefix of songs inserted ahead of the ordered list

	isFromAlbum bool
	loopMode    LoopMode

	shuffleIndices []int
	shuffleCursor  int
	shuffleEnabled bool

	onNeedRecommendations RecommendationLoader
	recommendationsLoading bool
}

// New builds an empty queue.
func New() *Queue {
	return &Queue{currentIndex: -1}
}

// SetOnNeedRecommendations installs the callback invoked (in a new
// goroutine) when the queue runs low on remaining songs.
func (q *Queue) SetOnNeedRecommendations(fn RecommendationLoader) {
	q.mu.Lock()
	q.onNeedRecommendations = fn
	q.mu.Unlock()
}

// Load replaces the ordered song list and resets to the given start index.
// isFromAlbum disables the low-queue recommendation trigger.
func (q *Queue) Load(songs []Song, startIndex int, isFromAlbum bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ordered = append([]Song(nil), songs...)
	q.userQueue = nil
	q.isFromAlbum = isFromAlbum
	if startIndex < 0 {
		startIndex = 0
	}
	if startIndex >= len(q.ordered) {
		startIndex = len(q.ordered) - 1
	}
	q.currentIndex = startIndex
	q.shuffleIndices = nil
	q.shuffleCursor = 0
}

// Current returns the song at currentIndex, or false if the queue is empty
// or the index is out of range.
func (q *Queue) Current() (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentLocked()
}

func (q *Queue) currentLocked() (Song, bool) {
	if q.currentIndex < 0 || q.currentIndex >= len(q.ordered) {
		return Song{}, false
	}
	return q.ordered[q.currentIndex], true
}

// PlayNext prepends song to the user-queue, so it plays immediately after
// the current song.
func (q *Queue) PlayNext(song Song) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.userQueue = append([]Song{song}, q.userQueue...)
}

// AddToQueue appends song to the user-queue unless it is already present
// there.
func (q *Queue) AddToQueue(song Song) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.userQueue {
		if s.Equal(song) {
			return
		}
	}
	q.userQueue = append(q.userQueue, song)
}

// MoveToNext advances the queue and returns the new current song. If the
// new current song was consumed from the user-queue, it is removed from
// there. Returns false if at the end of the ordered list under
// LoopNone (nothing more to play).
func (q *Queue) MoveToNext() (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loopMode == LoopOne {
		return q.currentLocked()
	}

	if len(q.userQueue) > 0 {
		next := q.userQueue[0]
		q.userQueue = q.userQueue[1:]
		for i, s := range q.ordered {
			if s.Equal(next) {
				q.currentIndex = i
				q.maybeTriggerRecommendationsLocked()
				return next, true
			}
		}
		// Not present in ordered (a queued song outside the album/playlist):
		// splice it in immediately after the current index.
		insertAt := q.currentIndex + 1
		q.ordered = insertSong(q.ordered, insertAt, next)
		q.currentIndex = insertAt
		q.maybeTriggerRecommendationsLocked()
		return next, true
	}

	if q.currentIndex+1 < len(q.ordered) {
		q.currentIndex++
		q.maybeTriggerRecommendationsLocked()
		return q.currentLocked()
	}

	if q.loopMode == LoopAll && len(q.ordered) > 0 {
		q.currentIndex = 0
		return q.currentLocked()
	}

	return Song{}, false
}

// MoveToPrevious decrements currentIndex if it is greater than zero.
func (q *Queue) MoveToPrevious() (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.currentIndex > 0 {
		q.currentIndex--
	}
	return q.currentLocked()
}

// PeekNext returns what MoveToNext would return, without mutating the
// queue. Used by the Crossfade Engine's preload step, which needs to know
// (and start resolving/decoding) the next song well before the queue
// actually advances onto it.
func (q *Queue) PeekNext() (Song, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loopMode == LoopOne {
		return q.currentLocked()
	}
	if len(q.userQueue) > 0 {
		return q.userQueue[0], true
	}
	if q.currentIndex+1 < len(q.ordered) {
		return q.ordered[q.currentIndex+1], true
	}
	if q.loopMode == LoopAll && len(q.ordered) > 0 {
		return q.ordered[0], true
	}
	return Song{}, false
}

// SongsRemaining returns how many ordered songs remain after the current
// index (not counting the user-queue prefix).
func (q *Queue) SongsRemaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	remaining := len(q.ordered) - q.currentIndex - 1
	if remaining < 0 {
		return 0
	}
	return remaining
}

// maybeTriggerRecommendationsLocked fires the recommendation loader (once,
// until it returns) when the queue is running low, not from an album, and
// not looping. Caller must hold q.mu.
func (q *Queue) maybeTriggerRecommendationsLocked() {
	if q.isFromAlbum || q.loopMode != LoopNone {
		return
	}
	if q.recommendationsLoading {
		return
	}
	remaining := len(q.ordered) - q.currentIndex - 1
	if remaining >= recommendationThreshold {
		return
	}
	if q.onNeedRecommendations == nil {
		return
	}
	q.recommendationsLoading = true
	loader := q.onNeedRecommendations
	go func() {
		loader()
	}()
}

// RecommendationsLoaded marks the in-flight recommendation load as
// complete, allowing a future low-queue condition to trigger another load.
// Callers append the fetched songs via AppendRecommendations first.
func (q *Queue) RecommendationsLoaded() {
	q.mu.Lock()
	q.recommendationsLoading = false
	q.mu.Unlock()
}

// AppendRecommendations appends songs to the end of the ordered list.
func (q *Queue) AppendRecommendations(songs []Song) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ordered = append(q.ordered, songs...)
}

// CycleLoopMode advances the loop mode through none -> one -> all -> none.
func (q *Queue) CycleLoopMode() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.loopMode = q.loopMode.Next()
	return q.loopMode
}

// LoopMode returns the current loop mode.
func (q *Queue) LoopMode() LoopMode {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.loopMode
}

// EnableShuffle computes a fresh random permutation of [0, len(ordered))
// and resets the shuffle cursor to the position of the current song.
func (q *Queue) EnableShuffle(rng *rand.Rand) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.ordered)
	q.shuffleIndices = rng.Perm(n)
	q.shuffleEnabled = true

	for i, idx := range q.shuffleIndices {
		if idx == q.currentIndex {
			q.shuffleCursor = i
			break
		}
	}
}

// DisableShuffle discards the shuffle permutation. MoveToNext and
// MoveToPrevious walk the ordered list in sequence whether or not shuffle
// is enabled; only GetNextShuffleIndex reads the permutation.
func (q *Queue) DisableShuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffleEnabled = false
	q.shuffleIndices = nil
}

// ShuffleEnabled reports whether shuffle mode is active.
func (q *Queue) ShuffleEnabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shuffleEnabled
}

// GetNextShuffleIndex advances the shuffle cursor and returns the ordered
// index it now points to. Returns false if past the end and loop mode is
// not LoopAll; wraps to 0 under LoopAll.
func (q *Queue) GetNextShuffleIndex() (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.shuffleEnabled || len(q.shuffleIndices) == 0 {
		return 0, false
	}

	q.shuffleCursor++
	if q.shuffleCursor >= len(q.shuffleIndices) {
		if q.loopMode == LoopAll {
			q.shuffleCursor = 0
		} else {
			q.shuffleCursor = len(q.shuffleIndices)
			return 0, false
		}
	}
	return q.shuffleIndices[q.shuffleCursor], true
}

// Ordered returns a copy of the ordered song list.
func (q *Queue) Ordered() []Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Song(nil), q.ordered...)
}

// CurrentIndex returns the current index into the ordered list.
func (q *Queue) CurrentIndex() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.currentIndex
}

// UserQueue returns a copy of the user-queue prefix.
func (q *Queue) UserQueue() []Song {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Song(nil), q.userQueue...)
}

func insertSong(songs []Song, at int, s Song) []Song {
	if at < 0 {
		at = 0
	}
	if at > len(songs) {
		at = len(songs)
	}
	out := make([]Song, 0, len(songs)+1)
	out = append(out, songs[:at]...)
	out = append(out, s)
	out = append(out, songs[at:]...)
	return out
}
