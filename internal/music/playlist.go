// Package music implements the music playback action of §4.5: playlist
// search and cursor management, FLAC decoding, and spoken-volume parsing.
package music

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// MaxPlaylistLength bounds the number of matches collected per "play"
// command.
const MaxPlaylistLength = 256

// Playlist is a bounded, ordered list of FLAC file paths plus a cursor to
// the current track, recreated on each new "play" command.
type Playlist struct {
	Tracks []string
	Cursor int
}

// Search recursively scans dir for FLAC files matching title,
// case-insensitively: each space in title becomes a "*" wildcard and the
// whole pattern gets a "*.flac" suffix, per §4.5.
func Search(dir, title string) (*Playlist, error) {
	pattern := "*" + strings.Join(strings.Fields(title), "*") + "*.flac"
	pattern = strings.ToLower(pattern)

	var matches []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries, keep scanning
		}
		if info.IsDir() {
			return nil
		}
		ok, matchErr := filepath.Match(pattern, strings.ToLower(info.Name()))
		if matchErr == nil && ok {
			matches = append(matches, path)
			if len(matches) >= MaxPlaylistLength {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("music: search %s: %w", dir, err)
	}

	sort.Strings(matches)
	return &Playlist{Tracks: matches, Cursor: 0}, nil
}

// Current returns the path at the cursor, or "" if the playlist is empty.
func (p *Playlist) Current() string {
	if len(p.Tracks) == 0 {
		return ""
	}
	return p.Tracks[p.Cursor]
}

// Next advances the cursor modulo the playlist length. No-op on an empty
// playlist.
func (p *Playlist) Next() {
	if len(p.Tracks) == 0 {
		return
	}
	p.Cursor = (p.Cursor + 1) % len(p.Tracks)
}

// Previous rewinds the cursor modulo the playlist length. No-op on an empty
// playlist.
func (p *Playlist) Previous() {
	if len(p.Tracks) == 0 {
		return
	}
	p.Cursor = (p.Cursor - 1 + len(p.Tracks)) % len(p.Tracks)
}

// Player owns the single in-flight music-playback task: only one task runs
// at a time, and a new Play/Next/Previous first cancels and waits for the
// current one.
type Player struct {
	mu       sync.Mutex
	list     *Playlist
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	sink     Sink
	volume   float64
}

// Sink plays decoded PCM frames; the same capability TTS playback uses.
type Sink interface {
	WriteChunk(samples []float32) error
}

// NewPlayer creates a music player writing to sink at the given starting
// volume.
func NewPlayer(sink Sink) *Player {
	return &Player{sink: sink, volume: 1.0}
}

// SetVolume sets playback gain, expected to already be validated by
// ParseVolume.
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

// stopCurrent cancels and joins the in-flight task, if any.
func (p *Player) stopCurrent() {
	if p.cancel != nil {
		p.cancel()
		p.wg.Wait()
		p.cancel = nil
	}
}

// Play replaces the playlist with a fresh search result and starts playing
// its first track.
func (p *Player) Play(musicDir, title string) error {
	list, err := Search(musicDir, title)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopCurrent()
	p.list = list

	if list.Current() == "" {
		return nil
	}
	p.startLocked()
	return nil
}

// Next stops the current task (if any) and starts playing the next track.
func (p *Player) Next() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.list == nil || len(p.list.Tracks) == 0 {
		return
	}
	p.stopCurrent()
	p.list.Next()
	p.startLocked()
}

// Previous stops the current task (if any) and starts playing the previous
// track.
func (p *Player) Previous() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.list == nil || len(p.list.Tracks) == 0 {
		return
	}
	p.stopCurrent()
	p.list.Previous()
	p.startLocked()
}

// Stop signals the current task to stop without joining it — the task
// terminates on its own, per §4.5.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// startLocked spawns the decode+playback task for the current track.
// Caller must hold p.mu.
func (p *Player) startLocked() {
	track := p.list.Current()
	if track == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		if err := DecodeAndPlay(ctx, track, p.sink, p.volume); err != nil {
			fmt.Printf("[music] playback of %s stopped: %v\n", track, err)
		}
	}()
}
