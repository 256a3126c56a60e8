package gate

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 200 * time.Millisecond

const (
	errFmtCreateWatcher = "failed to create file watcher: %w"
	errFmtWatchDir      = "failed to watch %s: %w"
	logFmtWordsReloaded = "Reloaded %d sensitive words from %s"
	logFmtReloadFailed  = "Failed to reload sensitive words: %v"
	logFmtWatcherError  = "Sensitive word watcher error: %v"
)

type wordsDocument struct {
	Words []string `json:"words"`
}

// WordFilter holds the sensitive word list and scans text against it.
type WordFilter struct {
	log   *logger.Logger
	path  string
	words []string
	mu    sync.RWMutex
}

// NewWordFilter loads the word list at path. A missing file yields an empty list.
func NewWordFilter(path string, log *logger.Logger) (*WordFilter, error) {
	filter := &WordFilter{path: path, log: log}

	err := filter.Reload()
	if err != nil {
		return nil, err
	}

	return filter, nil
}

// Words returns a sorted copy of the list.
func (f *WordFilter) Words() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return append([]string(nil), f.words...)
}

// SetWords replaces and persists the list.
func (f *WordFilter) SetWords(words []string) error {
	normalized := normalizeWords(words)

	f.mu.Lock()
	defer f.mu.Unlock()

	err := saveJSON(f.path, wordsDocument{Words: normalized})
	if err != nil {
		return err
	}

	f.words = normalized

	return nil
}

// Scan returns the first listed word contained in text, ignoring case.
func (f *WordFilter) Scan(text string) (string, bool) {
	lowered := strings.ToLower(text)

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, word := range f.words {
		if strings.Contains(lowered, strings.ToLower(word)) {
			return word, true
		}
	}

	return "", false
}

// Reload rereads the list from disk.
func (f *WordFilter) Reload() error {
	var doc wordsDocument

	err := loadJSON(f.path, &doc)
	if err != nil {
		return err
	}

	normalized := normalizeWords(doc.Words)

	f.mu.Lock()
	f.words = normalized
	f.mu.Unlock()

	return nil
}

// Watch reloads the list whenever its file changes, until ctx is done.
// The directory is watched because saves replace the file by rename.
func (f *WordFilter) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf(errFmtCreateWatcher, err)
	}
	defer watcher.Close()

	dir := filepath.Dir(f.path)

	addErr := watcher.Add(dir)
	if addErr != nil {
		return fmt.Errorf(errFmtWatchDir, dir, addErr)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)

	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	name := filepath.Base(f.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Base(event.Name) != name || event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			timerMu.Lock()
			if timer != nil {
				timer.Reset(reloadDebounce)
			} else {
				timer = time.AfterFunc(reloadDebounce, f.reloadAndLog)
			}
			timerMu.Unlock()

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			f.log.Warn(logFmtWatcherError, watchErr)
		}
	}
}

func (f *WordFilter) reloadAndLog() {
	err := f.Reload()
	if err != nil {
		f.log.Warn(logFmtReloadFailed, err)

		return
	}

	f.log.Info(logFmtWordsReloaded, len(f.Words()), f.path)
}

func normalizeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	normalized := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.TrimSpace(word)
		if word == "" {
			continue
		}

		key := strings.ToLower(word)
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		normalized = append(normalized, word)
	}

	sort.Strings(normalized)

	return normalized
}
