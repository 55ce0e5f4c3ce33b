package imagelink

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// FilePublisher is what the directory watcher needs from a ClientSession.
type FilePublisher interface {
	PublishFile(path, viewerName string, replaceExisting bool) (uint64, error)
}

type DirectoryWatcherOption func(*DirectoryWatcher)

func WithWatchViewer(viewerName string) DirectoryWatcherOption {
	return func(w *DirectoryWatcher) {
		w.viewerName = viewerName
	}
}

// WithRepublishOnWrite announces a file again, replacing the old entry, each
// time it is written after its first announcement.
func WithRepublishOnWrite() DirectoryWatcherOption {
	return func(w *DirectoryWatcher) {
		w.republishOnWrite = true
	}
}

// WithPublishRate throttles announcements, a directory full of files would
// otherwise be announced in one burst.
func WithPublishRate(limit rate.Limit, burst int) DirectoryWatcherOption {
	return func(w *DirectoryWatcher) {
		w.limiter = rate.NewLimiter(limit, burst)
	}
}

func WithWatchLogger(logger zerolog.Logger) DirectoryWatcherOption {
	return func(w *DirectoryWatcher) {
		w.logger = logger
	}
}

// DirectoryWatcher publishes every file of a directory matching pattern,
// first the ones already there and then each new one.
type DirectoryWatcher struct {
	dir              string
	pattern          string
	publisher        FilePublisher
	viewerName       string
	republishOnWrite bool
	limiter          *rate.Limiter
	logger           zerolog.Logger

	mtx       sync.Mutex
	published map[string]uint64
}

func NewDirectoryWatcher(dir, pattern string, publisher FilePublisher, options ...DirectoryWatcherOption) *DirectoryWatcher {
	if pattern == "" {
		pattern = "*"
	}
	watcher := &DirectoryWatcher{
		dir:       dir,
		pattern:   pattern,
		publisher: publisher,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    log.Logger.With().Str("component", "imagelink-dirwatch").Str("dir", dir).Logger(),
		published: make(map[string]uint64),
	}
	for _, option := range options {
		option(watcher)
	}
	return watcher
}

// Run watches until ctx is done. Only failing to set up the watch is
// returned, publish errors are logged.
func (w *DirectoryWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	if err := w.publishExisting(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.onEvent(ctx, event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("watch")
		}
	}
}

func (w *DirectoryWatcher) publishExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && w.matches(entry.Name()) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		w.publish(ctx, filepath.Join(w.dir, name), false)
	}
	return nil
}

func (w *DirectoryWatcher) onEvent(ctx context.Context, event fsnotify.Event) {
	if !w.matches(filepath.Base(event.Name)) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err != nil || info.IsDir() {
			return
		}
		if !w.isPublished(event.Name) {
			w.publish(ctx, event.Name, false)
		}
	case event.Has(fsnotify.Write):
		if w.republishOnWrite && w.isPublished(event.Name) {
			w.publish(ctx, event.Name, true)
		}
	}
}

func (w *DirectoryWatcher) matches(name string) bool {
	matched, err := filepath.Match(w.pattern, name)
	if err != nil {
		w.logger.Error().Err(err).Str("pattern", w.pattern).Msg("Match")
		return false
	}
	return matched
}

func (w *DirectoryWatcher) isPublished(path string) bool {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	_, found := w.published[path]
	return found
}

func (w *DirectoryWatcher) publish(ctx context.Context, path string, replaceExisting bool) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}
	imageID, err := w.publisher.PublishFile(path, w.viewerName, replaceExisting)
	if err != nil {
		w.logger.Error().Err(err).Str("path", path).Msg("PublishFile")
		return
	}
	w.logger.Info().Str("path", path).Uint64("imageId", imageID).Msg("published")

	w.mtx.Lock()
	w.published[path] = imageID
	w.mtx.Unlock()
}

// Published maps every announced path to its latest image id.
func (w *DirectoryWatcher) Published() map[string]uint64 {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	published := make(map[string]uint64, len(w.published))
	for path, imageID := range w.published {
		published[path] = imageID
	}
	return published
}
