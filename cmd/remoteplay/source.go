package main

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ============================================================================
// Media source providers
// ============================================================================
//
// A source provider decides how new media reaches the playlist:
//
//   upload  the HTTP upload handler announces each stored file directly
//   folder  the media directory is watched; any new file (uploaded, copied in,
//           synced) is announced once it has settled
//
// Both end in the same MediaArrived event, so the controller has one code path.
// ============================================================================

const (
	SourceProviderUpload = "upload"
	SourceProviderFolder = "folder"
)

// ArrivalNotifier is told about files the HTTP API stored.
type ArrivalNotifier interface {
	NotifyArrival(ctx context.Context, fileName, filePath string) error
}

type SourceProvider interface {
	Name() string
	Notifier() ArrivalNotifier
	Run(ctx context.Context) error
}

type submitFunc func(ctx context.Context, src Source, ev Event) error

func newSourceProvider(cfg SourceConfig, dir string, submit submitFunc, logger *slog.Logger) (SourceProvider, error) {
	switch cfg.Provider {
	case "", SourceProviderUpload:
		return &uploadSource{submit: submit, autoplay: cfg.Autoplay}, nil
	case SourceProviderFolder:
		return newFolderSource(dir, time.Duration(cfg.SettleMS)*time.Millisecond, cfg.Autoplay, submit, logger), nil
	default:
		return nil, fmt.Errorf("unknown source provider %q", cfg.Provider)
	}
}

// ============================================================================
// upload
// ============================================================================

type uploadSource struct {
	submit   submitFunc
	autoplay bool
}

func (*uploadSource) Name() string                { return SourceProviderUpload }
func (u *uploadSource) Notifier() ArrivalNotifier { return u }

func (u *uploadSource) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (u *uploadSource) NotifyArrival(ctx context.Context, fileName, filePath string) error {
	return u.submit(ctx, SourceStore, MediaArrived{FileName: fileName, FilePath: filePath, Autoplay: u.autoplay})
}

// ============================================================================
// folder
// ============================================================================

type folderSource struct {
	dir      string
	settle   time.Duration
	autoplay bool
	submit   submitFunc
	logger   *slog.Logger
}

func newFolderSource(dir string, settle time.Duration, autoplay bool, submit submitFunc, logger *slog.Logger) *folderSource {
	if settle <= 0 {
		settle = 750 * time.Millisecond
	}
	return &folderSource{dir: dir, settle: settle, autoplay: autoplay, submit: submit, logger: logger}
}

func (*folderSource) Name() string { return SourceProviderFolder }

// Notifier is a no-op: the watcher sees uploads land in the directory.
func (*folderSource) Notifier() ArrivalNotifier { return nopNotifier{} }

type nopNotifier struct{}

func (nopNotifier) NotifyArrival(context.Context, string, string) error { return nil }

// Run announces files already present (without autoplay), then watches for new ones.
func (f *folderSource) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}

	seen := make(map[string]bool)

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", f.dir, err)
	}
	for _, e := range entries {
		if !e.Type().IsRegular() || !isMediaFile(e.Name()) {
			continue
		}
		path := filepath.Join(f.dir, e.Name())
		seen[path] = true
		if err := f.submit(ctx, SourceStore, MediaArrived{FileName: e.Name(), FilePath: path}); err != nil {
			return nil
		}
	}
	f.logger.Info("watching media folder", "dir", f.dir, "existing", len(seen))

	// Debounce per path: announce once no event arrived for the settle window.
	ready := make(chan string, 16)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("folder watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(event.Name)
			if !isMediaFile(name) {
				continue
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				delete(seen, event.Name)
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			path := event.Name
			// A replacement renamed over an announced file is a new arrival.
			if event.Has(fsnotify.Create) {
				delete(seen, path)
			}
			if t, ok := timers[path]; ok {
				t.Reset(f.settle)
				continue
			}
			timers[path] = time.AfterFunc(f.settle, func() {
				select {
				case ready <- path:
				case <-ctx.Done():
				}
			})

		case path := <-ready:
			delete(timers, path)
			if seen[path] {
				continue
			}
			if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
				continue
			}
			seen[path] = true
			f.logger.Info("media arrived", "file", filepath.Base(path))
			if err := f.submit(ctx, SourceStore, MediaArrived{
				FileName: filepath.Base(path),
				FilePath: path,
				Autoplay: f.autoplay,
			}); err != nil {
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("folder watcher error", "error", err)
		}
	}
}

var mediaExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mkv": true, ".webm": true, ".mov": true,
	".avi": true, ".mpg": true, ".mpeg": true, ".ts": true, ".ogv": true,
	".wmv": true, ".flv": true, ".3gp": true,
}

// isMediaFile accepts visible files with a known video extension or a video/* MIME type.
func isMediaFile(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	if mediaExtensions[ext] {
		return true
	}
	return strings.HasPrefix(mime.TypeByExtension(ext), "video/")
}
