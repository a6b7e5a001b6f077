// Package library is the file-system media store: it lists photos and videos
// under a set of folders, rasterizes them for the engine and moves deleted
// items to the trash.
package library

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"mediadupfinder/internal/fileutil"
	"mediadupfinder/internal/hash"
	"mediadupfinder/internal/models"
)

// DeleteError reports the assets a Delete call could not remove
type DeleteError struct {
	Failed []models.AssetRef
	Err    error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("failed to delete %d assets: %v", len(e.Failed), e.Err)
}

func (e *DeleteError) Unwrap() error {
	return e.Err
}

// Library serves the media files found under its roots
type Library struct {
	roots  []string
	remove func(path string) error
	ffmpeg *ffmpeg
	log    zerolog.Logger

	mu    sync.RWMutex
	known map[string]models.AssetRef
}

// Option configures a Library
type Option func(*Library)

// WithRemover replaces the trash as the destination of deleted files
func WithRemover(fn func(path string) error) Option {
	return func(l *Library) {
		if fn != nil {
			l.remove = fn
		}
	}
}

// WithFFmpeg sets the ffmpeg executable used for video keyframes
func WithFFmpeg(path string) Option {
	return func(l *Library) {
		if path != "" {
			l.ffmpeg = newFFmpeg(path)
		}
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(l *Library) {
		l.log = log
	}
}

// New creates a Library over the given folders
func New(roots []string, opts ...Option) *Library {
	l := &Library{
		roots:  roots,
		remove: fileutil.MoveToTrash,
		ffmpeg: newFFmpeg("ffmpeg"),
		log:    zerolog.Nop(),
		known:  make(map[string]models.AssetRef),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ListAssets walks every root and returns the assets of kind, sorted by path
func (l *Library) ListAssets(ctx context.Context, kind models.Kind) ([]models.AssetRef, error) {
	var assets []models.AssetRef
	seen := make(map[string]bool)

	for _, root := range l.roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				l.log.Debug().Err(err).Str("path", path).Msg("skipping unreadable entry")
				return nil
			}
			if info.IsDir() {
				return nil
			}

			var ok bool
			switch kind {
			case models.KindPhoto:
				ok = hash.IsSupportedImage(path)
			case models.KindVideo:
				ok = hash.IsSupportedVideo(path)
			}
			if !ok {
				return nil
			}

			abs, err := filepath.Abs(path)
			if err != nil || seen[abs] {
				return nil
			}
			seen[abs] = true
			assets = append(assets, describe(abs, kind, info))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	sort.Slice(assets, func(i, j int) bool { return assets[i].Path < assets[j].Path })

	l.mu.Lock()
	for _, a := range assets {
		l.known[a.ID] = a
	}
	l.mu.Unlock()

	l.log.Debug().Str("kind", kind.String()).Int("assets", len(assets)).Msg("library listed")
	return assets, nil
}

// Lookup returns a listed asset by ID
func (l *Library) Lookup(id string) (models.AssetRef, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.known[id]
	return a, ok
}

// Decode rasterizes an asset. Photos are decoded with EXIF orientation
// applied; videos yield a keyframe one second in, downscaled for Fast.
func (l *Library) Decode(ctx context.Context, ref models.AssetRef, fidelity hash.Fidelity) (image.Image, error) {
	if ref.Kind == models.KindVideo {
		return l.ffmpeg.Frame(ctx, ref.Path, keyframeOffset, fidelity)
	}

	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", hash.ErrDecodeUnavailable, err)
	}
	defer f.Close()
	return hash.Decode(f)
}

// Bytes returns the raw file for photos and the first frame as PNG for
// videos, which covers clips shorter than the keyframe offset
func (l *Library) Bytes(ctx context.Context, ref models.AssetRef) ([]byte, error) {
	if ref.Kind == models.KindVideo {
		return l.ffmpeg.FramePNG(ctx, ref.Path, 0, hash.Full)
	}
	return os.ReadFile(ref.Path)
}

// Delete removes every asset from disk. It returns the assets removed and,
// when some could not be, a *DeleteError describing the rest.
func (l *Library) Delete(ctx context.Context, refs []models.AssetRef) ([]models.AssetRef, error) {
	var (
		deleted []models.AssetRef
		failed  []models.AssetRef
		errs    []error
	)
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			failed = append(failed, ref)
			errs = append(errs, err)
			continue
		}
		if err := l.remove(ref.Path); err != nil {
			failed = append(failed, ref)
			errs = append(errs, fmt.Errorf("%s: %w", ref.Path, err))
			l.log.Warn().Err(err).Str("path", ref.Path).Msg("delete failed")
			continue
		}
		deleted = append(deleted, ref)
	}

	l.mu.Lock()
	for _, d := range deleted {
		delete(l.known, d.ID)
	}
	l.mu.Unlock()

	if len(failed) > 0 {
		return deleted, &DeleteError{Failed: failed, Err: errors.Join(errs...)}
	}
	return deleted, nil
}
