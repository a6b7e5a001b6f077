package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadupfinder/internal/engine"
	"mediadupfinder/internal/fileutil"
	"mediadupfinder/internal/hash"
	"mediadupfinder/internal/models"
	"mediadupfinder/internal/testimg"
)

var _ engine.Library = (*Library)(nil)

func writePNG(t *testing.T, path string, pattern int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, testimg.PNG(testimg.Pattern(pattern, 64)), 0644))
}

func TestListAssets_Photos(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 0)
	writePNG(t, filepath.Join(dir, "sub", "a.png"), 1)
	writePNG(t, filepath.Join(dir, "Screenshot 2024-03-01.png"), 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("x"), 0644))

	lib := New([]string{dir})
	assets, err := lib.ListAssets(context.Background(), models.KindPhoto)
	require.NoError(t, err)
	require.Len(t, assets, 3)

	for i := 1; i < len(assets); i++ {
		assert.Less(t, assets[i-1].Path, assets[i].Path)
	}
	for _, a := range assets {
		assert.Equal(t, a.Path, a.ID)
		assert.True(t, filepath.IsAbs(a.ID))
		assert.Equal(t, models.KindPhoto, a.Kind)
		assert.Positive(t, a.FileSize)
		assert.False(t, a.CreationDate.IsZero())

		got, ok := lib.Lookup(a.ID)
		assert.True(t, ok)
		assert.Equal(t, a.Path, got.Path)
	}

	var screenshots int
	for _, a := range assets {
		if a.Subtype.Has(models.SubtypeScreenshot) {
			screenshots++
			assert.Contains(t, a.Path, "Screenshot")
		}
	}
	assert.Equal(t, 1, screenshots)
}

func TestListAssets_Videos(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"holiday.mp4", "RPReplay_Final1.MP4", "Screen Recording 2024.mov", "photo.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}

	assets, err := New([]string{dir}).ListAssets(context.Background(), models.KindVideo)
	require.NoError(t, err)
	require.Len(t, assets, 3)

	recordings := make(map[string]bool)
	for _, a := range assets {
		recordings[filepath.Base(a.Path)] = a.Subtype.Has(models.SubtypeScreenRecording)
	}
	assert.Equal(t, map[string]bool{
		"holiday.mp4":               false,
		"RPReplay_Final1.MP4":       true,
		"Screen Recording 2024.mov": true,
	}, recordings)
}

func TestListAssets_CreationDateFallsBackToModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 0)
	when := time.Date(2021, 5, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, when, when))

	assets, err := New([]string{dir}).ListAssets(context.Background(), models.KindPhoto)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.True(t, when.Equal(assets[0].CreationDate))
}

func TestListAssets_OverlappingRootsDeduplicated(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "sub", "a.png"), 0)

	assets, err := New([]string{dir, filepath.Join(dir, "sub")}).ListAssets(context.Background(), models.KindPhoto)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestListAssets_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New([]string{dir}).ListAssets(ctx, models.KindPhoto)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecode_Photo(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 0)

	lib := New([]string{dir})
	img, err := lib.Decode(context.Background(), models.AssetRef{ID: path, Path: path, Kind: models.KindPhoto}, hash.Fast)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	raw, err := lib.Bytes(context.Background(), models.AssetRef{ID: path, Path: path, Kind: models.KindPhoto})
	require.NoError(t, err)
	assert.NotEmpty(t, raw)
}

func TestDecode_MissingPhoto(t *testing.T) {
	lib := New(nil)
	_, err := lib.Decode(context.Background(), models.AssetRef{Path: "/nonexistent/a.png", Kind: models.KindPhoto}, hash.Fast)
	assert.ErrorIs(t, err, hash.ErrDecodeUnavailable)
}

func TestDecode_VideoWithoutFFmpeg(t *testing.T) {
	lib := New(nil, WithFFmpeg("mediadupfinder-no-such-ffmpeg"))
	ref := models.AssetRef{Path: "/tmp/clip.mp4", Kind: models.KindVideo}

	_, err := lib.Decode(context.Background(), ref, hash.Fast)
	assert.ErrorIs(t, err, hash.ErrDecodeUnavailable)

	_, err = lib.Bytes(context.Background(), ref)
	assert.ErrorIs(t, err, hash.ErrDecodeUnavailable)
}

func TestDelete_MovesToTrash(t *testing.T) {
	dir := t.TempDir()
	trash := fileutil.Trash{Dir: filepath.Join(t.TempDir(), "trash")}
	path := filepath.Join(dir, "a.png")
	writePNG(t, path, 0)

	lib := New([]string{dir}, WithRemover(trash.Move))
	assets, err := lib.ListAssets(context.Background(), models.KindPhoto)
	require.NoError(t, err)

	deleted, err := lib.Delete(context.Background(), assets)
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
	assert.NoFileExists(t, path)
	assert.FileExists(t, filepath.Join(trash.Dir, "files", "a.png"))

	_, ok := lib.Lookup(assets[0].ID)
	assert.False(t, ok)
}

func TestDelete_PartialFailure(t *testing.T) {
	boom := errors.New("permission denied")
	lib := New(nil, WithRemover(func(path string) error {
		if filepath.Base(path) == "locked.png" {
			return boom
		}
		return nil
	}))

	refs := []models.AssetRef{
		{ID: "/x/a.png", Path: "/x/a.png"},
		{ID: "/x/locked.png", Path: "/x/locked.png"},
		{ID: "/x/b.png", Path: "/x/b.png"},
	}
	deleted, err := lib.Delete(context.Background(), refs)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var derr *DeleteError
	require.ErrorAs(t, err, &derr)
	require.Len(t, derr.Failed, 1)
	assert.Equal(t, "/x/locked.png", derr.Failed[0].ID)

	ids := []string{deleted[0].ID, deleted[1].ID}
	assert.Equal(t, []string{"/x/a.png", "/x/b.png"}, ids)
}

func TestEngine_FindsDuplicateFiles(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "original.png"), 0)
	writePNG(t, filepath.Join(dir, "copy", "original.png"), 0)
	writePNG(t, filepath.Join(dir, "other.png"), 3)

	eng := engine.New(New([]string{dir}))
	require.NoError(t, eng.StartScan(context.Background(), models.ClassPhoto))
	eng.Wait(models.ClassPhoto)

	st := eng.Status(models.ClassPhoto)
	assert.Equal(t, models.StateComplete, st.State)
	assert.Equal(t, 3, st.Total)
	require.Len(t, st.Groups, 1)
	require.Len(t, st.Groups[0].Members, 2)
	for _, m := range st.Groups[0].Members {
		assert.Equal(t, "original.png", filepath.Base(m.Asset.Path))
	}
}
