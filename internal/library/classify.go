package library

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"mediadupfinder/internal/models"
)

// file name fragments that platforms use for screen captures
var (
	screenshotHints = []string{
		"screenshot", "screen shot", "screen_shot", "bildschirmfoto",
		"capture d'écran", "schermafbeelding", "스크린샷", "スクリーンショット",
	}
	recordingHints = []string{
		"screen recording", "screenrecording", "screen_recording",
		"rpreplay", "screencast", "bildschirmaufnahme",
	}
)

// describe builds the AssetRef of one file. The path is the asset ID.
func describe(path string, kind models.Kind, info os.FileInfo) models.AssetRef {
	ref := models.AssetRef{
		ID:           path,
		Kind:         kind,
		Path:         path,
		FileSize:     info.Size(),
		CreationDate: info.ModTime(),
	}

	name := strings.ToLower(filepath.Base(path))
	switch kind {
	case models.KindPhoto:
		x := readExif(path)
		if x != nil {
			if t, err := x.DateTime(); err == nil && !t.IsZero() {
				ref.CreationDate = t
			}
		}
		if hasHint(name, screenshotHints) || exifScreenshot(x) {
			ref.Subtype |= models.SubtypeScreenshot
		}
	case models.KindVideo:
		if hasHint(name, recordingHints) {
			ref.Subtype |= models.SubtypeScreenRecording
		}
	}
	ref.CreationDate = ref.CreationDate.In(time.Local)
	return ref
}

func hasHint(name string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(name, h) {
			return true
		}
	}
	return false
}

// readExif returns nil when the file carries no EXIF block
func readExif(path string) *exif.Exif {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return nil
	}
	return x
}

// exifScreenshot reports the "Screenshot" UserComment that iOS writes
func exifScreenshot(x *exif.Exif) bool {
	if x == nil {
		return false
	}
	tag, err := x.Get(exif.UserComment)
	if err != nil {
		return false
	}
	return bytes.Contains(bytes.ToLower(tag.Val), []byte("screenshot"))
}
