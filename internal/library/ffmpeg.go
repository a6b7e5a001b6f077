package library

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"mediadupfinder/internal/hash"
)

// keyframeOffset skips fades and black leaders at the start of a clip
const keyframeOffset = time.Second

// fastWidth is the frame width requested for coarse hashing
const fastWidth = 256

// ffmpeg extracts single frames from videos
type ffmpeg struct {
	path string

	once      sync.Once
	available bool
}

func newFFmpeg(path string) *ffmpeg {
	return &ffmpeg{path: path}
}

func (f *ffmpeg) ok() bool {
	f.once.Do(func() {
		if _, err := exec.LookPath(f.path); err == nil {
			f.available = true
		}
	})
	return f.available
}

// FramePNG returns the frame at offset encoded as PNG
func (f *ffmpeg) FramePNG(ctx context.Context, path string, offset time.Duration, fidelity hash.Fidelity) ([]byte, error) {
	if !f.ok() {
		return nil, fmt.Errorf("%w: ffmpeg not found", hash.ErrDecodeUnavailable)
	}

	args := []string{
		"-v", "error",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
	}
	if fidelity == hash.Fast {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-2", fastWidth))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "png", "-")

	cmd := exec.CommandContext(ctx, f.path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg %s: %v: %s", hash.ErrDecodeUnavailable, path, err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("%w: no frame at %s in %s", hash.ErrDecodeUnavailable, offset, path)
	}
	return stdout.Bytes(), nil
}

// Frame returns the decoded frame at offset
func (f *ffmpeg) Frame(ctx context.Context, path string, offset time.Duration, fidelity hash.Fidelity) (image.Image, error) {
	data, err := f.FramePNG(ctx, path, offset, fidelity)
	if err != nil {
		return nil, err
	}
	return hash.DecodeGeneric(data)
}
