package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"
)

// RenderError wraps an ffmpeg failure. Rendering failures do not improve on
// retry, so callers treat them as permanent.
type RenderError struct {
	Err    error
	Stderr string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("ffmpeg render failed: %v: %s", e.Err, e.Stderr)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// FFmpegRenderer turns one or more photos into an mp4 slideshow by shelling
// out to ffmpeg.
type FFmpegRenderer struct {
	OutDir       string
	SlideSeconds int
	FPS          int
}

func NewFFmpegRenderer(outDir string, slideSeconds, fps int) *FFmpegRenderer {
	return &FFmpegRenderer{
		OutDir:       outDir,
		SlideSeconds: slideSeconds,
		FPS:          fps,
	}
}

// SlideshowVideo renders the photos into a single vertical video, each photo
// shown for SlideSeconds, scaled and padded to 1080x1920.
func (r *FFmpegRenderer) SlideshowVideo(ctx context.Context, photoPaths []string) (string, error) {
	if len(photoPaths) == 0 {
		return "", &RenderError{Err: fmt.Errorf("no photos to render")}
	}

	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	outPath := filepath.Join(r.OutDir, "slideshow_"+id+".mp4")

	args := []string{"-y"}
	for _, p := range photoPaths {
		args = append(args, "-loop", "1", "-t", strconv.Itoa(r.SlideSeconds), "-i", p)
	}

	var filter strings.Builder
	for i := range photoPaths {
		fmt.Fprintf(&filter,
			"[%d:v]scale=1080:1920:force_original_aspect_ratio=decrease,"+
				"pad=1080:1920:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d[v%d];",
			i, r.FPS, i)
	}
	for i := range photoPaths {
		fmt.Fprintf(&filter, "[v%d]", i)
	}
	fmt.Fprintf(&filter, "concat=n=%d:v=1:a=0[out]", len(photoPaths))

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", "[out]",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outPath,
	)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().Int("photos", len(photoPaths)).Str("out", outPath).Msg("rendering slideshow")
	if err := cmd.Run(); err != nil {
		return "", &RenderError{Err: err, Stderr: tail(stderr.String(), 2000)}
	}
	return outPath, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
