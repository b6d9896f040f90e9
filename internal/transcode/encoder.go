package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Encoder turns a source video into an adaptive-streaming folder: a
// playlist plus media segments under outDir.
type Encoder interface {
	Encode(ctx context.Context, sourcePath, outDir string) error
}

// FFmpegEncoder shells out to ffmpeg to produce an HLS rendition.
type FFmpegEncoder struct {
	// Path is the ffmpeg binary, usually just "ffmpeg".
	Path string
}

// Encode writes master.m3u8 and numbered .ts segments into outDir. The
// caller bounds the run through ctx; on deadline the process is killed
// and the error surfaces to the worker.
func (e *FFmpegEncoder) Encode(ctx context.Context, sourcePath, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	args := []string{
		"-y",
		"-i", sourcePath,
		"-codec:v", "libx264",
		"-codec:a", "aac",
		"-hls_time", "10",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outDir, "segment%03d.ts"),
		filepath.Join(outDir, "master.m3u8"),
	}
	cmd := exec.CommandContext(ctx, e.Path, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(out, 512))
	}
	return nil
}

// tail keeps error output bounded in status messages and logs.
func tail(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[len(b)-n:])
}
