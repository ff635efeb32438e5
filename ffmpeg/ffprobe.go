package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// runs ffprobe with the provided args and returns (stdout, stderr, error)
func (t *Transcoder) ffprobe(ctx context.Context, args ...string) ([]byte, []byte, error) {
	log.Debugln(t.ffprobePath, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, t.ffprobePath, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	if err != nil {
		log.Debugf("ffprobe error: %v", err)
		log.Debugln("stderr:", stderr.String())
	}
	return stdout.Bytes(), stderr.Bytes(), err
}

// Duration returns the container duration of the media file at path.
func (t *Transcoder) Duration(ctx context.Context, path string) (time.Duration, error) {
	stdout, _, err := t.ffprobe(ctx, "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path)
	if err != nil {
		return 0, err
	}
	return parseDuration(string(stdout))
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if secs <= 0 {
		return 0, fmt.Errorf("non-positive duration %q", s)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
