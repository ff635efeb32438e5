package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	FormatMP3     = "mp3"
	Bitrate192k   = "192k"
	stderrTailLen = 4096
)

// Request describes one audio extraction.
type Request struct {
	InputPath  string
	OutputPath string
	Format     string // defaults to FormatMP3
	Bitrate    string // defaults to Bitrate192k
}

// TranscodeError is returned when ffmpeg did not produce an output file.
// Stderr holds the tail of ffmpeg's diagnostics and is meant for logs only.
type TranscodeError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *TranscodeError) Error() string {
	if e.ExitCode > 0 {
		return fmt.Sprintf("ffmpeg exited with code %d: %v", e.ExitCode, e.Err)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Transcoder runs ffmpeg and ffprobe as external processes.
type Transcoder struct {
	ffmpegPath  string
	ffprobePath string
}

func NewTranscoder(ffmpegPath, ffprobePath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Transcoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// Args returns the ffmpeg command line for req, without the executable.
func Args(req Request) []string {
	format := req.Format
	if format == "" {
		format = FormatMP3
	}
	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = Bitrate192k
	}
	return []string{
		"-hide_banner", "-nostats", "-loglevel", "error",
		"-y",
		"-i", req.InputPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", bitrate,
		"-f", format,
		"-progress", "pipe:1",
		req.OutputPath,
	}
}

// Transcode extracts the audio of req.InputPath into req.OutputPath and
// blocks until ffmpeg exits. Progress is only logged. Cancelling ctx kills
// the process.
func (t *Transcoder) Transcode(ctx context.Context, req Request) error {
	duration, err := t.Duration(ctx, req.InputPath)
	if err != nil {
		log.Debugf("no duration for %s, progress will not be reported: %v", req.InputPath, err)
	}

	args := Args(req)
	log.Infoln(t.ffmpegPath, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailBuffer{max: stderrTailLen}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &TranscodeError{Err: err}
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return &TranscodeError{Err: err}
	}
	watchProgress(stdout, req.InputPath, duration)
	err = cmd.Wait()

	if ctxErr := ctx.Err(); ctxErr != nil {
		log.Warnf("ffmpeg cancelled after %s: %v", time.Since(start).Round(time.Millisecond), ctxErr)
		return &TranscodeError{ExitCode: exitCode(err), Stderr: stderr.String(), Err: ctxErr}
	}
	if err != nil {
		log.Errorf("ffmpeg error: %v", err)
		log.Infoln("stderr:", stderr.String())
		return &TranscodeError{ExitCode: exitCode(err), Stderr: stderr.String(), Err: err}
	}

	info, err := os.Stat(req.OutputPath)
	if err != nil {
		return &TranscodeError{Stderr: stderr.String(), Err: fmt.Errorf("no output produced: %w", err)}
	}
	if info.Size() == 0 {
		return &TranscodeError{Stderr: stderr.String(), Err: errors.New("output is empty")}
	}
	log.Infof("conversion finished in %s: %s (%d bytes)", time.Since(start).Round(time.Millisecond), req.OutputPath, info.Size())
	return nil
}

// Version runs `ffmpeg -version` and returns its first line.
func (t *Transcoder) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, t.ffmpegPath, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found or not executable: %w", err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

// watchProgress consumes ffmpeg's -progress output until EOF.
func watchProgress(r io.Reader, input string, duration time.Duration) {
	lastLogged := -1
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			pct, ok := percent(value, duration)
			if !ok {
				continue
			}
			// one line per 10%
			if bucket := int(pct) / 10; bucket > lastLogged {
				lastLogged = bucket
				log.Debugf("Processing %s: %.1f%% done", input, pct)
			}
		case "progress":
			if value == "end" {
				log.Debugf("Processing %s: done", input)
			}
		}
	}
	// ffmpeg is still running if the scan stopped early; drain so it never
	// blocks on a full pipe.
	io.Copy(io.Discard, r)
}

// percent converts an out_time_us value into a percentage of duration.
func percent(outTimeUs string, duration time.Duration) (float64, bool) {
	if duration <= 0 {
		return 0, false
	}
	var us int64
	if _, err := fmt.Sscan(outTimeUs, &us); err != nil || us < 0 {
		return 0, false
	}
	pct := float64(us) / float64(duration.Microseconds()) * 100
	if pct > 100 {
		pct = 100
	}
	return pct, true
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 0
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) > b.max {
		p = p[len(p)-b.max:]
	}
	if over := b.buf.Len() + len(p) - b.max; over > 0 {
		b.buf.Next(over)
	}
	b.buf.Write(p)
	return n, nil
}

func (b *tailBuffer) String() string { return strings.TrimSpace(b.buf.String()) }
