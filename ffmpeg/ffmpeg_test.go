package ffmpeg

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFfmpeg records its arguments next to itself, fails on inputs that
// contain the word CORRUPT, sleeps on inputs that contain SLOW and otherwise
// writes a small output file and some progress lines.
const fakeFfmpeg = `#!/bin/sh
printf '%s\n' "$@" > "$(dirname "$0")/args.txt"
in=""
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    -i) in="$2"; shift ;;
  esac
  out="$1"
  shift
done
if grep -q CORRUPT "$in"; then
  echo "Invalid data found when processing input" >&2
  exit 1
fi
if grep -q SLOW "$in"; then
  exec sleep 30
fi
if grep -q SILENT "$in"; then
  exit 0
fi
echo "out_time_us=500000"
echo "progress=continue"
echo "out_time_us=1000000"
echo "progress=end"
printf 'ID3-fake-mp3-payload' > "$out"
`

const fakeFfprobe = `#!/bin/sh
echo 1.000000
`

func fakeTranscoder(t *testing.T) (*Transcoder, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ffmpeg is a shell script")
	}
	dir := t.TempDir()
	ffmpegPath := filepath.Join(dir, "ffmpeg")
	ffprobePath := filepath.Join(dir, "ffprobe")
	require.NoError(t, os.WriteFile(ffmpegPath, []byte(fakeFfmpeg), 0755))
	require.NoError(t, os.WriteFile(ffprobePath, []byte(fakeFfprobe), 0755))
	return NewTranscoder(ffmpegPath, ffprobePath), dir
}

func writeInput(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "input.mp4")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestArgs(t *testing.T) {
	args := Args(Request{InputPath: "in.mp4", OutputPath: "out.mp3"})
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-i in.mp4")
	assert.Contains(t, joined, "-vn")
	assert.Contains(t, joined, "-b:a 192k")
	assert.Contains(t, joined, "-f mp3")
	assert.Contains(t, joined, "-progress pipe:1")
	assert.Equal(t, "out.mp3", args[len(args)-1])

	args = Args(Request{InputPath: "in.mkv", OutputPath: "out.mp3", Bitrate: "128k"})
	assert.Contains(t, strings.Join(args, " "), "-b:a 128k")
}

func TestTranscodeSuccess(t *testing.T) {
	tr, dir := fakeTranscoder(t)
	in := writeInput(t, dir, "a perfectly fine video")
	out := filepath.Join(dir, "out.mp3")

	err := tr.Transcode(context.Background(), Request{InputPath: in, OutputPath: out})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "ID3-fake-mp3-payload", string(data))

	recorded, err := os.ReadFile(filepath.Join(dir, "args.txt"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join(Args(Request{InputPath: in, OutputPath: out}), "\n")+"\n", string(recorded))
}

func TestTranscodeCorruptInput(t *testing.T) {
	tr, dir := fakeTranscoder(t)
	in := writeInput(t, dir, "header CORRUPT trailer")

	err := tr.Transcode(context.Background(), Request{InputPath: in, OutputPath: filepath.Join(dir, "out.mp3")})
	var terr *TranscodeError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, 1, terr.ExitCode)
	assert.Contains(t, terr.Stderr, "Invalid data found")
}

func TestTranscodeNoOutput(t *testing.T) {
	tr, dir := fakeTranscoder(t)
	in := writeInput(t, dir, "SILENT")

	err := tr.Transcode(context.Background(), Request{InputPath: in, OutputPath: filepath.Join(dir, "out.mp3")})
	var terr *TranscodeError
	require.ErrorAs(t, err, &terr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestTranscodeCancelled(t *testing.T) {
	tr, dir := fakeTranscoder(t)
	in := writeInput(t, dir, "SLOW")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := tr.Transcode(ctx, Request{InputPath: in, OutputPath: filepath.Join(dir, "out.mp3")})
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestTranscodeMissingBinary(t *testing.T) {
	tr := NewTranscoder(filepath.Join(t.TempDir(), "no-such-ffmpeg"), filepath.Join(t.TempDir(), "no-such-ffprobe"))
	err := tr.Transcode(context.Background(), Request{InputPath: "in.mp4", OutputPath: "out.mp3"})
	var terr *TranscodeError
	assert.ErrorAs(t, err, &terr)
}

func TestDuration(t *testing.T) {
	tr, dir := fakeTranscoder(t)
	d, err := tr.Duration(context.Background(), writeInput(t, dir, "x"))
	require.NoError(t, err)
	assert.Equal(t, time.Second, d)
}

func TestParseDuration(t *testing.T) {
	d, err := parseDuration("12.500000\n")
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, d)

	_, err = parseDuration("N/A")
	assert.Error(t, err)
	_, err = parseDuration("0")
	assert.Error(t, err)
}

func TestPercent(t *testing.T) {
	pct, ok := percent("5000000", 10*time.Second)
	require.True(t, ok)
	assert.InDelta(t, 50.0, pct, 0.001)

	pct, ok = percent("20000000", 10*time.Second)
	require.True(t, ok)
	assert.Equal(t, 100.0, pct)

	_, ok = percent("5000000", 0)
	assert.False(t, ok)
	_, ok = percent("N/A", 10*time.Second)
	assert.False(t, ok)
}

func TestTailBuffer(t *testing.T) {
	b := &tailBuffer{max: 8}
	b.Write([]byte("0123"))
	b.Write([]byte("456789"))
	assert.Equal(t, "23456789", b.String())

	n, _ := b.Write([]byte("abcdefghijkl"))
	assert.Equal(t, 12, n)
	assert.Equal(t, "efghijkl", b.String())
}
