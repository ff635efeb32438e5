package conversions

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mp4converter/ffmpeg"
	"mp4converter/uploads"
)

type State string

const (
	StatePending      State = "pending"
	StateRunning      State = "running"
	StateConverted    State = "converted"
	StateFailed       State = "failed"
	StateStreamed     State = "streamed"
	StateStreamFailed State = "stream failed"
)

var ErrIllegalTransition = errors.New("illegal job state transition")

// Pending may go straight to Failed when the request is cancelled while
// waiting for a conversion slot.
var transitions = map[State][]State{
	StatePending:   {StateRunning, StateFailed},
	StateRunning:   {StateConverted, StateFailed},
	StateConverted: {StateStreamed, StateStreamFailed},
}

func (s State) Terminal() bool {
	return s == StateFailed || s == StateStreamed || s == StateStreamFailed
}

// Job is a single conversion attempt. It lives for one request and is never
// persisted; only its outcome ends up in a records.Record.
type Job struct {
	ID         uuid.UUID
	Input      *uploads.Input
	OutputPath string
	Format     string
	Bitrate    string

	mu        sync.Mutex
	state     State
	startedAt time.Time
	endedAt   time.Time
	cause     error

	store       Storage
	cleanupOnce sync.Once
}

func newJob(input *uploads.Input, outputPath string, store Storage) *Job {
	return &Job{
		ID:         uuid.Must(uuid.NewV7()),
		Input:      input,
		OutputPath: outputPath,
		Format:     ffmpeg.FormatMP3,
		Bitrate:    ffmpeg.Bitrate192k,
		state:      StatePending,
		store:      store,
	}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Cause is the error that moved the job into a failure state, if any.
func (j *Job) Cause() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cause
}

func (j *Job) StartedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt
}

func (j *Job) EndedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.endedAt
}

func (j *Job) transition(to State, cause error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	from := j.state
	allowed := false
	for _, s := range transitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	now := time.Now()
	if to == StateRunning {
		j.startedAt = now
	}
	if to.Terminal() {
		j.endedAt = now
		j.cause = cause
	}
	j.state = to
	log.Debugf("job %s: %s -> %s", j.ID, from, to)
	return nil
}

// fail moves the job into a failure state. The job is already terminal if
// that is refused, which is logged and otherwise ignored.
func (j *Job) fail(to State, cause error) {
	if err := j.transition(to, cause); err != nil {
		log.Errorf("job %s: %v (cause: %v)", j.ID, err, cause)
	}
}

// OutputName is the file name of the converted artifact on disk.
func (j *Job) OutputName() string {
	return filepath.Base(j.OutputPath)
}

// DownloadName is the file name proposed to the caller: the original base
// name with the audio extension.
func (j *Job) DownloadName() string {
	return DownloadName(j.Input.Filename, j.Format)
}

func DownloadName(original, format string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == "/" {
		base = "audio"
	}
	return base + "." + format
}
