// Package conversions drives one conversion request from a validated upload
// to a delivered audio file.
package conversions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"mp4converter/ffmpeg"
	"mp4converter/records"
	"mp4converter/tempstore"
	"mp4converter/uploads"
)

var (
	ErrTranscodeFailed = errors.New("transcoding failed")
	ErrStreamFailed    = errors.New("streaming failed")
)

type Transcoder interface {
	Transcode(ctx context.Context, req ffmpeg.Request) error
}

type Storage interface {
	Allocate(kind tempstore.Kind, originalName string) (string, error)
	Remove(path string) error
}

// DeliverFunc sends the converted file of job to the caller. It must return
// only after the last byte has been handed to the transport.
type DeliverFunc func(job *Job) error

type Options struct {
	// MaxConcurrent caps the number of transcoder processes. 0 means no cap.
	MaxConcurrent int
	// Timeout bounds a single transcoder run. 0 means no timeout.
	Timeout time.Duration
	// RecordTimeout bounds a single write to the record sink.
	RecordTimeout time.Duration
}

type Service struct {
	store      Storage
	transcoder Transcoder
	sink       records.Sink
	slots      *semaphore.Weighted
	opts       Options

	running sync.WaitGroup
	pending sync.WaitGroup
}

func NewService(store Storage, transcoder Transcoder, sink records.Sink, opts Options) *Service {
	if opts.RecordTimeout <= 0 {
		opts.RecordTimeout = 10 * time.Second
	}
	s := &Service{
		store:      store,
		transcoder: transcoder,
		sink:       sink,
		opts:       opts,
	}
	if opts.MaxConcurrent > 0 {
		s.slots = semaphore.NewWeighted(int64(opts.MaxConcurrent))
	}
	return s
}

// Process runs the full lifecycle of one request: allocate the output,
// transcode, record, deliver. The input and output files are gone when
// Process returns, whatever the outcome.
func (s *Service) Process(ctx context.Context, input *uploads.Input, deliver DeliverFunc) (*Job, error) {
	s.running.Add(1)
	defer s.running.Done()

	job, err := s.NewJob(input)
	if err != nil {
		if rmErr := s.store.Remove(input.Path); rmErr != nil {
			log.Errorf("error deleting input file %s: %v", input.Path, rmErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}
	defer job.Cleanup()

	if err := s.Convert(ctx, job); err != nil {
		return job, err
	}

	if err := deliver(job); err != nil {
		job.fail(StateStreamFailed, err)
		log.Warnf("job %s: delivery of %s interrupted: %v", job.ID, job.DownloadName(), err)
		return job, fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}
	if err := job.transition(StateStreamed, nil); err != nil {
		return job, err
	}
	log.Infof("job %s: delivered %s in %s", job.ID, job.DownloadName(), job.EndedAt().Sub(job.StartedAt()).Round(time.Millisecond))
	return job, nil
}

// NewJob allocates the output location for a validated input.
func (s *Service) NewJob(input *uploads.Input) (*Job, error) {
	out, err := s.store.Allocate(tempstore.KindOutput, input.Filename)
	if err != nil {
		return nil, fmt.Errorf("allocate output: %w", err)
	}
	return newJob(input, out, s.store), nil
}

// Convert runs the transcoder for job and blocks until it finishes. On
// success the job is Converted and its record has been handed to the sink.
func (s *Service) Convert(ctx context.Context, job *Job) error {
	if s.slots != nil {
		if err := s.slots.Acquire(ctx, 1); err != nil {
			job.fail(StateFailed, err)
			log.Warnf("job %s: gave up waiting for a conversion slot: %v", job.ID, err)
			return fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
		}
		defer s.slots.Release(1)
	}

	if err := job.transition(StateRunning, nil); err != nil {
		return err
	}

	tctx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	err := s.transcoder.Transcode(tctx, ffmpeg.Request{
		InputPath:  job.Input.Path,
		OutputPath: job.OutputPath,
		Format:     job.Format,
		Bitrate:    job.Bitrate,
	})
	if err != nil {
		job.fail(StateFailed, err)
		var terr *ffmpeg.TranscodeError
		if errors.As(err, &terr) && terr.Stderr != "" {
			log.Errorf("job %s: conversion of %q failed: %v\n%s", job.ID, job.Input.Filename, err, terr.Stderr)
		} else {
			log.Errorf("job %s: conversion of %q failed: %v", job.ID, job.Input.Filename, err)
		}
		return fmt.Errorf("%w: %w", ErrTranscodeFailed, err)
	}

	if err := job.transition(StateConverted, nil); err != nil {
		return err
	}
	s.record(job)
	return nil
}

// record hands the job's record to the sink in the background. A sink
// failure is logged and does not affect the job.
func (s *Service) record(job *Job) {
	if s.sink == nil {
		return
	}
	rec := records.Record{
		OriginalName:  job.Input.Filename,
		ConvertedName: job.OutputName(),
		ConvertedPath: job.OutputPath,
		CreatedAt:     time.Now(),
	}
	if info, err := os.Stat(job.OutputPath); err == nil {
		rec.OutputBytes = info.Size()
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.RecordTimeout)
		defer cancel()
		if err := s.sink.Record(ctx, rec); err != nil {
			log.Errorf("job %s: error saving conversion record: %v", job.ID, err)
		}
	}()
}

// Wait blocks until every running Process call has returned, with its files
// cleaned up, and every record handed to the sink has been written or has
// failed.
func (s *Service) Wait() {
	s.running.Wait()
	s.pending.Wait()
}
