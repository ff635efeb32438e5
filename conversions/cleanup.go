package conversions

// Cleanup removes the job's temporary files. It runs its body once no matter
// how often it is called, and never fails: removal errors are logged.
//
// The input is removed in every state. The output is removed too; after a
// transcoder failure there is usually nothing to remove, but ffmpeg may have
// left a partial file behind.
func (j *Job) Cleanup() {
	j.cleanupOnce.Do(func() {
		state := j.State()
		if !state.Terminal() {
			log.Warnf("job %s: cleaning up in non-terminal state %q", j.ID, state)
		}

		if j.Input != nil {
			if err := j.store.Remove(j.Input.Path); err != nil {
				log.Errorf("job %s: error deleting input file %s: %v", j.ID, j.Input.Path, err)
			}
		}
		if err := j.store.Remove(j.OutputPath); err != nil {
			log.Errorf("job %s: error deleting output file %s: %v", j.ID, j.OutputPath, err)
		}
		log.Debugf("job %s: cleaned up after %s", j.ID, state)
	})
}
