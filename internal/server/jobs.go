package server

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/markod0925/GuitarHelio/internal/basicpitch"
	apperrors "github.com/markod0925/GuitarHelio/internal/errors"
	"github.com/markod0925/GuitarHelio/internal/pipeline"
	"github.com/markod0925/GuitarHelio/internal/workspace"
)

// Job status constants
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusComplete   JobStatus = "complete"
	StatusNoNotes    JobStatus = "no_notes"
	StatusFailed     JobStatus = "failed"
)

// Job represents one transcription request.
type Job struct {
	ID        string
	Status    JobStatus
	Workspace *workspace.Workspace
	Document  []byte
	MIDIPath  string
	Error     string
	CreatedAt time.Time

	mu sync.Mutex
}

func (j *Job) snapshot() (JobStatus, string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status, j.Error
}

func (j *Job) setStatus(status JobStatus, errMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Error = errMsg
}

// JobManager owns the in-flight jobs and the model configuration shared by
// all of them.
type JobManager struct {
	jobs           map[string]*Job
	mu             sync.RWMutex
	counter        uint64
	modelDir       string
	tempoModelPath string
	retention      time.Duration
}

// NewJobManager creates a manager bound to the model files.
func NewJobManager(modelDir, tempoModelPath string) *JobManager {
	return &JobManager{
		jobs:           make(map[string]*Job),
		modelDir:       modelDir,
		tempoModelPath: tempoModelPath,
		retention:      10 * time.Minute,
	}
}

// Create registers a new pending job with its own workspace.
func (m *JobManager) Create() (*Job, error) {
	ws, err := workspace.Create()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	job := &Job{
		ID:        fmt.Sprintf("%d-%d", time.Now().UnixNano(), m.counter),
		Status:    StatusPending,
		Workspace: ws,
		CreatedAt: time.Now(),
	}
	m.jobs[job.ID] = job
	return job, nil
}

// Get retrieves a job by ID.
func (m *JobManager) Get(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// Process runs the pipeline for a job. Intended to run in its own
// goroutine; each job gets independent model sessions so concurrent jobs
// stay reproducible.
func (m *JobManager) Process(job *Job, preset basicpitch.Preset, interpolate, localTempo, wantMIDI bool) {
	defer func() {
		time.AfterFunc(m.retention, func() {
			job.Workspace.Cleanup()
			m.mu.Lock()
			delete(m.jobs, job.ID)
			m.mu.Unlock()
		})
	}()

	job.setStatus(StatusProcessing, "")

	cfg := pipeline.Config{
		NotesPCMPath:   job.Workspace.NotesPCM(),
		TempoPCMPath:   job.Workspace.TempoPCM(),
		ModelDir:       m.modelDir,
		TempoModelPath: m.tempoModelPath,
		OutputJSONPath: job.Workspace.OutputJSON(),
		Preset:         preset,
		Interpolate:    interpolate,
		LocalTempo:     localTempo,
	}
	if wantMIDI {
		cfg.MIDIOutputPath = job.Workspace.OutputMIDI()
	}

	result, err := pipeline.Run(cfg)
	if err != nil {
		job.setStatus(StatusFailed, err.Error())
		return
	}

	if len(result.Events) == 0 && !result.FromCache {
		job.setStatus(StatusNoNotes, apperrors.ErrNoEvents.Error())
		return
	}

	job.mu.Lock()
	job.Document = result.Document
	if wantMIDI {
		if _, statErr := os.Stat(cfg.MIDIOutputPath); statErr == nil {
			job.MIDIPath = cfg.MIDIOutputPath
		}
	}
	job.Status = StatusComplete
	job.mu.Unlock()
}
