package registry

import (
	"sync"

	"github.com/ankit/closepilot/internal/domain"
	"github.com/ankit/closepilot/internal/logger"
)

// Registry is the single source of truth for closing batch progress. It
// owns all Job state for the life of the process; nothing is persisted,
// so a restart forgets in-flight jobs.
//
// The outer lock only guards the map. Each job carries its own mutex, so
// mutations of one job never block readers or writers of another.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*jobEntry
	log  *logger.Logger
}

type jobEntry struct {
	mu  sync.Mutex
	job domain.Job
}

// New creates an empty Registry.
func New(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.GetDefault()
	}
	return &Registry{
		jobs: make(map[string]*jobEntry),
		log:  log,
	}
}

// Create inserts a new running Job with the given total. Job ids are
// generated fresh per submission; a duplicate id is a programmer error
// and leaves the existing entry untouched.
func (r *Registry) Create(jobID string, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[jobID]; exists {
		r.log.WithField(logger.FieldJobID, jobID).Error("Duplicate job id, keeping existing entry")
		return
	}

	r.jobs[jobID] = &jobEntry{
		job: domain.Job{
			ID:            jobID,
			Total:         total,
			Completed:     0,
			Status:        domain.JobStatusRunning,
			Logs:          []string{},
			FinishedDeals: []string{},
			Results:       make(map[string]string),
			ItemStatus:    make(map[string]string),
		},
	}
}

// Mutate applies fn to the job under its lock. Absent ids are a no-op:
// the job may never have existed or predates a restart, and workers must
// not fail because of that.
func (r *Registry) Mutate(jobID string, fn func(j *domain.Job)) {
	r.mu.RLock()
	entry, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	fn(&entry.job)
}

// Snapshot returns a deep copy of the job state, safe to hand to encoders
// while workers keep mutating the original. ok is false for unknown ids.
func (r *Registry) Snapshot(jobID string) (domain.Job, bool) {
	r.mu.RLock()
	entry, ok := r.jobs[jobID]
	r.mu.RUnlock()
	if !ok {
		return domain.Job{}, false
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	snap := entry.job
	snap.Logs = append([]string(nil), entry.job.Logs...)
	snap.FinishedDeals = append([]string(nil), entry.job.FinishedDeals...)
	snap.Results = make(map[string]string, len(entry.job.Results))
	for k, v := range entry.job.Results {
		snap.Results[k] = v
	}
	snap.ItemStatus = make(map[string]string, len(entry.job.ItemStatus))
	for k, v := range entry.job.ItemStatus {
		snap.ItemStatus[k] = v
	}
	return snap, true
}

// Len returns the number of tracked jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
