package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ankit/closepilot/internal/domain"
)

func TestSnapshotUnknownJob(t *testing.T) {
	r := New(nil)

	job, ok := r.Snapshot("never-created")
	if ok {
		t.Fatal("expected ok=false for unknown job id")
	}
	if job.ID != "" || job.Total != 0 {
		t.Errorf("expected zero Job for unknown id, got %+v", job)
	}
}

func TestMutateUnknownJobIsNoop(t *testing.T) {
	r := New(nil)

	called := false
	r.Mutate("missing", func(j *domain.Job) {
		called = true
	})
	if called {
		t.Error("mutate fn must not run for an unknown job id")
	}
}

func TestCreateInitialState(t *testing.T) {
	r := New(nil)
	r.Create("job-1", 3)

	job, ok := r.Snapshot("job-1")
	if !ok {
		t.Fatal("expected job to exist after Create")
	}
	if job.Total != 3 || job.Completed != 0 {
		t.Errorf("expected total=3 completed=0, got total=%d completed=%d", job.Total, job.Completed)
	}
	if job.Status != domain.JobStatusRunning {
		t.Errorf("expected status running, got %s", job.Status)
	}
	if len(job.Logs) != 0 || len(job.Results) != 0 || len(job.FinishedDeals) != 0 {
		t.Errorf("expected empty logs/results/finished_deals, got %+v", job)
	}
}

func TestDuplicateCreateKeepsExisting(t *testing.T) {
	r := New(nil)
	r.Create("job-1", 3)
	r.Mutate("job-1", func(j *domain.Job) { j.Completed = 2 })

	r.Create("job-1", 10)

	job, _ := r.Snapshot("job-1")
	if job.Total != 3 || job.Completed != 2 {
		t.Errorf("duplicate Create must not overwrite, got total=%d completed=%d", job.Total, job.Completed)
	}
}

// TestConcurrentCompletionAccounting drives N workers through the
// terminal-accounting mutation concurrently and checks that completed
// lands exactly on N with a single status transition.
func TestConcurrentCompletionAccounting(t *testing.T) {
	const total = 64

	r := New(nil)
	r.Create("job-1", total)

	transitions := 0
	var transitionsMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.Mutate("job-1", func(j *domain.Job) {
				j.Logs = append(j.Logs, fmt.Sprintf("[deal-%d] done", n))
				j.Completed++
				if j.Completed == j.Total {
					j.Status = domain.JobStatusCompleted
					transitionsMu.Lock()
					transitions++
					transitionsMu.Unlock()
				}
			})
		}(i)
	}
	wg.Wait()

	job, _ := r.Snapshot("job-1")
	if job.Completed != total {
		t.Errorf("expected completed=%d, got %d", total, job.Completed)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", job.Status)
	}
	if len(job.Logs) != total {
		t.Errorf("expected %d log lines, got %d", total, len(job.Logs))
	}
	if transitions != 1 {
		t.Errorf("status must flip exactly once, flipped %d times", transitions)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	r := New(nil)
	r.Create("job-1", 1)
	r.Mutate("job-1", func(j *domain.Job) {
		j.Logs = append(j.Logs, "[d1] step one")
		j.Results["d1"] = "env-1"
		j.AddFinishedDeal("Deal One")
	})

	snap, _ := r.Snapshot("job-1")
	snap.Logs[0] = "tampered"
	snap.Results["d1"] = "tampered"
	snap.FinishedDeals[0] = "tampered"

	fresh, _ := r.Snapshot("job-1")
	if fresh.Logs[0] != "[d1] step one" {
		t.Error("snapshot logs must be a copy")
	}
	if fresh.Results["d1"] != "env-1" {
		t.Error("snapshot results must be a copy")
	}
	if fresh.FinishedDeals[0] != "Deal One" {
		t.Error("snapshot finished_deals must be a copy")
	}
}

func TestJobsDoNotBlockEachOther(t *testing.T) {
	r := New(nil)
	r.Create("job-a", 1)
	r.Create("job-b", 1)

	release := make(chan struct{})
	started := make(chan struct{})

	go r.Mutate("job-a", func(j *domain.Job) {
		close(started)
		<-release
	})

	<-started
	done := make(chan struct{})
	go func() {
		r.Mutate("job-b", func(j *domain.Job) { j.Completed = 1 })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("mutating job-b blocked behind job-a's mutation")
	}
	close(release)

	job, _ := r.Snapshot("job-b")
	if job.Completed != 1 {
		t.Errorf("expected job-b mutated, got completed=%d", job.Completed)
	}
}

func TestAddFinishedDealDeduplicates(t *testing.T) {
	j := domain.Job{}
	j.AddFinishedDeal("Acme Corp - Renewal")
	j.AddFinishedDeal("Acme Corp - Renewal")
	j.AddFinishedDeal("Globex - New Build")

	if len(j.FinishedDeals) != 2 {
		t.Errorf("expected 2 unique finished deals, got %v", j.FinishedDeals)
	}
}
