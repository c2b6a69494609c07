package domain

// JobStatus represents the status of a closing batch job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
)

// Per-deal terminal outcomes.
const (
	ItemSuccess = "success"
	ItemFailure = "failure"
)

// Job tracks the aggregate progress of one submitted closing batch.
// Total is fixed at creation; Completed counts deals that reached a
// terminal outcome, success or failure alike. Results holds the envelope
// summary for deals that made it to submission; ItemStatus records the
// terminal outcome of every deal, failed ones included.
type Job struct {
	ID            string            `json:"job_id"`
	Total         int               `json:"total"`
	Completed     int               `json:"completed"`
	Status        JobStatus         `json:"status"`
	CurrentStep   string            `json:"current_step"`
	Logs          []string          `json:"logs"`
	FinishedDeals []string          `json:"finished_deals"`
	Results       map[string]string `json:"results"`
	ItemStatus    map[string]string `json:"item_status"`
}

// Done reports whether every deal in the batch has reached a terminal state.
func (j *Job) Done() bool {
	return j.Completed == j.Total
}

// AddFinishedDeal records a deal display name, ignoring duplicates.
func (j *Job) AddFinishedDeal(name string) {
	for _, existing := range j.FinishedDeals {
		if existing == name {
			return
		}
	}
	j.FinishedDeals = append(j.FinishedDeals, name)
}
