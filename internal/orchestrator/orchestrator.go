// Package orchestrator drives batch translation jobs through their
// lifecycle: upload, admission-controlled submission, fixed-interval status
// polling, result download, and quota-aware retry. A single coordinating
// loop owns all job state, so no internal locking is needed.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/valpere/batchtran/internal/openai"
)

// State is a job's position in its lifecycle.
type State string

const (
	StatePendingUpload State = "pending_upload"
	StateUploaded      State = "uploaded"
	StateSubmitted     State = "submitted"
	StateValidating    State = "validating"
	StateInProgress    State = "in_progress"
	StateFinalizing    State = "finalizing"
	StateCancelling    State = "cancelling"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
)

// Job is one batch file moving through the remote service. Jobs are created
// and mutated only by the orchestrator's coordinating loop.
type Job struct {
	InputPath   string // local batch file; empty for retry resubmissions
	InputFileID string // remote file id the job was created from
	BatchID     string // remote job id once submitted
	State       State
	OutputPath  string // local result file once downloaded
	Error       string // terminal failure message
}

// Service is the remote surface the orchestrator depends on.
type Service interface {
	UploadFile(ctx context.Context, path string) (string, error)
	CreateBatch(ctx context.Context, fileID string) (string, error)
	GetBatch(ctx context.Context, id string) (*openai.Batch, error)
	ListBatches(ctx context.Context) ([]openai.Batch, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
}

// Recorder persists job lifecycle transitions for later inspection.
// Implementations must tolerate being called from a single goroutine only.
type Recorder interface {
	RecordTransition(ctx context.Context, runID, batchID string, from, to State, detail string) error
}

// Config holds the scheduling knobs. Zero values select the defaults the
// original deployment used.
type Config struct {
	RunID         string
	OutputDir     string
	MaxActive     int           // admission bound K; default 2
	PollInterval  time.Duration // status poll spacing; default 5s
	RetryInterval time.Duration // wait before re-checking the drain barrier; default 10s
	QuotaPattern  string        // failure substring marking quota exhaustion
	Log           io.Writer     // progress sink; default os.Stderr
}

// DefaultQuotaPattern is the service's enqueued-token-limit failure message.
const DefaultQuotaPattern = "Enqueued token limit reached"

// Summary reports what happened to every job of a run.
type Summary struct {
	Completed   []*Job
	Failed      []*Job
	Retried     int      // quota failures that were requeued
	OutputFiles []string // downloaded result files, in completion order
}

// Orchestrator coordinates jobs against a Service.
type Orchestrator struct {
	client   Service
	recorder Recorder
	cfg      Config
}

// New creates an Orchestrator. recorder may be nil.
func New(client Service, recorder Recorder, cfg Config) *Orchestrator {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 10 * time.Second
	}
	if cfg.QuotaPattern == "" {
		cfg.QuotaPattern = DefaultQuotaPattern
	}
	if cfg.Log == nil {
		cfg.Log = os.Stderr
	}
	return &Orchestrator{client: client, recorder: recorder, cfg: cfg}
}

// Run uploads the batch files and drives every resulting job to a terminal
// state, retrying quota failures once the active set has fully drained.
// It returns when the active set and the retry queue are both empty.
func (o *Orchestrator) Run(ctx context.Context, inputFiles []string) (*Summary, error) {
	summary := &Summary{}

	// Upload phase. Files that fail to upload are skipped, not fatal.
	var pending []*Job
	inputPaths := make(map[string]string) // file id -> local path
	for _, path := range inputFiles {
		job := &Job{InputPath: path, State: StatePendingUpload}
		fileID, err := o.client.UploadFile(ctx, path)
		if err != nil {
			o.logf("Failed to upload %s: %v", path, err)
			o.transition(ctx, job, StateFailed, err.Error())
			job.Error = err.Error()
			summary.Failed = append(summary.Failed, job)
			continue
		}
		job.InputFileID = fileID
		o.transition(ctx, job, StateUploaded, fileID)
		inputPaths[fileID] = path
		pending = append(pending, job)
		o.logf("Uploaded %s as %s", path, fileID)
	}

	active := make(map[string]*Job) // keyed by batch id
	var retryQueue []string        // input file ids awaiting resubmission

	for len(pending) > 0 || len(active) > 0 || len(retryQueue) > 0 {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		// Admission: at most MaxActive jobs may occupy the service. The
		// count comes from a fresh listJobs query, not local state, so
		// externally created jobs are accounted for (with a benign
		// check-then-act race window).
		if len(pending) > 0 {
			count, err := o.activeCount(ctx)
			if err != nil {
				o.logf("Failed to count active batches: %v", err)
			} else if count < o.cfg.MaxActive {
				job := pending[0]
				pending = pending[1:]
				o.submit(ctx, job, active, summary)
			} else {
				o.logf("%d active batches, waiting for capacity", count)
			}
		}

		o.pollRound(ctx, active, &retryQueue, summary)

		// Retry draining: resubmit quota-failed inputs only once nothing
		// is active anywhere; creating jobs under exhausted quota would
		// compound the failure. Drained entries re-enter the admission
		// gate so the MaxActive bound holds for retries too.
		if len(pending) == 0 && len(active) == 0 && len(retryQueue) > 0 {
			count, err := o.activeCount(ctx)
			if err == nil && count == 0 {
				o.logf("Retrying failed batches with input file ids: %s", strings.Join(retryQueue, ", "))
				for _, fileID := range retryQueue {
					pending = append(pending, &Job{
						InputPath:   inputPaths[fileID],
						InputFileID: fileID,
						State:       StateUploaded,
					})
				}
				retryQueue = nil
				continue
			}
			if err != nil {
				o.logf("Failed to count active batches: %v", err)
			} else {
				o.logf("Waiting for %d active batches to complete before retrying", count)
			}
			o.sleep(ctx, o.cfg.RetryInterval)
			continue
		}

		if len(pending) > 0 || len(active) > 0 {
			o.sleep(ctx, o.cfg.PollInterval)
		}
	}

	o.logf("Monitoring complete. All batches processed.")
	return summary, nil
}

// submit creates a remote job for an uploaded input file.
func (o *Orchestrator) submit(ctx context.Context, job *Job, active map[string]*Job, summary *Summary) {
	batchID, err := o.client.CreateBatch(ctx, job.InputFileID)
	if err != nil {
		// Structured rejections are terminal for the job; so are
		// transport failures at this point; the caller sees them in
		// the summary either way.
		o.logf("Failed to create batch for %s: %v", job.InputFileID, err)
		o.transition(ctx, job, StateFailed, err.Error())
		job.Error = err.Error()
		summary.Failed = append(summary.Failed, job)
		return
	}
	job.BatchID = batchID
	o.transition(ctx, job, StateSubmitted, "")
	active[batchID] = job
	o.logf("Batch %s created from %s", batchID, job.InputFileID)
}

// pollRound inspects every outstanding job once, sequentially.
func (o *Orchestrator) pollRound(ctx context.Context, active map[string]*Job, retryQueue *[]string, summary *Summary) {
	for _, batchID := range sortedKeys(active) {
		job := active[batchID]

		b, err := o.client.GetBatch(ctx, batchID)
		if err != nil {
			// Transient: leave the job active and try again next round.
			o.logf("Failed to get status of batch %s: %v", batchID, err)
			continue
		}

		switch b.Status {
		case openai.StatusCompleted:
			o.complete(ctx, job, b, summary)
			delete(active, batchID)

		case openai.StatusFailed:
			o.classifyFailure(ctx, job, b, retryQueue, summary)
			delete(active, batchID)

		case openai.StatusValidating, openai.StatusInProgress, openai.StatusFinalizing, openai.StatusCancelling:
			o.transition(ctx, job, State(b.Status), "")
			o.logf("Batch %s is %s. Waiting to complete.", batchID, b.Status)

		default:
			// expired, cancelled, or a status added to the API after this
			// was written. Terminal and never retried, so the run cannot
			// hang polling a job that will not move again.
			message := fmt.Sprintf("unexpected terminal status %q", b.Status)
			o.transition(ctx, job, StateFailed, message)
			job.Error = message
			summary.Failed = append(summary.Failed, job)
			o.logf("Batch %s reported status %s. Treating as terminal.", batchID, b.Status)
			delete(active, batchID)
		}
	}
}

// complete downloads the job's output when the service produced one.
func (o *Orchestrator) complete(ctx context.Context, job *Job, b *openai.Batch, summary *Summary) {
	if b.OutputFileID == "" {
		// Completed with nothing to fetch: a no-op success.
		o.transition(ctx, job, StateCompleted, "no output file")
		summary.Completed = append(summary.Completed, job)
		o.logf("Batch %s completed with no output file.", job.BatchID)
		return
	}

	data, err := o.client.DownloadFile(ctx, b.OutputFileID)
	if err != nil {
		o.logf("Failed to download results of batch %s: %v", job.BatchID, err)
		o.transition(ctx, job, StateFailed, err.Error())
		job.Error = err.Error()
		summary.Failed = append(summary.Failed, job)
		return
	}

	path := filepath.Join(o.cfg.OutputDir, fmt.Sprintf("output_%s.jsonl", job.BatchID))
	if err := os.WriteFile(path, data, 0644); err != nil {
		o.logf("Failed to save results of batch %s: %v", job.BatchID, err)
		o.transition(ctx, job, StateFailed, err.Error())
		job.Error = err.Error()
		summary.Failed = append(summary.Failed, job)
		return
	}

	job.OutputPath = path
	o.transition(ctx, job, StateCompleted, path)
	summary.Completed = append(summary.Completed, job)
	summary.OutputFiles = append(summary.OutputFiles, path)
	o.logf("Batch %s completed. Results saved to %s", job.BatchID, path)
}

// classifyFailure decides whether a failed job is quota-retryable. The job
// itself is always terminal; what gets requeued is its input file id, from
// which a fresh job will be created after the drain barrier.
func (o *Orchestrator) classifyFailure(ctx context.Context, job *Job, b *openai.Batch, retryQueue *[]string, summary *Summary) {
	message := "No error message provided"
	if msgs := b.ErrorMessages(); len(msgs) > 0 {
		message = msgs[0]
	}
	o.logf("Batch %s failed with error: %s", job.BatchID, message)

	if o.isQuotaFailure(b) && b.InputFileID != "" {
		o.transition(ctx, job, StateFailed, "quota exhausted, input queued for retry")
		job.Error = message
		*retryQueue = append(*retryQueue, b.InputFileID)
		summary.Retried++
		o.logf("Batch %s failed due to token limit. Marking %s for retry.", job.BatchID, b.InputFileID)
		return
	}

	o.transition(ctx, job, StateFailed, message)
	job.Error = message
	summary.Failed = append(summary.Failed, job)
	o.logf("Batch %s encountered a non-retryable error. Skipping.", job.BatchID)
}

func (o *Orchestrator) isQuotaFailure(b *openai.Batch) bool {
	for _, msg := range b.ErrorMessages() {
		if strings.Contains(msg, o.cfg.QuotaPattern) {
			return true
		}
	}
	return false
}

// activeCount queries the service for the number of jobs currently holding
// capacity, regardless of who created them.
func (o *Orchestrator) activeCount(ctx context.Context) (int, error) {
	batches, err := o.client.ListBatches(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, b := range batches {
		if openai.IsActiveStatus(b.Status) {
			count++
		}
	}
	return count, nil
}

// transition updates the job state and journals the change when a recorder
// is configured. Repeated transitions into the same state are skipped.
func (o *Orchestrator) transition(ctx context.Context, job *Job, to State, detail string) {
	if job.State == to {
		return
	}
	from := job.State
	job.State = to
	if o.recorder != nil {
		if err := o.recorder.RecordTransition(ctx, o.cfg.RunID, job.BatchID, from, to, detail); err != nil {
			o.logf("Failed to journal transition of batch %s: %v", job.BatchID, err)
		}
	}
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (o *Orchestrator) logf(format string, args ...any) {
	stamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(o.cfg.Log, "[%s] "+format+"\n", append([]any{stamp}, args...)...)
}

func sortedKeys(m map[string]*Job) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
