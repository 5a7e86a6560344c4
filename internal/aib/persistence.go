package aib

import (
	"log"
	"time"

	"tankarena/internal/msclient"
	"tankarena/internal/msstore"
)

// saveJob is one pending model save (§4.3: "a single-threaded queue drains
// (url, jsonBody, sessionRef) items"; here the "url" is implicit in the
// client and modelKey, and sessionRef is passed to the result callback
// along with the save's latency).
type saveJob struct {
	record      msstore.Record
	sessionID   string
	enqueuedAt  time.Time
}

// persistenceWorker drains saveJobs one at a time against the model
// store, reporting each save's latency to onResult (the Manager's callback
// feeds one process-wide histogram; latency is not kept per session). Grounded
// on the control plane's own single-goroutine-draining-a-channel idiom
// (internal/chat/listener.go's Run loop draining its Commands channel).
type persistenceWorker struct {
	ms       *msclient.Client
	jobs     chan saveJob
	done     chan struct{}
	onResult func(sessionID string, latency time.Duration, err error)
}

func newPersistenceWorker(ms *msclient.Client, onResult func(sessionID string, latency time.Duration, err error)) *persistenceWorker {
	return &persistenceWorker{
		ms:       ms,
		jobs:     make(chan saveJob, 256),
		done:     make(chan struct{}),
		onResult: onResult,
	}
}

// Enqueue queues a save; it never blocks the caller's training step (a
// full queue drops the job, matching §7's "MS save failure: silently
// dropped, next save supersedes").
func (w *persistenceWorker) Enqueue(job saveJob) {
	select {
	case w.jobs <- job:
	default:
		log.Printf("aib: persistence queue full, dropping save for session %s", job.sessionID)
	}
}

// Run drains the queue until Stop is called. Call in its own goroutine.
func (w *persistenceWorker) Run() {
	for {
		select {
		case <-w.done:
			return
		case job := <-w.jobs:
			start := time.Now()
			err := w.ms.PutModel(job.record.ModelKey, job.record)
			if err != nil {
				log.Printf("aib: save model %s failed: %v", job.record.ModelKey, err)
			}
			if w.onResult != nil {
				w.onResult(job.sessionID, time.Since(start), err)
			}
		}
	}
}

// Stop releases the worker goroutine.
func (w *persistenceWorker) Stop() {
	close(w.done)
}
