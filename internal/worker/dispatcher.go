package worker

import (
	"container/list"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type userQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher serializes jobs per user: at most one job of a user runs at a
// time, and users take turns in LRU order so one busy user cannot starve
// the rest. This is what gives a conversation a single writer at a time.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job
	wake     chan struct{}

	mu        sync.Mutex
	queues    map[int64]*userQueue
	ready     *list.List // LRU queue of user IDs with pending jobs
	positions map[int64]*list.Element
	inflight  map[int64]bool
}

// NewDispatcher starts the dispatch loop with a warmed-up worker pool.
func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(minWorkers, maxWorkers, idleTimeout),
		JobQueue:  make(chan Job, queueSize),
		wake:      make(chan struct{}, 1),
		queues:    make(map[int64]*userQueue),
		ready:     list.New(),
		positions: make(map[int64]*list.Element),
		inflight:  make(map[int64]bool),
	}
	for i := 0; i < minWorkers; i++ {
		d.pool.spawnWorker()
	}
	go d.run()
	return d
}

// Submit queues one job. It blocks only when the inbound queue is full.
func (d *Dispatcher) Submit(job Job) {
	d.JobQueue <- job
}

// CancelUser drops every queued job of a user. A job already running is
// not interrupted.
func (d *Dispatcher) CancelUser(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.queues, userID)
	if elem, ok := d.positions[userID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, userID)
	}
}

func (d *Dispatcher) run() {
	for {
		if !d.dispatchOne() {
			// nothing dispatchable, wait for inbound work or a finished
			// job freeing up a user
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.wake:
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.UserID]
	if q == nil {
		q = &userQueue{}
		d.queues[job.UserID] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued || d.inflight[job.UserID] {
		return
	}
	q.enqueued = true
	d.positions[job.UserID] = d.ready.PushBack(job.UserID)
}

// dispatchOne hands the front user's next job to a worker. The user leaves
// the ready list while the job runs; finishJob requeues them if more jobs
// arrived meanwhile.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	userID := elem.Value.(int64)
	q := d.queues[userID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	d.ready.Remove(elem)
	delete(d.positions, userID)
	d.inflight[userID] = true
	if len(q.jobs) == 0 {
		delete(d.queues, userID)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"feature": job.Feature,
	}).Debug("dispatch job")

	run := job.Run
	job.Run = func() {
		defer d.finishJob(userID)
		run()
	}
	workerChan <- job
	return true
}

// finishJob clears the user's inflight mark and requeues them when more
// jobs are waiting.
func (d *Dispatcher) finishJob(userID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.inflight, userID)
	q := d.queues[userID]
	if q == nil || len(q.jobs) == 0 || q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[userID] = d.ready.PushBack(userID)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}
