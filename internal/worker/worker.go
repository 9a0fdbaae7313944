package worker

import (
	"github.com/sirupsen/logrus"
)

// Job is one unit of per-user work. Run carries everything the job needs;
// the dispatcher only cares about which user it belongs to.
type Job struct {
	UserID  int64
	Feature string
	Run     func()

	stop bool
}

type worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(pool *jobChannelPool) *worker {
	return &worker{
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

// start runs the worker loop: execute one job, hand the channel back to the
// pool, repeat until retired.
func (w *worker) start() {
	go func() {
		for job := range w.jobChannel {
			if job.stop {
				return
			}
			w.runJob(job)
			w.pool.release(w.jobChannel)
		}
	}()
}

func (w *worker) runJob(job Job) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": job.UserID,
				"feature": job.Feature,
				"panic":   r,
			}).Error("job panicked")
		}
	}()
	job.Run()
}
