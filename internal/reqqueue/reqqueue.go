// Package reqqueue serializes calls onto a single worker goroutine so that
// only one goroutine ever touches the guarded resource at a time. It is the
// same request/response-channel pattern the SLAM facade uses to ensure only
// one goroutine calls into its single-threaded engine at once, generalized
// with a type parameter so it can back both the SLAM engine serializer and
// the mode arbiter's single-writer mode queue.
package reqqueue

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// request carries one unit of work plus the channel its result is returned on.
type request[T any] struct {
	work         func() (T, error)
	responseChan chan response[T]
}

type response[T any] struct {
	result T
	err    error
}

// Queue serializes Do calls onto a single background worker.
type Queue[T any] struct {
	requestChan chan request[T]
}

// New returns an unstarted Queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{requestChan: make(chan request[T])}
}

// Start launches the worker goroutine that executes queued work one item at
// a time. It runs until ctx is cancelled; activeBackgroundWorkers is
// released on exit.
func (q *Queue[T]) Start(ctx context.Context, activeBackgroundWorkers *sync.WaitGroup) {
	activeBackgroundWorkers.Add(1)
	go func() {
		defer activeBackgroundWorkers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-q.requestChan:
				result, err := req.work()
				req.responseChan <- response[T]{result: result, err: err}
			}
		}
	}()
}

// Do enqueues work and blocks until it has run or timeout elapses, whichever
// is first. Only one Do call's work function runs at a time, process-wide
// for this Queue.
func (q *Queue[T]) Do(ctxParent context.Context, timeout time.Duration, work func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctxParent, timeout)
	defer cancel()

	req := request[T]{work: work, responseChan: make(chan response[T], 1)}

	var zero T
	select {
	case q.requestChan <- req:
		select {
		case resp := <-req.responseChan:
			return resp.result, resp.err
		case <-ctx.Done():
			return zero, multierr.Combine(errors.New("timeout reading queued response"), ctx.Err())
		}
	case <-ctx.Done():
		return zero, multierr.Combine(errors.New("timeout enqueueing work"), ctx.Err())
	}
}
