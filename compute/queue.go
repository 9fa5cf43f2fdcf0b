package compute

import (
	"fmt"
	"sync"
)

// command is one unit of queued device work.
type command struct {
	label string
	run   func() error

	// done receives the command's error when the enqueuer waits for it.
	done chan error
}

// exec runs the command, converting a panic into an error.
func (c command) exec() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", c.label, r)
		}
	}()
	return c.run()
}

// queue is a single in-order command queue. Commands run one at a time on
// a dedicated goroutine in enqueue order, so a command observes every
// effect of the commands enqueued before it.
type queue struct {
	cmds chan command

	// mu guards closed and the send side of cmds.
	mu      sync.Mutex
	closed  bool
	stopped chan struct{}

	errMu    sync.Mutex
	deferred error
}

func newQueue() *queue {
	q := &queue{
		cmds:    make(chan command, 256),
		stopped: make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *queue) loop() {
	defer close(q.stopped)
	for cmd := range q.cmds {
		err := cmd.exec()
		if cmd.done != nil {
			cmd.done <- err
			continue
		}
		if err != nil {
			q.errMu.Lock()
			if q.deferred == nil {
				q.deferred = err
			}
			q.errMu.Unlock()
			slogger().Debug("compute: queued command failed", "command", cmd.label, "err", err)
		}
	}
}

// enqueue adds an asynchronous command. Its error, if any, is reported by
// the next finish.
func (q *queue) enqueue(label string, run func() error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.cmds <- command{label: label, run: run}
	return nil
}

// enqueueWait adds a command and blocks until it has run.
func (q *queue) enqueueWait(label string, run func() error) error {
	done := make(chan error, 1)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.cmds <- command{label: label, run: run, done: done}
	q.mu.Unlock()
	return <-done
}

// finish waits for all previously enqueued commands and returns the first
// deferred error since the previous finish.
func (q *queue) finish() error {
	if err := q.enqueueWait("finish", func() error { return nil }); err != nil {
		return err
	}
	q.errMu.Lock()
	defer q.errMu.Unlock()
	err := q.deferred
	q.deferred = nil
	return err
}

// close drains the queue and stops its goroutine.
func (q *queue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.cmds)
	q.mu.Unlock()
	<-q.stopped
}
