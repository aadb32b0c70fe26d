// Package eventloop provides the single cooperative thread all
// ForkContext, BranchInfo, and timer callbacks run serialized on, with
// no internal locking needed between them: a buffered channel of
// tasks drained by exactly one worker goroutine, so tasks run in
// posting order with no interleaving.
package eventloop

import "ForkGo/global"

// Loop serializes posted tasks onto a single goroutine.
type Loop struct {
	tasks chan func()
	done  chan struct{}
}

// New starts a Loop with the given task queue depth.
func New(queueSize int) *Loop {
	l := &Loop{
		tasks: make(chan func(), queueSize),
		done:  make(chan struct{}),
	}
	global.WtGrp.Add(1)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer global.WtGrp.Done()
	for {
		select {
		case task := <-l.tasks:
			l.safeRun(task)
		case <-l.done:
			return
		}
	}
}

func (l *Loop) safeRun(task func()) {
	defer func() {
		if r := recover(); r != nil {
			global.LogError(global.LTSystem, "recovered panic in event loop task")
		}
	}()
	task()
}

// Post enqueues task to run on the loop thread. Safe to call from any
// goroutine, including timer callbacks — this is the boundary external
// collaborators (registrar notifications, push senders, transport
// failures) must marshal results back across.
func (l *Loop) Post(task func()) {
	l.tasks <- task
}

// Stop terminates the loop's goroutine. Pending tasks are dropped.
func (l *Loop) Stop() {
	close(l.done)
}
