package submit

import "context"

// Task is a command running in its own goroutine. Every task must be
// joined with Wait.
type Task struct {
	cancel   context.CancelFunc
	done     chan struct{}
	pipeline *Pipeline
	err      error
}

// Go executes cmd in a new goroutine under a context derived from ctx.
func (d *Driver) Go(ctx context.Context, cmd Command) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(t.done)
		defer cancel()
		t.pipeline, t.err = d.Execute(ctx, cmd)
	}()
	return t
}

// Cancel stops the task. Work already handed to the node is not retracted.
func (t *Task) Cancel() { t.cancel() }

// Done is closed when the task has finished.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task finishes and returns its result.
func (t *Task) Wait() (*Pipeline, error) {
	<-t.done
	return t.pipeline, t.err
}
