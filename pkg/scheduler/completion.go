// Completion handle for a scheduler running on its own goroutine
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package scheduler

import (
	"sync"
	"time"
)

// Completion represents a run that will finish with an error or nil.
type Completion struct {
	err  error
	done chan struct{}
	once sync.Once
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Test returns true if the run has finished.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// complete sets the result and wakes any waiters.
func (c *Completion) complete(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done is closed when the run finishes.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Err returns the run result. It is nil until Done is closed.
func (c *Completion) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Wait blocks until the run finishes or the timeout expires. The boolean is
// false on timeout. A non-positive timeout waits forever.
func (c *Completion) Wait(timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		<-c.done
		return true, c.err
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.done:
		return true, c.err
	case <-t.C:
		return false, nil
	}
}
