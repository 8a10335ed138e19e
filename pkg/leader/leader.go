// Package leader implements C11: the active/standby controller. Actual
// acquisition of the database-level lock is externalized to an Elector
// implementation (spec §4.11 "leader election is externalized to a
// database-level lock") — this package only sequences pause/resume of the
// reconciliation loop around whatever that lock reports.
package leader

import (
	"context"
	"sync"

	"k8s.io/klog/v2"
)

// Elector reports whether this process currently holds the cluster lock.
// A concrete implementation binds Acquired/Released to the chosen lock
// primitive (e.g. an OVSDB Lock RPC); this engine only consumes the
// resulting channel (spec §4.11).
type Elector interface {
	// Run blocks until ctx is canceled, sending true on becomeLeader
	// whenever the lock is acquired and false whenever it is lost.
	Run(ctx context.Context, becomeLeader chan<- bool)
}

// Controller gates the reconciliation loop: callers ask IsLeader before
// running a cycle, and WaitForTransition blocks until a leadership transition occurs
// (spec §4.11 "Active/standby").
type Controller struct {
	mu       sync.RWMutex
	isLeader bool
	notify   chan struct{}
}

func NewController() *Controller {
	return &Controller{notify: make(chan struct{}, 1)}
}

func (c *Controller) IsLeader() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isLeader
}

// Run drives elector until ctx is done, logging every transition and
// updating IsLeader (spec §4.11 "transitions are logged at the info
// level").
func (c *Controller) Run(ctx context.Context, elector Elector) {
	ch := make(chan bool, 1)
	go elector.Run(ctx, ch)
	for {
		select {
		case <-ctx.Done():
			return
		case leading := <-ch:
			c.mu.Lock()
			changed := c.isLeader != leading
			c.isLeader = leading
			c.mu.Unlock()
			if changed {
				if leading {
					klog.Info("acquired leadership, resuming reconciliation loop")
				} else {
					klog.Info("lost leadership, pausing reconciliation loop")
				}
				select {
				case c.notify <- struct{}{}:
				default:
				}
			}
		}
	}
}

// WaitForTransition blocks until the next leadership change or ctx is
// done, whichever comes first. The engine's main loop uses this to sleep
// while standby instead of spinning (spec §4.11).
func (c *Controller) WaitForTransition(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-c.notify:
	}
}

// StaticElector is always-leader, grounded on the common single-node
// deployment case where no lock coordination is needed (used by cmd's
// --standalone flag and by tests).
type StaticElector struct{}

func (StaticElector) Run(ctx context.Context, becomeLeader chan<- bool) {
	select {
	case becomeLeader <- true:
	case <-ctx.Done():
		return
	}
	<-ctx.Done()
}
