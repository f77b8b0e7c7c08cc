// Package scheduler implements the cooperative service queue. Services run
// one at a time on a single goroutine; each tick returns the UNIX time of
// its next invocation.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Priority breaks ties between services due at the same time. Lower value
// runs first.
type Priority uint8

const (
	PriorityHigh Priority = 1
	PriorityMed  Priority = 2
	PriorityLow  Priority = 3
)

// Func is one cooperative service tick. Return semantics: 0 = deschedule,
// 1 = call again on the next pass, any other value = call at or after that
// UNIX time.
type Func func(*ServiceBlock) int64

// ServiceBlock is the queue entry for one service.
type ServiceBlock struct {
	Name     string
	CallTime int64
	Priority Priority
	Service  Func
}

// Queue is the ordered list of scheduled services.
type Queue struct {
	mu     sync.Mutex
	blocks []*ServiceBlock
	now    func() int64
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{now: func() int64 { return time.Now().Unix() }}
}

// SetNow overrides the clock, for tests.
func (q *Queue) SetNow(now func() int64) {
	q.now = now
}

// NewService creates a service block and schedules it for the next pass.
func (q *Queue) NewService(name string, priority Priority, fn Func) *ServiceBlock {
	sb := &ServiceBlock{
		Name:     name,
		CallTime: 1,
		Priority: priority,
		Service:  fn,
	}
	q.Add(sb)
	return sb
}

// Add schedules a block. Re-adding a descheduled block restarts it.
func (q *Queue) Add(sb *ServiceBlock) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range q.blocks {
		if b == sb {
			return
		}
	}
	q.blocks = append(q.blocks, sb)
}

// RunPass dispatches every due service once and returns the time of the next
// scheduled call, or 0 if the queue is empty. Exposed so tests can drive the
// queue deterministically.
func (q *Queue) RunPass() int64 {
	now := q.now()

	q.mu.Lock()
	due := make([]*ServiceBlock, 0, len(q.blocks))
	for _, b := range q.blocks {
		if b.CallTime <= now {
			due = append(due, b)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if due[i].CallTime != due[j].CallTime {
			return due[i].CallTime < due[j].CallTime
		}
		return due[i].Priority < due[j].Priority
	})
	q.mu.Unlock()

	for _, b := range due {
		next := b.Service(b)
		q.mu.Lock()
		switch next {
		case 0:
			q.removeLocked(b)
			log.Debugf("scheduler: service %s descheduled", b.Name)
		case 1:
			b.CallTime = now
		default:
			b.CallTime = next
		}
		q.mu.Unlock()
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	var earliest int64
	for _, b := range q.blocks {
		if earliest == 0 || b.CallTime < earliest {
			earliest = b.CallTime
		}
	}
	return earliest
}

func (q *Queue) removeLocked(sb *ServiceBlock) {
	for i, b := range q.blocks {
		if b == sb {
			q.blocks = append(q.blocks[:i], q.blocks[i+1:]...)
			return
		}
	}
}

// Wake schedules the block for the next pass, re-adding it if it was
// descheduled.
func (q *Queue) Wake(sb *ServiceBlock) {
	q.mu.Lock()
	defer q.mu.Unlock()
	sb.CallTime = 1
	for _, b := range q.blocks {
		if b == sb {
			return
		}
	}
	q.blocks = append(q.blocks, sb)
}

// Run dispatches services until the context is cancelled.
func (q *Queue) Run(ctx context.Context) {
	for {
		earliest := q.RunPass()

		wait := 250 * time.Millisecond
		if earliest > 0 {
			if d := time.Duration(earliest-q.now()) * time.Second; d > 0 && d < wait {
				wait = d
			} else if d <= 0 {
				wait = 10 * time.Millisecond
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
