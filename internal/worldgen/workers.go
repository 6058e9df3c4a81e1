// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package worldgen

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// workers is a pool of goroutines running generation jobs.
//
// Each worker owns a buffered queue and steals from the others when its own
// queue is empty, so slow meshing jobs do not starve cheap voxel fills.
type workers struct {
	n      int
	queues []chan func()
	done   chan struct{}
	wg     sync.WaitGroup

	running atomic.Bool
	busy    atomic.Int32
}

// newWorkers starts n workers. If n is 0 or negative, GOMAXPROCS is used.
func newWorkers(n, queueSize int) *workers {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if queueSize <= 0 {
		queueSize = max(n*4, 8)
	}

	w := &workers{
		n:      n,
		queues: make([]chan func(), n),
		done:   make(chan struct{}),
	}
	for i := range n {
		w.queues[i] = make(chan func(), queueSize)
	}
	w.running.Store(true)

	w.wg.Add(n)
	for i := range n {
		go w.loop(i)
	}
	return w
}

func (w *workers) loop(id int) {
	defer w.wg.Done()

	mine := w.queues[id]
	for {
		select {
		case <-w.done:
			w.drain(mine)
			return
		case job := <-mine:
			w.run(job)
		default:
			if job := w.steal(id); job != nil {
				w.run(job)
				continue
			}
			select {
			case <-w.done:
				w.drain(mine)
				return
			case job := <-mine:
				w.run(job)
			}
		}
	}
}

func (w *workers) run(job func()) {
	if job == nil {
		return
	}
	w.busy.Add(1)
	defer w.busy.Add(-1)
	job()
}

func (w *workers) drain(q chan func()) {
	for {
		select {
		case job := <-q:
			w.run(job)
		default:
			return
		}
	}
}

func (w *workers) steal(id int) func() {
	for i := range w.n {
		if i == id {
			continue
		}
		select {
		case job := <-w.queues[i]:
			return job
		default:
		}
	}
	return nil
}

// submit queues job on the shortest queue without blocking. It returns false
// if the pool is closed or every queue is full.
func (w *workers) submit(job func()) bool {
	if job == nil || !w.running.Load() {
		return false
	}

	minIdx, minLen := 0, len(w.queues[0])
	for i := 1; i < w.n; i++ {
		if l := len(w.queues[i]); l < minLen {
			minIdx, minLen = i, l
		}
	}
	for i := range w.n {
		select {
		case w.queues[(minIdx+i)%w.n] <- job:
			return true
		default:
		}
	}
	return false
}

// close stops accepting work, runs what is queued and waits for workers.
// Safe to call multiple times.
func (w *workers) close() {
	if !w.running.CompareAndSwap(true, false) {
		return
	}
	close(w.done)
	w.wg.Wait()
}

// queued returns the approximate number of queued jobs.
func (w *workers) queued() int {
	total := 0
	for _, q := range w.queues {
		total += len(q)
	}
	return total
}
