// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package chunk

import (
	"fmt"
	"strings"
)

// Policy selects which end of a pending queue is admitted first.
type Policy uint8

const (
	// FIFO admits chunks in request order.
	FIFO Policy = iota

	// LIFO admits the most recently queued chunk first, which favors
	// chunks near a moving camera when requests are issued outward.
	LIFO
)

func (p Policy) String() string {
	switch p {
	case FIFO:
		return "fifo"
	case LIFO:
		return "lifo"
	default:
		return "unknown"
	}
}

// ParsePolicy parses "fifo" or "lifo", case-insensitively.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "fifo":
		return FIFO, nil
	case "lifo":
		return LIFO, nil
	default:
		return FIFO, fmt.Errorf("chunk: unknown queue policy %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(text []byte) error {
	v, err := ParsePolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// uniqueQueue is an ordered set of coordinates: a coordinate is queued at
// most once. It is owned by the manager goroutine and not synchronized.
type uniqueQueue struct {
	policy  Policy
	items   []Coord
	present map[Coord]bool
}

func newUniqueQueue(policy Policy) *uniqueQueue {
	return &uniqueQueue{
		policy:  policy,
		items:   make([]Coord, 0, 64),
		present: make(map[Coord]bool),
	}
}

// push adds c if not already queued. Returns true if it was added.
func (q *uniqueQueue) push(c Coord) bool {
	if q.present[c] {
		return false
	}
	q.items = append(q.items, c)
	q.present[c] = true
	return true
}

// pop removes and returns the next coordinate per policy.
func (q *uniqueQueue) pop() (Coord, bool) {
	if len(q.items) == 0 {
		return Coord{}, false
	}
	var c Coord
	if q.policy == LIFO {
		c = q.items[len(q.items)-1]
		q.items = q.items[:len(q.items)-1]
	} else {
		c = q.items[0]
		q.items[0] = Coord{}
		q.items = q.items[1:]
	}
	delete(q.present, c)
	return c, true
}

// remove drops c from the queue if present.
func (q *uniqueQueue) remove(c Coord) bool {
	if !q.present[c] {
		return false
	}
	for i := range q.items {
		if q.items[i] == c {
			q.items = append(q.items[:i], q.items[i+1:]...)
			break
		}
	}
	delete(q.present, c)
	return true
}

func (q *uniqueQueue) contains(c Coord) bool {
	return q.present[c]
}

func (q *uniqueQueue) len() int {
	return len(q.items)
}
