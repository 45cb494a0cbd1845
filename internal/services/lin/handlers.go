// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package lin

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/vectorgrp/silkit-go/internal/trace"
)

// FrameStatusHandler is called once per resolved header/frame, whether
// this node resolved it locally or merely observed it on the wire.
type FrameStatusHandler func(frame Frame, status FrameStatus, timestamp time.Duration)

// GoToSleepHandler is called when a go-to-sleep event is observed.
type GoToSleepHandler func()

// WakeupHandler is called when a wakeup pulse is observed.
type WakeupHandler func()

// FrameHeaderHandler is called on a dynamic node when a header for id
// is observed, so the node can synthesize a response (spec §4.5.1, §4.5.8).
type FrameHeaderHandler func(id Id)

// SlaveConfigurationHandler is called when a peer's response table
// changes, carrying the event's timestamp (spec §4.5.6 step 3).
type SlaveConfigurationHandler func(timestamp time.Duration)

// TraceHandler is the internal tracing hook (spec §4.5.8): it mirrors
// every frame delivered to this node to a trace sink, grounded on
// ITraceMessageSink.hpp. On the node that resolves a header, dir follows
// the same node-local TX/RX reinterpretation as FrameStatusHandler (spec
// §4.5.4 step 6). A transmission received from a peer is always traced
// as Receive, whatever status the frame-status handlers get for it.
type TraceHandler func(dir trace.Direction, frame Frame, timestamp time.Duration)

// registry is a synchronized add/remove/iterate container for one
// handler type, allowing safe concurrent registration from a user
// thread while invocation happens on the dispatch thread (spec §5).
type registry[T any] struct {
	mu sync.RWMutex
	m  map[HandlerId]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{m: make(map[HandlerId]T)}
}

func (r *registry[T]) add(id HandlerId, h T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[id] = h
}

// remove reports whether id was present.
func (r *registry[T]) remove(id HandlerId) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[id]; !ok {
		return false
	}
	delete(r.m, id)
	return true
}

func (r *registry[T]) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func (r *registry[T]) forEach(fn func(T)) {
	r.mu.RLock()
	snapshot := make([]T, 0, len(r.m))
	for _, h := range r.m {
		snapshot = append(snapshot, h)
	}
	r.mu.RUnlock()
	for _, h := range snapshot {
		fn(h)
	}
}

// handlerIDAllocator hands out HandlerIds that are unique within one
// controller, shared across all six handler types, via a single atomic
// counter.
type handlerIDAllocator struct {
	next atomic.Uint64
}

func (a *handlerIDAllocator) alloc() HandlerId {
	return HandlerId(a.next.Inc())
}
