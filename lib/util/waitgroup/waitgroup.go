// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package waitgroup wraps sync.WaitGroup with panic recovery, so a
// background goroutine (the discovery watch, the LIN controller's
// discovery listener, the transport receive loop) never brings the
// whole process down.
package waitgroup

import (
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// WaitGroup wraps a sync.WaitGroup: its Run/RunWithRecover helpers spawn
// a tracked goroutine and Wait blocks until they return. It has no
// Add/Done methods of its own.
type WaitGroup struct {
	wg sync.WaitGroup
}

// Run spawns fn in a tracked goroutine without panic recovery.
func (w *WaitGroup) Run(fn func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		fn()
	}()
}

// RunWithRecover spawns fn in a tracked goroutine. If fn panics, the
// panic is recovered, optionally passed to onPanic, and logged instead
// of propagating to the process.
func (w *WaitGroup) RunWithRecover(fn func(), onPanic func(r any), lg *zap.Logger) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				if lg != nil {
					lg.Error("recovered from panic in goroutine",
						zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
				}
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}

// Wait blocks until every tracked goroutine has returned.
func (w *WaitGroup) Wait() {
	w.wg.Wait()
}
