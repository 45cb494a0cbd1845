// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package replay

import (
	"time"

	"go.uber.org/zap"

	"github.com/vectorgrp/silkit-go/internal/metrics"
	"github.com/vectorgrp/silkit-go/internal/trace"
)

// Controller is the subset of a bus controller's API the scheduler
// needs: deliver one replayed message.
type Controller interface {
	ReplayMessage(msg trace.Message) error
	Name() string
}

// StepFunc is invoked by a TimeProvider once per simulation step, with
// the provider's current virtual time and the duration of the step
// that just elapsed.
type StepFunc func(now, duration time.Duration)

// TimeProvider is the minimal synchronized-time collaborator the
// scheduler drives against (spec §4.4 "time provider interaction").
type TimeProvider interface {
	RegisterNextStepHandler(fn StepFunc)
}

// task binds one controller to one replay channel reader.
type task struct {
	controller Controller
	reader     trace.ReplayChannelReader
	done       bool
}

// Scheduler drives replay for every registered task against a
// TimeProvider's step callback. It dispatches nothing until AddTask and
// Attach are called, and then dispatches on every step the provider
// delivers; it does not check whether that provider synchronizes
// virtual time.
type Scheduler struct {
	tasks     []*task
	started   bool
	startTime time.Duration
	done      bool

	metrics *metrics.Registry
	lg      *zap.Logger
}

// New builds an empty Scheduler. metrics may be nil to disable
// reporting.
func New(metrics *metrics.Registry, lg *zap.Logger) *Scheduler {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Scheduler{metrics: metrics, lg: lg}
}

// AddTask registers a controller/reader pair. Tasks are dispatched in
// registration order within a step (spec §5 ordering guarantees).
func (s *Scheduler) AddTask(controller Controller, reader trace.ReplayChannelReader) {
	s.tasks = append(s.tasks, &task{controller: controller, reader: reader})
	if s.metrics != nil {
		s.metrics.ActiveReplayTasks.Inc()
	}
}

// Attach registers the scheduler's step handler against tp.
func (s *Scheduler) Attach(tp TimeProvider) {
	tp.RegisterNextStepHandler(s.onStep)
}

// Stop marks the scheduler done; it ceases dispatch on the next step
// (spec §5 "observes a done-flag set by its owner's destruction").
func (s *Scheduler) Stop() {
	s.done = true
}

func (s *Scheduler) onStep(now, duration time.Duration) {
	if s.done {
		return
	}
	if !s.started {
		s.startTime = now
		s.started = true
	}
	relativeNow := now - s.startTime
	relativeEnd := relativeNow + duration

	for _, t := range s.tasks {
		if t.done {
			continue
		}
		s.drainTask(t, relativeEnd)
	}
}

func (s *Scheduler) drainTask(t *task, relativeEnd time.Duration) {
	for {
		msg, ok := t.reader.Read()
		if !ok {
			s.finishTask(t)
			return
		}
		if msg.Timestamp() >= relativeEnd {
			return
		}

		if err := t.controller.ReplayMessage(msg); err != nil {
			s.lg.Warn("replay dispatch failed", zap.String("controller", t.controller.Name()), zap.Error(err))
		} else if s.metrics != nil {
			s.metrics.ReplayDispatched.WithLabelValues(t.controller.Name()).Inc()
		}

		if !t.reader.Seek(1) {
			s.finishTask(t)
			return
		}
	}
}

func (s *Scheduler) finishTask(t *task) {
	t.done = true
	if s.metrics != nil {
		s.metrics.ActiveReplayTasks.Dec()
	}
}
