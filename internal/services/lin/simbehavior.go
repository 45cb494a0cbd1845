// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package lin

import "github.com/vectorgrp/silkit-go/internal/trace"

// simBehavior is the small capability set that varies between trivial
// and detailed simulation (spec §4.5.2), grounded on ISimBehavior.hpp.
// The controller swaps its behavior pointer on service-discovery
// events; the public API is identical in either mode.
type simBehavior interface {
	// allowReception reports whether an inbound message from
	// fromParticipant should be processed at all.
	allowReception(fromParticipant string) bool
	// sendFrameHeader emits a header request for id.
	sendFrameHeader(c *Controller, id Id)
	// updateTxBuffer mirrors a locally-updated Tx slot to the detailed
	// peer; a no-op in trivial mode.
	updateTxBuffer(c *Controller, frame Frame)
	// goToSleep executes the mode-specific go-to-sleep sequence.
	goToSleep(c *Controller)
	// wakeup executes the mode-specific wakeup sequence.
	wakeup(c *Controller)
}

// trivialBehavior is self-sufficient: it resolves headers locally
// against its own node table, assuming an idealized bus.
type trivialBehavior struct{}

func (trivialBehavior) allowReception(string) bool { return true }

func (trivialBehavior) sendFrameHeader(c *Controller, id Id) {
	// Notify dynamic peer nodes before resolving: a dynamic slave's
	// FrameHeaderHandler runs synchronously inside this Broadcast call
	// and, if it answers via SendDynamicResponse, publishes its response
	// in time for the count below to see it (spec §4.5.1, §4.5.4, §4.5.8).
	c.net.Broadcast(c.name, WireSendFrameHeaderRequest{Timestamp: c.now(), ID: id})
	c.dispatchHeaderTrivial(id)
}

func (trivialBehavior) updateTxBuffer(*Controller, Frame) {}

func (trivialBehavior) goToSleep(c *Controller) {
	c.goToSleepTrivial()
}

func (trivialBehavior) wakeup(c *Controller) {
	c.wakeupTrivial()
}

// detailedBehavior forwards every request to the network simulator
// peer and accepts inbound traffic only from it.
type detailedBehavior struct {
	peer string
}

func (b detailedBehavior) allowReception(from string) bool { return from == b.peer }

func (b detailedBehavior) sendFrameHeader(c *Controller, id Id) {
	c.net.Broadcast(c.name, WireSendFrameHeaderRequest{Timestamp: c.now(), ID: id})
}

func (b detailedBehavior) updateTxBuffer(c *Controller, frame Frame) {
	c.net.Broadcast(c.name, WireFrameResponseUpdate{FrameResponses: []FrameResponse{{Frame: frame, Mode: ResponseTxUnconditional}}})
}

func (b detailedBehavior) goToSleep(c *Controller) {
	c.setStatus(StatusSleepPending)
	c.net.Broadcast(c.name, WireSendFrameRequest{Frame: SleepFrame, ResponseType: MasterResponse})
}

func (b detailedBehavior) wakeup(c *Controller) {
	c.net.Broadcast(c.name, WireWakeupPulse{Timestamp: c.now(), Direction: trace.Send})
}
