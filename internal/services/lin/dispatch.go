// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package lin

import (
	"time"

	"go.uber.org/zap"

	"github.com/vectorgrp/silkit-go/internal/trace"
	"github.com/vectorgrp/silkit-go/lib/config"
	"github.com/vectorgrp/silkit-go/lib/util/errors"
)

// SendFrame transmits frame as responseType; master-only (spec §4.5.3).
//
//   - MasterResponse: this node supplies the data itself.
//   - SlaveResponse / SlaveToSlave: this node emits the header only and
//     expects a slave's pre-declared Tx response to answer it.
func (c *Controller) SendFrame(frame Frame, responseType FrameResponseType) error {
	if c.mode != ModeMaster {
		return errors.StateError("lin controller %q: SendFrame is master-only", c.name)
	}
	if c.status != StatusOperational {
		return errors.StateError("lin controller %q: SendFrame requires operational status", c.name)
	}
	if !frame.ID.Valid() {
		return errors.ConfigurationError("lin controller %q: invalid frame id %d", c.name, frame.ID)
	}
	if c.replayGoverns(config.DirectionSend) {
		c.lg.Debug("SendFrame ignored: replay governs this controller's send direction", zap.String("controller", c.name))
		return nil
	}

	slot := c.self.responses[frame.ID].Frame
	frame.ChecksumModel = pinChecksum(slot.ChecksumModel, frame.ChecksumModel)
	frame.DataLength = pinDataLength(slot.DataLength, frame.DataLength)

	switch responseType {
	case MasterResponse:
		c.self.responses[frame.ID] = FrameResponse{Frame: frame, Mode: ResponseTxUnconditional}
		c.behavior.updateTxBuffer(c, frame)
		// Route through header dispatch rather than dispatching a fixed
		// RX_OK: a slave may already own TxUnconditional for this id, and
		// only the header-count logic can resolve that conflict to
		// RX_ERROR/TX_ERROR (spec §4.5.3).
		c.behavior.sendFrameHeader(c, frame.ID)
		return nil
	case SlaveResponse, SlaveToSlave:
		c.behavior.sendFrameHeader(c, frame.ID)
		return nil
	default:
		return errors.ConfigurationError("lin controller %q: unknown frame response type", c.name)
	}
}

// dispatchHeaderTrivial resolves a header locally against the replica
// node table built from observed peer broadcasts (spec §4.5.4): zero
// responders yields RX_NO_RESPONSE, exactly one yields RX_OK with that
// node's data, two or more conflicting Tx responses yield RX_ERROR.
func (c *Controller) dispatchHeaderTrivial(id Id) {
	var responders []Frame
	c.nodes.forEach(func(_ string, n *node) {
		if n.responses[id].Mode == ResponseTxUnconditional {
			responders = append(responders, n.responses[id].Frame)
		}
	})

	var frame Frame
	var status FrameStatus
	switch len(responders) {
	case 0:
		frame = Frame{ID: id, DataLength: DataLengthUnknown}
		status = RxNoResponse
	case 1:
		frame = responders[0]
		status = RxOk
	default:
		frame = Frame{ID: id}
		status = RxError
	}
	c.dispatchTransmission(frame, status, false)
}

// SetFrameResponse updates this node's own response-table slot and
// publishes the change to the network (spec §4.5.6 local form).
func (c *Controller) SetFrameResponse(fr FrameResponse) error {
	if !fr.Frame.ID.Valid() {
		return errors.ConfigurationError("lin controller %q: invalid frame id %d", c.name, fr.Frame.ID)
	}
	slot := c.self.responses[fr.Frame.ID].Frame
	fr.Frame.ChecksumModel = pinChecksum(slot.ChecksumModel, fr.Frame.ChecksumModel)
	fr.Frame.DataLength = pinDataLength(slot.DataLength, fr.Frame.DataLength)

	c.self.responses[fr.Frame.ID] = fr
	if c.mode == ModeSlave {
		if fr.Mode == ResponseTxUnconditional {
			c.respondingSlaves[fr.Frame.ID] = true
		} else {
			delete(c.respondingSlaves, fr.Frame.ID)
		}
	}
	c.net.Broadcast(c.name, WireFrameResponseUpdate{FrameResponses: []FrameResponse{fr}})
	if fr.Mode == ResponseTxUnconditional {
		c.behavior.updateTxBuffer(c, fr.Frame)
	}
	return nil
}

// SendDynamicResponse answers an observed header on a dynamic-mode node
// (spec §4.5.1 simulation mode, §4.5.8 FrameHeaderHandler). It configures
// a transient TxUnconditional slot and publishes it immediately so that
// the header's resolver — still mid-dispatch, synchronously above this
// call on the same stack — sees this node as a responder.
func (c *Controller) SendDynamicResponse(frame Frame) error {
	if c.self.simulationMode != SimulationDynamic {
		return errors.StateError("lin controller %q: SendDynamicResponse requires dynamic simulation mode", c.name)
	}
	fr := FrameResponse{Frame: frame, Mode: ResponseTxUnconditional}
	c.self.responses[frame.ID] = fr
	c.net.Broadcast(c.name, WireFrameResponseUpdate{FrameResponses: []FrameResponse{fr}})
	return nil
}

// GoToSleep starts the go-to-sleep sequence (spec §4.5.7).
func (c *Controller) GoToSleep() error {
	if c.status != StatusOperational {
		return errors.StateError("lin controller %q: GoToSleep requires operational status", c.name)
	}
	c.behavior.goToSleep(c)
	return nil
}

func (c *Controller) goToSleepTrivial() {
	c.setStatus(StatusSleepPending)
	c.dispatchTransmission(SleepFrame, RxOk, false)
}

// Wakeup starts the wakeup sequence (spec §4.5.7).
func (c *Controller) Wakeup() error {
	c.behavior.wakeup(c)
	return nil
}

func (c *Controller) wakeupTrivial() {
	c.setStatus(StatusOperational)
	c.wakeupHandlers.forEach(func(h WakeupHandler) { h() })
	c.net.Broadcast(c.name, WireWakeupPulse{Timestamp: c.now(), Direction: trace.Send})
}

func (c *Controller) setStatus(s ControllerStatus) {
	c.status = s
	c.self.status = s
}

// dispatchTransmission publishes frame's canonical (RX_*) outcome on
// the wire and delivers it to local frame-status handlers. Every node
// that owns a TxUnconditional response for frame.ID — the one that
// actually produced the data — sees the TX_* counterpart instead (spec
// §4.5.4 step 6, §4.5.5 step 5); selfTransmitted forces that conversion
// regardless of the node's own response table. A sleep frame sent by
// GoToSleep is dispatched without it, so a master whose table has no
// TxUnconditional slot for the sleep id sees the RX_OK wire status.
func (c *Controller) dispatchTransmission(frame Frame, status FrameStatus, selfTransmitted bool) {
	now := c.now()
	local := c.localStatus(frame, status, selfTransmitted)
	c.invokeFrameStatus(frame, local, now)
	c.traceHandlers.forEach(func(h TraceHandler) { h(traceDirection(local), frame, now) })
	c.handleSleepSentinel(frame)

	c.net.Broadcast(c.name, WireTransmission{Timestamp: now, Frame: frame, Status: status})
	if c.m != nil {
		c.m.FramesSent.WithLabelValues(c.name).Inc()
	}
}

// localStatus converts status to its TX_* counterpart when c is the
// frame's producer: either because selfTransmitted says so, or because
// c's own response table still carries a TxUnconditional entry for
// frame.ID (the case of a peer observing its own broadcast echoed back
// through the wire).
func (c *Controller) localStatus(frame Frame, status FrameStatus, selfTransmitted bool) FrameStatus {
	if selfTransmitted {
		return toTxStatus(status)
	}
	if frame.ID.Valid() && c.self.responses[frame.ID].Mode == ResponseTxUnconditional {
		return toTxStatus(status)
	}
	return status
}

func (c *Controller) invokeFrameStatus(frame Frame, status FrameStatus, timestamp time.Duration) {
	c.frameStatusHandlers.forEach(func(h FrameStatusHandler) { h(frame, status, timestamp) })
}

// traceDirection derives a trace hook's direction from an already
// node-local-converted status: TX_* outcomes trace as Send, everything
// else as Receive.
func traceDirection(status FrameStatus) trace.Direction {
	if status == TxOk || status == TxError {
		return trace.Send
	}
	return trace.Receive
}

// handleSleepSentinel runs the shared go-to-sleep bookkeeping for every
// node that processes a sleep-frame transmission, but only slaves ever
// see the GoToSleepHandler callback — not the master that itself issued
// GoToSleep (spec §4.5.5 step 7, original comment: "only call
// GoToSleepHandlers for slaves, i.e., not for the master that issued the
// GoToSleep command").
func (c *Controller) handleSleepSentinel(frame Frame) {
	if !IsSleepFrame(frame) {
		return
	}
	c.setStatus(StatusSleep)
	if c.mode != ModeSlave {
		return
	}
	c.goToSleepHandlers.forEach(func(h GoToSleepHandler) { h() })
}

// calcReceptionStatus computes the effective status this node reports
// for an inbound transmission (spec §4.5.5 step 5), grounded on
// SimBehaviorTrivial::CalcFrameStatus. A go-to-sleep frame always
// reports RX_OK regardless of table state. A dynamic node trusts the
// wire status verbatim, since it has no pre-declared table to consult.
// Otherwise this node's own slot for the id decides: Unused overrides to
// RX_NO_RESPONSE even though the frame was delivered on the wire; Rx
// checks the received frame against this slot's pinned checksum/length
// and reports RX_ERROR on mismatch; TxUnconditional converts RX_* to
// TX_* (this node produced the data).
func (c *Controller) calcReceptionStatus(frame Frame, wireStatus FrameStatus) FrameStatus {
	if IsSleepFrame(frame) {
		return RxOk
	}
	if c.self.simulationMode == SimulationDynamic {
		return wireStatus
	}
	slot := c.self.responses[frame.ID]
	switch slot.Mode {
	case ResponseUnused:
		return RxNoResponse
	case ResponseRx:
		if slot.Frame.ChecksumModel != ChecksumUnknown && frame.ChecksumModel != ChecksumUnknown &&
			slot.Frame.ChecksumModel != frame.ChecksumModel {
			return RxError
		}
		if slot.Frame.DataLength != DataLengthUnknown && frame.DataLength != DataLengthUnknown &&
			slot.Frame.DataLength != frame.DataLength {
			return RxError
		}
		return wireStatus
	case ResponseTxUnconditional:
		return toTxStatus(wireStatus)
	default:
		return wireStatus
	}
}

// receiveWire is Network's delivery callback for this controller.
func (c *Controller) receiveWire(from string, payload any) {
	if !c.behavior.allowReception(from) {
		return
	}
	switch p := payload.(type) {
	case WireControllerConfig:
		n := c.nodes.getOrCreate(from)
		n.controllerMode = p.ControllerMode
		n.simulationMode = p.SimulationMode
		n.updateResponses(p.FrameResponses, func(id Id) {
			c.lg.Warn("ignoring peer config response with invalid id", zap.String("controller", c.name), zap.String("peer", from), zap.Any("id", id))
		})
		c.trackRespondingSlaves(p.FrameResponses)
		c.notifySlaveConfigHandlers()

	case WireFrameResponseUpdate:
		n := c.nodes.getOrCreate(from)
		n.updateResponses(p.FrameResponses, func(id Id) {
			c.lg.Warn("ignoring peer response update with invalid id", zap.String("controller", c.name), zap.String("peer", from), zap.Any("id", id))
		})
		c.trackRespondingSlaves(p.FrameResponses)
		c.notifySlaveConfigHandlers()

	case WireSendFrameHeaderRequest:
		// Only a dynamic node reacts to an observed header by synthesizing
		// a response; a node with a pre-declared table already published
		// its Tx slot and is counted directly (spec §4.5.1, §4.5.8).
		if c.self.simulationMode == SimulationDynamic {
			c.frameHeaderHandlers.forEach(func(h FrameHeaderHandler) { h(p.ID) })
		}

	case WireSendFrameRequest:
		// Answering on behalf of a network-simulator peer means owning a
		// real bus; no such peer is modeled in this module (spec §1
		// non-goal: wire-level participant transport), so this is
		// observability-only.
		c.lg.Debug("observed send-frame-request for a peer this module does not simulate",
			zap.String("controller", c.name), zap.String("from", from))

	case WireWakeupPulse:
		c.setStatus(StatusOperational)
		c.wakeupHandlers.forEach(func(h WakeupHandler) { h() })

	case WireTransmission:
		// Frame reception validation (spec §4.5.5): drop while inactive,
		// drop an oversized payload, drop an out-of-range id; everything
		// that survives is traced as a reception before its status is
		// resolved against this node's own response table.
		if c.mode == ModeInactive {
			c.lg.Debug("dropping transmission received while inactive",
				zap.String("controller", c.name), zap.String("from", from))
			return
		}
		if p.Frame.DataLength != DataLengthUnknown && p.Frame.DataLength > 8 {
			c.lg.Warn("dropping transmission with invalid data length",
				zap.String("controller", c.name), zap.String("from", from), zap.Int("dataLength", int(p.Frame.DataLength)))
			return
		}
		if !p.Frame.ID.Valid() {
			c.lg.Warn("dropping transmission with invalid id",
				zap.String("controller", c.name), zap.String("from", from), zap.Any("id", p.Frame.ID))
			return
		}
		c.traceHandlers.forEach(func(h TraceHandler) { h(trace.Receive, p.Frame, p.Timestamp) })

		status := c.calcReceptionStatus(p.Frame, p.Status)
		c.invokeFrameStatus(p.Frame, status, p.Timestamp)
		c.handleSleepSentinel(p.Frame)
		if c.m != nil {
			c.m.FramesReceived.WithLabelValues(c.name).Inc()
		}

	case WireControllerStatusUpdate:
		// informational only; status transitions are derived locally
		// from WireTransmission and WireWakeupPulse.
	}
}

func (c *Controller) trackRespondingSlaves(responses []FrameResponse) {
	if c.mode != ModeMaster {
		return
	}
	for _, r := range responses {
		if !r.Frame.ID.Valid() {
			continue
		}
		id := r.Frame.ID
		if r.Mode == ResponseTxUnconditional {
			c.respondingSlaves[id] = true
			continue
		}
		// Drop the id only if no peer still declares a Tx response for it;
		// another peer's table may still have it.
		stillResponding := false
		c.nodes.forEach(func(_ string, n *node) {
			if n != c.self && n.responses[id].Mode == ResponseTxUnconditional {
				stillResponding = true
			}
		})
		if !stillResponding {
			delete(c.respondingSlaves, id)
		}
	}
}

// notifySlaveConfigHandlers delivers the event to every registered
// handler, or, if none are registered yet, latches it so the next
// handler added receives exactly one catch-up call (spec §4.5.6 step 3).
func (c *Controller) notifySlaveConfigHandlers() {
	now := c.now()
	if c.slaveConfigHandlers.len() == 0 {
		c.slaveConfigLatched = true
		c.slaveConfigLatchTime = now
		return
	}
	c.slaveConfigHandlers.forEach(func(h SlaveConfigurationHandler) { h(now) })
}
