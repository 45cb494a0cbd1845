// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package lin

import (
	"github.com/vectorgrp/silkit-go/internal/trace"
	"github.com/vectorgrp/silkit-go/lib/config"
	"github.com/vectorgrp/silkit-go/lib/util/errors"
)

// SetReplayDirection configures this controller to be driven by a
// replay scheduler for dir (spec §4.4/§4.5.9). While dir is Send or Both,
// SendFrame is debug-logged and ignored rather than rejected. No other
// live API call checks the replay direction.
func (c *Controller) SetReplayDirection(dir config.Direction) {
	c.replayDirection = dir
}

func (c *Controller) replayGoverns(dir config.Direction) bool {
	return c.replayDirection == config.DirectionBoth || c.replayDirection == dir
}

// ReplayMessage implements replay.Controller (spec §4.5.9): master-only,
// LIN-frame messages only. A replayed sleep frame runs the normal
// go-to-sleep sequence; any other frame updates the matching direction's
// slot and re-dispatches it exactly as a live transmission would.
func (c *Controller) ReplayMessage(msg trace.Message) error {
	if c.mode != ModeMaster {
		return errors.StateError("lin controller %q: replay requires master mode", c.name)
	}
	lf, ok := msg.(trace.LinFrame)
	if !ok {
		return errors.ConfigurationError("lin controller %q: unsupported replay message type %s", c.name, msg.Type())
	}
	if !Id(lf.ID).Valid() {
		return errors.ConfigurationError("lin controller %q: replayed frame has invalid id %d", c.name, lf.ID)
	}

	frame := Frame{
		ID:            Id(lf.ID),
		ChecksumModel: ChecksumModel(lf.ChecksumModel),
		DataLength:    DataLength(lf.DataLength),
		Data:          lf.Data,
	}

	// Update this node's slot for the replayed direction and publish it
	// so peers mirror it, exactly as a live SetFrameResponse would (spec
	// §4.5.9 step 1).
	mode := ResponseRx
	if lf.Direction() == trace.Send {
		mode = ResponseTxUnconditional
	}
	fr := FrameResponse{Frame: frame, Mode: mode}
	c.self.responses[frame.ID] = fr
	c.net.Broadcast(c.name, WireFrameResponseUpdate{FrameResponses: []FrameResponse{fr}})

	if IsSleepFrame(frame) {
		c.behavior.goToSleep(c)
		return nil
	}

	// Emit a header as if SendFrame(frame, responseType) had been called
	// (spec §4.5.9 step 3): the header-count logic resolves the status
	// from the table just updated above, rather than a hard-coded RX_OK.
	c.behavior.sendFrameHeader(c, frame.ID)
	return nil
}
