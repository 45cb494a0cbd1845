// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package lin

import (
	"time"

	"github.com/vectorgrp/silkit-go/internal/trace"
)

// Wire message shapes, grounded on
// original_source/SilKit/source/wire/lin/WireLinMessages.hpp. Encoding
// these to bytes for a real network transport is a non-goal of the
// core (spec §1); Network (network.go) delivers them as Go values
// directly, the in-process analogue of the Participant transport.

// WireTransmission reports a resolved header/response on the bus.
type WireTransmission struct {
	Timestamp time.Duration
	Frame     Frame
	Status    FrameStatus
}

// WireSendFrameRequest asks the detailed peer to emit a header for Frame.
type WireSendFrameRequest struct {
	Frame        Frame
	ResponseType FrameResponseType
}

// WireSendFrameHeaderRequest asks the detailed peer to emit a header for ID.
type WireSendFrameHeaderRequest struct {
	Timestamp time.Duration
	ID        Id
}

// WireWakeupPulse signals a wakeup on the bus.
type WireWakeupPulse struct {
	Timestamp time.Duration
	Direction trace.Direction
}

// WireControllerStatusUpdate broadcasts a status transition.
type WireControllerStatusUpdate struct {
	Timestamp time.Duration
	Status    ControllerStatus
}

// WireFrameResponseUpdate broadcasts an incremental response-table change.
type WireFrameResponseUpdate struct {
	FrameResponses []FrameResponse
}

// WireControllerConfig is the full config broadcast once on init (spec §4.5.1).
type WireControllerConfig struct {
	ControllerMode ControllerMode
	SimulationMode SimulationMode
	FrameResponses []FrameResponse
}
