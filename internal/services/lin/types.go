// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package lin implements the LIN controller core (spec §4.5, component
// C5): master/slave frame dispatch, the trivial/detailed behavior
// switch, go-to-sleep/wakeup, dynamic-response mode, and response-table
// bookkeeping, grounded on
// original_source/SilKit/source/services/lin/LinController.cpp and
// ISimBehavior.hpp.
package lin

import "fmt"

// NumLinIds is the fixed size of a node's response table; valid LIN ids
// are [0, NumLinIds).
const NumLinIds = 64

// Id is a LIN frame identifier in [0, NumLinIds).
type Id uint8

// Valid reports whether id is in the addressable range.
func (id Id) Valid() bool { return id < NumLinIds }

// ChecksumModel distinguishes the two LIN checksum algorithms. Unknown
// means "not yet pinned" (spec §3).
type ChecksumModel int

const (
	ChecksumUnknown ChecksumModel = iota
	ChecksumClassic
	ChecksumEnhanced
)

func (m ChecksumModel) String() string {
	switch m {
	case ChecksumClassic:
		return "Classic"
	case ChecksumEnhanced:
		return "Enhanced"
	default:
		return "Unknown"
	}
}

// DataLength is a payload length in [0, 8], or DataLengthUnknown before
// it is pinned.
type DataLength int

const DataLengthUnknown DataLength = -1

// Frame is a LIN frame: an id plus the mutable payload/metadata held by
// whichever node's response slot currently owns it.
type Frame struct {
	ID            Id
	ChecksumModel ChecksumModel
	DataLength    DataLength
	Data          [8]byte
}

func (f Frame) String() string {
	return fmt.Sprintf("Frame{id=%d, checksum=%s, len=%d, data=%v}", f.ID, f.ChecksumModel, f.DataLength, f.Data)
}

// SleepFrame is the fixed sentinel (spec §4.5.7). IsSleepFrame matches
// it by id, checksum model, data length and exact payload, so a
// header-only frame for id 0x3C with an unknown length does not match.
var SleepFrame = Frame{ID: 0x3C, ChecksumModel: ChecksumClassic, DataLength: 8}

// IsSleepFrame reports whether f matches the sleep-frame sentinel.
func IsSleepFrame(f Frame) bool {
	return f.ID == SleepFrame.ID && f.ChecksumModel == SleepFrame.ChecksumModel &&
		f.DataLength == SleepFrame.DataLength && f.Data == SleepFrame.Data
}

// ResponseMode is the publication intent of a response-table slot.
type ResponseMode int

const (
	ResponseUnused ResponseMode = iota
	ResponseRx
	ResponseTxUnconditional
)

// FrameResponse pairs a Frame with its slot's ResponseMode.
type FrameResponse struct {
	Frame Frame
	Mode  ResponseMode
}

// FrameResponseType selects the role sendFrame plays for a header
// (spec §4.5.3).
type FrameResponseType int

const (
	MasterResponse FrameResponseType = iota
	SlaveResponse
	SlaveToSlave
)

// ControllerMode is the role this node plays on the bus.
type ControllerMode int

const (
	ModeInactive ControllerMode = iota
	ModeMaster
	ModeSlave
)

// ControllerStatus is the lifecycle/operational state of a node.
type ControllerStatus int

const (
	StatusUnknown ControllerStatus = iota
	StatusOperational
	StatusSleep
	StatusSleepPending
)

// SimulationMode distinguishes pre-declared responses from dynamic,
// reactively-generated ones (spec §3, §4.5.1).
type SimulationMode int

const (
	SimulationDefault SimulationMode = iota
	SimulationDynamic
)

// FrameStatus is the outcome reported to frame-status handlers and
// carried on the wire.
type FrameStatus int

const (
	RxOk FrameStatus = iota
	RxError
	RxNoResponse
	TxOk
	TxError
)

func (s FrameStatus) String() string {
	switch s {
	case RxOk:
		return "RX_OK"
	case RxError:
		return "RX_ERROR"
	case RxNoResponse:
		return "RX_NO_RESPONSE"
	case TxOk:
		return "TX_OK"
	case TxError:
		return "TX_ERROR"
	default:
		return "UNKNOWN"
	}
}

// toTxStatus converts an RX_* outcome to its TX_* counterpart, for a
// node observing its own transmission (spec §4.5.4 step 6, §4.5.5 step 5).
func toTxStatus(s FrameStatus) FrameStatus {
	switch s {
	case RxOk:
		return TxOk
	case RxError:
		return TxError
	default:
		return s
	}
}

// HandlerId is an opaque registration token returned by Add* methods.
type HandlerId uint64

// Config is the declaration passed to Init.
type Config struct {
	Mode           ControllerMode
	FrameResponses []FrameResponse
}

// pinChecksum returns current if already pinned, else incoming (spec
// §3 invariant: never silently downgraded to Unknown).
func pinChecksum(current, incoming ChecksumModel) ChecksumModel {
	if current != ChecksumUnknown {
		return current
	}
	return incoming
}

func pinDataLength(current, incoming DataLength) DataLength {
	if current != DataLengthUnknown {
		return current
	}
	return incoming
}
