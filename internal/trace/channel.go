// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package trace

import "time"

// FileType distinguishes the container formats a ReplayFile can come from.
type FileType int

const (
	FilePcap FileType = iota
	FileMdf4
)

// ReplayFile yields an iterable sequence of channels plus file-level metadata.
type ReplayFile interface {
	FilePath() string
	FileType() FileType
	EmbeddedConfig() string
	Channels() []ReplayChannel
}

// ReplayChannel carries channel metadata and a factory for fresh readers.
// Readers obtained from the same channel must not share mutable state —
// each call to Reader returns an independent cursor (spec §4.1).
type ReplayChannel interface {
	Name() string
	Type() MessageType
	StartTime() time.Duration
	EndTime() (time.Duration, error)
	MessageCount() uint64
	MetaInfos() map[string]string
	Reader() (ReplayChannelReader, error)
}

// ReplayChannelReader is a lazy, forward-only, seekable-by-relative-count
// cursor over a channel's messages, ordered by timestamp.
type ReplayChannelReader interface {
	// Read returns the message currently under the cursor, or ok=false if
	// the reader is exhausted or the previous Seek failed.
	Read() (msg Message, ok bool)
	// Seek advances the cursor by delta messages relative to the current
	// position. Seek(0) is idempotent. A failed Seek exhausts the reader.
	Seek(delta int) bool
}
