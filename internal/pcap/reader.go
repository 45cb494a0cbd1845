// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package pcap

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vectorgrp/silkit-go/internal/trace"
	"github.com/vectorgrp/silkit-go/lib/util/errors"
)

const channelName = "PcapChannel0"

// opener produces a fresh, independent stream positioned at byte 0,
// letting multiple readers derive from the same channel without sharing
// a cursor (spec §4.1: "readers... must not share mutable state").
type opener func() (io.ReadSeeker, io.Closer, error)

// File implements trace.ReplayFile for a single PCAP recording.
type File struct {
	path      string
	open      opener
	metaInfos map[string]string
	lg        *zap.Logger
}

// Open opens a PCAP file on disk and validates its global header.
func Open(path string, lg *zap.Logger) (*File, error) {
	open := func() (io.ReadSeeker, io.Closer, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, errors.WithStack(err)
		}
		return f, f, nil
	}
	return newFile(path, open, lg)
}

// OpenBytes opens an in-memory PCAP buffer; useful for tests and for
// small embedded recordings. Each derived reader gets an independent
// bytes.Reader over the same backing array.
func OpenBytes(name string, data []byte) (*File, error) {
	open := func() (io.ReadSeeker, io.Closer, error) {
		return bytes.NewReader(data), io.NopCloser(nil), nil
	}
	return newFile(name, open, zap.NewNop())
}

func newFile(path string, open opener, lg *zap.Logger) (*File, error) {
	stream, closer, err := open()
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	metaInfos, err := readGlobalHeader(stream)
	if err != nil {
		return nil, err
	}
	return &File{path: path, open: open, metaInfos: metaInfos, lg: lg}, nil
}

func readGlobalHeader(stream io.ReadSeeker) (map[string]string, error) {
	if _, err := stream.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WithStack(err)
	}
	buf := make([]byte, globalHeaderSize)
	if _, err := io.ReadFull(stream, buf); err != nil {
		return nil, errors.ReplayDataError("PCAP global header short read: %v", err)
	}

	var hdr GlobalHeader
	hdr.Magic = binary.LittleEndian.Uint32(buf[0:4])
	hdr.VersionMajor = binary.LittleEndian.Uint16(buf[4:6])
	hdr.VersionMinor = binary.LittleEndian.Uint16(buf[6:8])
	hdr.TzOffset = int32(binary.LittleEndian.Uint32(buf[8:12]))
	hdr.Sigfigs = binary.LittleEndian.Uint32(buf[12:16])
	hdr.SnapLen = binary.LittleEndian.Uint32(buf[16:20])
	hdr.LinkType = binary.LittleEndian.Uint32(buf[20:24])

	if hdr.Magic != NativeMagic {
		return nil, errors.ReplayDataError("PCAP file has invalid magic number 0x%08X, expected 0x%08X", hdr.Magic, uint32(NativeMagic))
	}
	if hdr.VersionMajor != wantVersionMajor || hdr.VersionMinor != wantVersionMinor {
		return nil, errors.ReplayDataError("PCAP file has unsupported version %d.%d, expected %d.%d",
			hdr.VersionMajor, hdr.VersionMinor, wantVersionMajor, wantVersionMinor)
	}

	return map[string]string{
		"pcap/version":      fmt.Sprintf("%d.%d", hdr.VersionMajor, hdr.VersionMinor),
		"pcap/gmt_to_local": fmt.Sprintf("%d", hdr.TzOffset),
	}, nil
}

// FilePath implements trace.ReplayFile.
func (f *File) FilePath() string { return f.path }

// FileType implements trace.ReplayFile.
func (f *File) FileType() trace.FileType { return trace.FilePcap }

// EmbeddedConfig implements trace.ReplayFile; PCAP carries none.
func (f *File) EmbeddedConfig() string { return "" }

// Channels implements trace.ReplayFile. PCAP has no sub-channel concept
// (spec §4.2): exactly one channel is exposed.
func (f *File) Channels() []trace.ReplayChannel {
	return []trace.ReplayChannel{&channel{file: f}}
}

type channel struct {
	file *File
}

func (c *channel) Name() string          { return channelName }
func (c *channel) Type() trace.MessageType { return trace.MessageEthernetFrame }
func (c *channel) StartTime() time.Duration {
	return 0
}
func (c *channel) EndTime() (time.Duration, error) {
	return 0, errors.ReplayDataError("PCAP channel EndTime is not available without a full scan")
}

// MessageCount always reports 0: the channel does not track how many
// packets its readers have decoded. A Reader's own count so far is
// available from Reader.NumberOfMessages.
func (c *channel) MessageCount() uint64 { return 0 }

func (c *channel) MetaInfos() map[string]string {
	out := make(map[string]string, len(c.file.metaInfos))
	for k, v := range c.file.metaInfos {
		out[k] = v
	}
	return out
}

// Reader opens an independent cursor over the channel, primed with the
// first packet already decoded (spec §4.2 lifecycle).
func (c *channel) Reader() (trace.ReplayChannelReader, error) {
	stream, closer, err := c.file.open()
	if err != nil {
		return nil, err
	}
	if _, err := readGlobalHeader(stream); err != nil {
		closer.Close()
		return nil, err
	}
	r := &Reader{
		path:   c.file.path,
		stream: stream,
		closer: closer,
		lg:     c.file.lg,
	}
	r.Seek(1)
	return r, nil
}

// Reader is a single, exclusively-owned cursor over a PCAP stream
// (spec §5: "PCAP readers own their stream exclusively").
type Reader struct {
	path      string
	stream    io.ReadSeeker
	closer    io.Closer
	lg        *zap.Logger
	current   *trace.EthernetFrame
	exhausted bool
	numSeen   uint64
}

var _ trace.ReplayChannelReader = (*Reader)(nil)

// Close releases the underlying stream.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Read returns the message currently under the cursor.
func (r *Reader) Read() (trace.Message, bool) {
	if r.exhausted || r.current == nil {
		return nil, false
	}
	return *r.current, true
}

// Seek decodes and discards delta packets, caching the last decoded one
// as current (spec §4.2 seek semantics).
func (r *Reader) Seek(delta int) bool {
	if r.exhausted {
		return false
	}
	for i := 0; i < delta; i++ {
		hdrBuf := make([]byte, packetHeaderSize)
		if _, err := io.ReadFull(r.stream, hdrBuf); err != nil {
			if r.lg != nil {
				off, _ := r.stream.Seek(0, io.SeekCurrent)
				r.lg.Warn("PCAP short read on packet header",
					zap.String("file", r.path), zap.Int64("offset", off))
			}
			r.exhausted = true
			return false
		}
		var hdr PacketHeader
		hdr.TsSec = binary.LittleEndian.Uint32(hdrBuf[0:4])
		hdr.TsUsec = binary.LittleEndian.Uint32(hdrBuf[4:8])
		hdr.InclLen = binary.LittleEndian.Uint32(hdrBuf[8:12])
		hdr.OrigLen = binary.LittleEndian.Uint32(hdrBuf[12:16])

		payload := make([]byte, hdr.InclLen)
		if _, err := io.ReadFull(r.stream, payload); err != nil {
			if r.lg != nil {
				off, _ := r.stream.Seek(0, io.SeekCurrent)
				r.lg.Warn("PCAP short read on packet payload",
					zap.String("file", r.path), zap.Int64("offset", off))
			}
			r.exhausted = true
			return false
		}

		ts := time.Duration(hdr.TsSec)*time.Second + time.Duration(hdr.TsUsec)*time.Microsecond
		msg := trace.EthernetFrame{
			Header: trace.Header{Ts: ts, Dir: trace.Send},
			Raw:    payload,
		}
		r.current = &msg
		r.numSeen++
	}
	return true
}

// NumberOfMessages reports the highest index seen so far by this reader.
func (r *Reader) NumberOfMessages() uint64 { return r.numSeen }
