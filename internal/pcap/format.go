// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package pcap implements the PCAP replay reader (spec §4.2, component
// C2), grounded on original_source/IntegrationBus/source/tracing/PcapReader.cpp.
package pcap

// GlobalHeader is the 24-byte little-endian PCAP file header.
type GlobalHeader struct {
	Magic        uint32
	VersionMajor uint16
	VersionMinor uint16
	TzOffset     int32
	Sigfigs      uint32
	SnapLen      uint32
	LinkType     uint32
}

const globalHeaderSize = 24

// NativeMagic is the only magic value this reader accepts (spec §4.2/§6).
const NativeMagic = 0xA1B23C4D

const (
	wantVersionMajor = 2
	wantVersionMinor = 4
)

// PacketHeader is the 16-byte little-endian per-packet header.
type PacketHeader struct {
	TsSec   uint32
	TsUsec  uint32
	InclLen uint32
	OrigLen uint32
}

const packetHeaderSize = 16
