// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package pcap

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vectorgrp/silkit-go/internal/trace"
)

func buildPcap(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer

	hdr := GlobalHeader{
		Magic:        NativeMagic,
		VersionMajor: wantVersionMajor,
		VersionMinor: wantVersionMinor,
		TzOffset:     0,
		Sigfigs:      0,
		SnapLen:      65535,
		LinkType:     1,
	}
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr.Magic))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr.VersionMajor))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr.VersionMinor))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr.TzOffset))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr.Sigfigs))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr.SnapLen))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr.LinkType))

	for i := 0; i < n; i++ {
		payload := []byte{byte(i), byte(i + 1), byte(i + 2)}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(i)))           // ts_sec
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(i)))           // ts_usec
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))) // incl_len
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))) // orig_len
		buf.Write(payload)
	}
	return buf.Bytes()
}

func TestPcapRoundTrip(t *testing.T) {
	data := buildPcap(t, 10)

	file, err := OpenBytes("test.pcap", data)
	require.NoError(t, err)
	require.Equal(t, trace.FilePcap, file.FileType())
	require.Equal(t, "2.4", file.metaInfos["pcap/version"])

	channels := file.Channels()
	require.Len(t, channels, 1)
	require.Equal(t, channelName, channels[0].Name())
	require.Equal(t, trace.MessageEthernetFrame, channels[0].Type())

	reader, err := channels[0].Reader()
	require.NoError(t, err)

	var gotTimestamps []time.Duration
	var gotPayloads [][]byte
	for {
		msg, ok := reader.Read()
		if !ok {
			break
		}
		eth, ok := msg.(trace.EthernetFrame)
		require.True(t, ok)
		gotTimestamps = append(gotTimestamps, eth.Timestamp())
		gotPayloads = append(gotPayloads, eth.Raw)
		if !reader.Seek(1) {
			break
		}
	}

	require.Len(t, gotTimestamps, 10)
	for i := 0; i < 10; i++ {
		wantTs := time.Duration(i)*time.Second + time.Duration(i)*time.Microsecond
		require.Equal(t, wantTs, gotTimestamps[i])
		require.Equal(t, []byte{byte(i), byte(i + 1), byte(i + 2)}, gotPayloads[i])
	}
}

func TestPcapRejectsBadMagic(t *testing.T) {
	data := buildPcap(t, 1)
	data[0] ^= 0xFF

	_, err := OpenBytes("bad.pcap", data)
	require.Error(t, err)
}

func TestPcapDerivedReadersAreIndependent(t *testing.T) {
	data := buildPcap(t, 3)
	file, err := OpenBytes("test.pcap", data)
	require.NoError(t, err)

	ch := file.Channels()[0]
	r1, err := ch.Reader()
	require.NoError(t, err)
	r2, err := ch.Reader()
	require.NoError(t, err)

	require.True(t, r1.Seek(1))
	require.True(t, r1.Seek(1))

	msg1, ok := r1.Read()
	require.True(t, ok)
	msg2, ok := r2.Read()
	require.True(t, ok)

	require.NotEqual(t, msg1.Timestamp(), msg2.Timestamp())
	require.Equal(t, time.Duration(0), msg2.Timestamp())
}
