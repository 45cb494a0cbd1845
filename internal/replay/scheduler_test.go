// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package replay

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vectorgrp/silkit-go/internal/pcap"
	"github.com/vectorgrp/silkit-go/internal/trace"
)

type fakeTimeProvider struct {
	fn StepFunc
}

func (f *fakeTimeProvider) RegisterNextStepHandler(fn StepFunc) { f.fn = fn }

type fakeController struct {
	name     string
	received []trace.Message
}

func (c *fakeController) Name() string { return c.name }
func (c *fakeController) ReplayMessage(msg trace.Message) error {
	c.received = append(c.received, msg)
	return nil
}

func buildPcapAt(t *testing.T, tsMs ...int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0xA1B23C4D)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(2)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(4)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, int32(0)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(65535)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(1)))

	for _, ms := range tsMs {
		tsUsec := uint32(ms) * 1000
		payload := []byte{0xAA}
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(0)))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, tsUsec))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(payload))))
		require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(len(payload))))
		buf.Write(payload)
	}
	return buf.Bytes()
}

func TestSchedulerDispatchesAllMessagesInStep(t *testing.T) {
	data := buildPcapAt(t, 1, 2, 3)
	file, err := pcap.OpenBytes("test.pcap", data)
	require.NoError(t, err)
	reader, err := file.Channels()[0].Reader()
	require.NoError(t, err)

	ctrl := &fakeController{name: "Master"}
	sched := New(nil, nil)
	sched.AddTask(ctrl, reader)

	tp := &fakeTimeProvider{}
	sched.Attach(tp)

	tp.fn(0, 5*time.Millisecond)

	require.Len(t, ctrl.received, 3)
	require.Equal(t, time.Millisecond, ctrl.received[0].Timestamp())
	require.Equal(t, 2*time.Millisecond, ctrl.received[1].Timestamp())
	require.Equal(t, 3*time.Millisecond, ctrl.received[2].Timestamp())

	ctrl.received = nil
	tp.fn(5*time.Millisecond, 5*time.Millisecond)
	require.Empty(t, ctrl.received, "no further dispatch once the reader is exhausted")
}

func TestSchedulerStopsOnDoneFlag(t *testing.T) {
	data := buildPcapAt(t, 1)
	file, err := pcap.OpenBytes("test.pcap", data)
	require.NoError(t, err)
	reader, err := file.Channels()[0].Reader()
	require.NoError(t, err)

	ctrl := &fakeController{name: "Master"}
	sched := New(nil, nil)
	sched.AddTask(ctrl, reader)
	sched.Stop()

	tp := &fakeTimeProvider{}
	sched.Attach(tp)
	tp.fn(0, 5*time.Millisecond)

	require.Empty(t, ctrl.received)
}
