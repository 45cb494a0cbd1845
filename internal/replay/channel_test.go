// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package replay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vectorgrp/silkit-go/internal/trace"
	"github.com/vectorgrp/silkit-go/lib/config"
)

type stubChannel struct {
	name string
	typ  trace.MessageType
	meta map[string]string
}

func (c stubChannel) Name() string                                    { return c.name }
func (c stubChannel) Type() trace.MessageType                         { return c.typ }
func (c stubChannel) StartTime() time.Duration                        { return 0 }
func (c stubChannel) EndTime() (time.Duration, error)                 { return 0, nil }
func (c stubChannel) MessageCount() uint64                            { return 0 }
func (c stubChannel) MetaInfos() map[string]string                    { return c.meta }
func (c stubChannel) Reader() (trace.ReplayChannelReader, error)      { return nil, nil }

type stubFile struct {
	channels []trace.ReplayChannel
}

func (f stubFile) FilePath() string            { return "test" }
func (f stubFile) FileType() trace.FileType    { return trace.FileMdf4 }
func (f stubFile) EmbeddedConfig() string      { return "" }
func (f stubFile) Channels() []trace.ReplayChannel { return f.channels }

func TestResolveChannelByNamingConvention(t *testing.T) {
	file := stubFile{channels: []trace.ReplayChannel{
		stubChannel{name: "A", meta: map[string]string{"source": "Net1/P1/CtrlA"}},
		stubChannel{name: "B", meta: map[string]string{"source": "Net1/P1/CtrlB"}},
	}}
	ref := config.ControllerRef{Network: "Net1", Participant: "P1", Controller: "CtrlB"}

	ch, err := ResolveChannel(file, config.TraceSource{Type: config.SourceTypeMdf4File}, config.Replay{}, ref)
	require.NoError(t, err)
	require.Equal(t, "B", ch.Name())
}

func TestResolveChannelByMdfSelectorRequiresUniqueMatch(t *testing.T) {
	file := stubFile{channels: []trace.ReplayChannel{
		stubChannel{name: "A", meta: map[string]string{"channel_name": "Speed"}},
		stubChannel{name: "B", meta: map[string]string{"channel_name": "Speed"}},
	}}
	replay := config.Replay{MdfChannel: config.MdfChannel{ChannelName: "Speed"}}

	_, err := ResolveChannel(file, config.TraceSource{Type: config.SourceTypeMdf4File}, replay, config.ControllerRef{})
	require.Error(t, err, "ambiguous selector match must be a configuration error")
}

func TestResolveChannelPcapMatchesByType(t *testing.T) {
	file := stubFile{channels: []trace.ReplayChannel{
		stubChannel{name: "PcapChannel0", typ: trace.MessageEthernetFrame},
	}}

	ch, err := ResolveChannel(file, config.TraceSource{Type: config.SourceTypePcapFile}, config.Replay{}, config.ControllerRef{})
	require.NoError(t, err)
	require.Equal(t, "PcapChannel0", ch.Name())
}
