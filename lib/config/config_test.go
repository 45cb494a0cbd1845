// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestRootValidateAggregatesAcrossControllers(t *testing.T) {
	root := &Root{
		TraceSources: []TraceSource{{Name: "good", Type: SourceTypePcapFile, InputPath: "x.pcap"}},
		LinControllers: []LinController{
			{Name: "BadDirection", Replay: Replay{Direction: "Sideways"}},
			{Name: "MissingSource", Replay: Replay{Direction: DirectionSend, UseTraceSource: "absent"}},
			{Name: "Fine", Replay: Replay{Direction: DirectionReceive, UseTraceSource: "good"}},
		},
	}

	err := root.Validate()
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
}

func TestRootValidateOk(t *testing.T) {
	root := &Root{
		TraceSources:   []TraceSource{{Name: "good", Type: SourceTypePcapFile, InputPath: "x.pcap"}},
		LinControllers: []LinController{{Name: "Fine", Replay: Replay{Direction: DirectionBoth, UseTraceSource: "good"}}},
	}
	require.NoError(t, root.Validate())
}
