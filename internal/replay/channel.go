// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package replay implements the replay scheduler (spec §4.4, component
// C4): it marries configured controllers to replay channels and drives
// replay on each simulation step.
package replay

import (
	"github.com/vectorgrp/silkit-go/internal/trace"
	"github.com/vectorgrp/silkit-go/lib/config"
	"github.com/vectorgrp/silkit-go/lib/util/errors"
)

// ResolveChannel implements the three-rule channel matching algorithm
// of spec §4.4.
func ResolveChannel(file trace.ReplayFile, source config.TraceSource, replay config.Replay, ref config.ControllerRef) (trace.ReplayChannel, error) {
	channels := file.Channels()

	switch {
	case source.Type == config.SourceTypePcapFile:
		for _, ch := range channels {
			if ch.Type() == trace.MessageEthernetFrame {
				return ch, nil
			}
		}
		return nil, errors.ConfigurationError("no PCAP channel found in trace source %q", source.Name)

	case replay.MdfChannel.IsSet():
		var matches []trace.ReplayChannel
		for _, ch := range channels {
			if matchesMdfSelector(ch.MetaInfos(), replay.MdfChannel) {
				matches = append(matches, ch)
			}
		}
		if len(matches) != 1 {
			return nil, errors.ConfigurationError("mdf channel selector for trace source %q matched %d channels, want exactly 1", source.Name, len(matches))
		}
		return matches[0], nil

	default:
		want := ref.Network + "/" + ref.Participant + "/" + ref.Controller
		for _, ch := range channels {
			if ch.MetaInfos()["source"] == want {
				return ch, nil
			}
		}
		return nil, errors.ConfigurationError("no channel found for %q by the built-in naming convention", want)
	}
}

func matchesMdfSelector(meta map[string]string, sel config.MdfChannel) bool {
	check := func(want, key string) bool {
		return want == "" || meta[key] == want
	}
	return check(sel.ChannelName, "channel_name") &&
		check(sel.ChannelSource, "channel_source") &&
		check(sel.ChannelPath, "channel_path") &&
		check(sel.GroupName, "group_name") &&
		check(sel.GroupSource, "group_source") &&
		check(sel.GroupPath, "group_path")
}
