// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package config decodes the TOML configuration surface the core
// consumes (spec §6): per-controller Replay directives and named
// TraceSources. Unknown keys are rejected at decode time here, not by
// the core — the core itself never parses configuration.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"

	"github.com/vectorgrp/silkit-go/lib/util/errors"
)

// Direction mirrors spec §4.4's replay direction enum.
type Direction string

const (
	DirectionUndefined Direction = ""
	DirectionSend      Direction = "Send"
	DirectionReceive   Direction = "Receive"
	DirectionBoth      Direction = "Both"
)

// MdfChannel selects an MDF4 channel/group by any combination of name,
// source and path. A zero value means "no MDF4 selector set".
type MdfChannel struct {
	ChannelName   string `toml:"channel_name"`
	ChannelSource string `toml:"channel_source"`
	ChannelPath   string `toml:"channel_path"`
	GroupName     string `toml:"group_name"`
	GroupSource   string `toml:"group_source"`
	GroupPath     string `toml:"group_path"`
}

// IsSet reports whether any field of the selector was given.
func (m MdfChannel) IsSet() bool {
	return m != MdfChannel{}
}

// Replay is the per-controller replay directive of spec §4.4.
type Replay struct {
	UseTraceSource string     `toml:"use_trace_source"`
	Direction      Direction  `toml:"direction"`
	MdfChannel     MdfChannel `toml:"mdf_channel"`
}

// Active reports whether this replay config actually enables replay,
// per spec §4.4: direction != Undefined and a trace source is named.
func (r Replay) Active() bool {
	return r.Direction != DirectionUndefined && r.UseTraceSource != ""
}

// SourceType enumerates the trace file formats the core understands.
type SourceType string

const (
	SourceTypePcapFile SourceType = "PcapFile"
	SourceTypeMdf4File SourceType = "Mdf4File"
)

// TraceSource names a recording to be opened for replay.
type TraceSource struct {
	Name      string     `toml:"name"`
	Type      SourceType `toml:"type"`
	InputPath string     `toml:"input_path"`
}

// ControllerRef identifies a controller for the built-in naming
// convention channel-matching rule of spec §4.4 ("Link/Participant/Controller").
type ControllerRef struct {
	Network     string `toml:"network"`
	Participant string `toml:"participant"`
	Controller  string `toml:"controller"`
}

// LinController is the subset of participant configuration the LIN
// controller core consumes.
type LinController struct {
	Name   string        `toml:"name"`
	Ref    ControllerRef `toml:"ref"`
	Replay Replay        `toml:"replay"`
}

// Root is the top-level decoded document.
type Root struct {
	TraceSources []TraceSource   `toml:"trace_source"`
	LinControllers []LinController `toml:"lin_controller"`
}

// Load decodes a TOML document from data, rejecting unknown keys.
func Load(data []byte) (*Root, error) {
	var root Root
	meta, err := toml.Decode(string(data), &root)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return nil, errors.ConfigurationError("unknown configuration keys: %v", undec)
	}
	return &root, nil
}

// TraceSourceByName looks up a named trace source, or reports an error
// if none (or more than one) matches.
func (r *Root) TraceSourceByName(name string) (*TraceSource, error) {
	var found *TraceSource
	for i := range r.TraceSources {
		if r.TraceSources[i].Name == name {
			if found != nil {
				return nil, errors.ConfigurationError("ambiguous trace source name %q", name)
			}
			ts := r.TraceSources[i]
			found = &ts
		}
	}
	if found == nil {
		return nil, errors.ConfigurationError("no trace source named %q", name)
	}
	return found, nil
}

func (d Direction) String() string { return string(d) }

// Validate checks every controller's replay directive and confirms any
// trace source it names actually exists, aggregating every problem
// found across the whole document rather than stopping at the first.
func (r *Root) Validate() error {
	var err error
	for _, lc := range r.LinControllers {
		if verr := lc.Replay.Validate(); verr != nil {
			err = multierr.Append(err, fmt.Errorf("lin controller %q: %w", lc.Name, verr))
			continue
		}
		if !lc.Replay.Active() {
			continue
		}
		if _, terr := r.TraceSourceByName(lc.Replay.UseTraceSource); terr != nil {
			err = multierr.Append(err, fmt.Errorf("lin controller %q: %w", lc.Name, terr))
		}
	}
	return err
}

// Validate checks a Replay directive for internal consistency. It does
// not check channel existence — that's the scheduler's job.
func (r Replay) Validate() error {
	switch r.Direction {
	case DirectionUndefined, DirectionSend, DirectionReceive, DirectionBoth:
	default:
		return errors.ConfigurationError("invalid replay direction %q", r.Direction)
	}
	if r.Direction != DirectionUndefined && r.UseTraceSource == "" {
		return errors.ConfigurationError("replay direction %q set but no trace source named", r.Direction)
	}
	return nil
}
