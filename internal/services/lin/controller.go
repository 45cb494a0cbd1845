// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

package lin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vectorgrp/silkit-go/internal/discovery"
	"github.com/vectorgrp/silkit-go/internal/metrics"
	"github.com/vectorgrp/silkit-go/lib/config"
	"github.com/vectorgrp/silkit-go/lib/util/errors"
	"github.com/vectorgrp/silkit-go/lib/util/waitgroup"
)

// Clock returns the current simulation timestamp. Controllers used
// outside of tests are expected to be driven by a wallclock- or
// virtual-time-backed Clock supplied by their participant.
type Clock func() time.Duration

// Controller is a single LIN master or slave node (spec §4.5). It is
// single-threaded cooperative: all state mutation happens on whichever
// goroutine calls into it, matching the participant's message-dispatch
// model (spec §5). Handler registries are the one piece that tolerates
// concurrent add/remove from another goroutine.
type Controller struct {
	name        string
	network     string
	participant string

	net   *Network
	nodes *nodeTable
	self  *node

	mode   ControllerMode
	status ControllerStatus

	behavior simBehavior

	respondingSlaves map[Id]bool

	slaveConfigLatched   bool
	slaveConfigLatchTime time.Duration

	replayDirection config.Direction

	clock Clock
	lg    *zap.Logger
	m     *metrics.Registry

	wg             waitgroup.WaitGroup
	cancelDiscover func()

	ids handlerIDAllocator

	frameStatusHandlers *registry[FrameStatusHandler]
	goToSleepHandlers   *registry[GoToSleepHandler]
	wakeupHandlers      *registry[WakeupHandler]
	frameHeaderHandlers *registry[FrameHeaderHandler]
	slaveConfigHandlers *registry[SlaveConfigurationHandler]
	traceHandlers       *registry[TraceHandler]
}

// NewController builds an uninitialized controller (status Unknown)
// named name, on network, owned by participant, joined to net.
func NewController(name, network, participant string, net *Network, clock Clock, lg *zap.Logger, m *metrics.Registry) *Controller {
	if lg == nil {
		lg = zap.NewNop()
	}
	if clock == nil {
		clock = func() time.Duration { return 0 }
	}
	c := &Controller{
		name:                name,
		network:             network,
		participant:         participant,
		net:                 net,
		nodes:               newNodeTable(),
		behavior:            trivialBehavior{},
		respondingSlaves:    make(map[Id]bool),
		clock:               clock,
		lg:                  lg,
		m:                   m,
		frameStatusHandlers: newRegistry[FrameStatusHandler](),
		goToSleepHandlers:   newRegistry[GoToSleepHandler](),
		wakeupHandlers:      newRegistry[WakeupHandler](),
		frameHeaderHandlers: newRegistry[FrameHeaderHandler](),
		slaveConfigHandlers: newRegistry[SlaveConfigurationHandler](),
		traceHandlers:       newRegistry[TraceHandler](),
	}
	c.self = c.nodes.getOrCreate(name)
	net.Join(name, c.receiveWire)
	return c
}

// Name implements replay.Controller.
func (c *Controller) Name() string { return c.name }

func (c *Controller) now() time.Duration { return c.clock() }

// Status returns the controller's current lifecycle status.
func (c *Controller) Status() ControllerStatus { return c.status }

// Mode returns the controller's configured mode.
func (c *Controller) Mode() ControllerMode { return c.mode }

// --- Initialization (spec §4.5.1) ---

// Init configures this node with pre-declared responses. Must be
// called exactly once.
func (c *Controller) Init(cfg Config) error {
	if cfg.Mode == ModeInactive {
		return errors.ConfigurationError("lin controller %q: init mode must be Master or Slave", c.name)
	}
	if c.status != StatusUnknown {
		return errors.StateError("lin controller %q: already initialized", c.name)
	}
	c.mode = cfg.Mode
	c.self.controllerMode = cfg.Mode
	c.self.simulationMode = SimulationDefault

	c.self.updateResponses(cfg.FrameResponses, func(id Id) {
		c.lg.Warn("ignoring init response with invalid id", zap.String("controller", c.name), zap.Any("id", id))
	})
	if cfg.Mode == ModeSlave {
		for _, r := range cfg.FrameResponses {
			if r.Frame.ID.Valid() && r.Mode == ResponseTxUnconditional {
				c.respondingSlaves[r.Frame.ID] = true
			}
		}
	}

	c.self.status = StatusOperational
	c.status = StatusOperational
	c.broadcastConfig()
	return nil
}

// InitDynamic configures this node in dynamic-response mode: no
// pre-declared responses; the node answers each observed header from a
// FrameHeader handler via SendDynamicResponse.
func (c *Controller) InitDynamic(mode ControllerMode) error {
	if mode == ModeInactive {
		return errors.ConfigurationError("lin controller %q: initDynamic mode must be Master or Slave", c.name)
	}
	if c.status != StatusUnknown {
		return errors.StateError("lin controller %q: already initialized", c.name)
	}
	c.mode = mode
	c.self.controllerMode = mode
	c.self.simulationMode = SimulationDynamic
	c.self.status = StatusOperational
	c.status = StatusOperational
	c.broadcastConfig()
	return nil
}

func (c *Controller) broadcastConfig() {
	responses := make([]FrameResponse, NumLinIds)
	copy(responses, c.self.responses[:])
	c.net.Broadcast(c.name, WireControllerConfig{
		ControllerMode: c.mode,
		SimulationMode: c.self.simulationMode,
		FrameResponses: responses,
	})
}

// --- Service discovery driven behavior switch (spec §4.5.2) ---

// RegisterServiceDiscovery subscribes to bus for the network simulator
// service (serviceName) on this controller's network, and swaps this
// controller between trivial and detailed behavior as that peer
// appears and disappears (spec §4.5.2). Call Close to stop watching.
func (c *Controller) RegisterServiceDiscovery(ctx context.Context, bus discovery.Bus, serviceName string) {
	events, cancel := bus.Watch(ctx, c.network, serviceName)
	c.cancelDiscover = cancel
	c.wg.RunWithRecover(func() {
		for ev := range events {
			switch ev.Kind {
			case discovery.Appeared:
				c.setDetailedBehavior(ev.PeerID)
			case discovery.Disappeared:
				c.setTrivialBehavior()
			}
		}
	}, func(r any) {
		c.lg.Error("lin controller discovery watch panicked", zap.String("controller", c.name), zap.Any("panic", r))
	}, c.lg)
}

// Close stops this controller's discovery subscription (if any) and
// leaves its Network, waiting for its watch goroutine to exit.
func (c *Controller) Close() {
	if c.cancelDiscover != nil {
		c.cancelDiscover()
	}
	c.wg.Wait()
	c.net.Leave(c.name)
}

func (c *Controller) setDetailedBehavior(peer string) {
	c.behavior = detailedBehavior{peer: peer}
	c.lg.Info("lin controller switched to detailed behavior", zap.String("controller", c.name), zap.String("peer", peer))
}

func (c *Controller) setTrivialBehavior() {
	c.behavior = trivialBehavior{}
	c.lg.Warn("lin controller reverted to trivial behavior: network simulator peer disappeared", zap.String("controller", c.name))
}

// --- Handler registration (spec §4.5.8) ---

func (c *Controller) AddFrameStatusHandler(h FrameStatusHandler) HandlerId {
	id := c.ids.alloc()
	c.frameStatusHandlers.add(id, h)
	return id
}

func (c *Controller) RemoveFrameStatusHandler(id HandlerId) {
	c.warnIfUnknownHandler(c.frameStatusHandlers.remove(id), id)
}

func (c *Controller) AddGoToSleepHandler(h GoToSleepHandler) HandlerId {
	id := c.ids.alloc()
	c.goToSleepHandlers.add(id, h)
	return id
}

func (c *Controller) RemoveGoToSleepHandler(id HandlerId) {
	c.warnIfUnknownHandler(c.goToSleepHandlers.remove(id), id)
}

func (c *Controller) AddWakeupHandler(h WakeupHandler) HandlerId {
	id := c.ids.alloc()
	c.wakeupHandlers.add(id, h)
	return id
}

func (c *Controller) RemoveWakeupHandler(id HandlerId) {
	c.warnIfUnknownHandler(c.wakeupHandlers.remove(id), id)
}

// AddFrameHeaderHandler registers a dynamic-mode header observer.
func (c *Controller) AddFrameHeaderHandler(h FrameHeaderHandler) HandlerId {
	id := c.ids.alloc()
	c.frameHeaderHandlers.add(id, h)
	return id
}

func (c *Controller) RemoveFrameHeaderHandler(id HandlerId) {
	c.warnIfUnknownHandler(c.frameHeaderHandlers.remove(id), id)
}

// AddLinSlaveConfigurationHandler registers a slave-configuration
// observer. If a configuration message has already been observed with
// no handler registered, this call immediately delivers exactly one
// catch-up event (spec §4.5.6 step 3, §5).
func (c *Controller) AddLinSlaveConfigurationHandler(h SlaveConfigurationHandler) HandlerId {
	id := c.ids.alloc()
	latched := c.slaveConfigLatched
	ts := c.slaveConfigLatchTime
	c.slaveConfigLatched = false
	c.slaveConfigHandlers.add(id, h)
	if latched {
		h(ts)
	}
	return id
}

func (c *Controller) RemoveLinSlaveConfigurationHandler(id HandlerId) {
	c.warnIfUnknownHandler(c.slaveConfigHandlers.remove(id), id)
}

// AddTraceHandler registers the internal tracing hook.
func (c *Controller) AddTraceHandler(h TraceHandler) HandlerId {
	id := c.ids.alloc()
	c.traceHandlers.add(id, h)
	return id
}

func (c *Controller) RemoveTraceHandler(id HandlerId) {
	c.warnIfUnknownHandler(c.traceHandlers.remove(id), id)
}

func (c *Controller) warnIfUnknownHandler(found bool, id HandlerId) {
	if !found {
		c.lg.Warn("removing unknown lin handler id", zap.String("controller", c.name), zap.Uint64("handlerId", uint64(id)))
	}
}

// GetSlaveConfiguration returns the set of ids with a known responding
// slave; master-only (spec §4.5 supplement, grounded on
// LinController::GetSlaveConfiguration).
func (c *Controller) GetSlaveConfiguration() ([]Id, error) {
	if c.mode != ModeMaster {
		return nil, errors.StateError("lin controller %q: GetSlaveConfiguration is master-only", c.name)
	}
	ids := make([]Id, 0, len(c.respondingSlaves))
	for id := range c.respondingSlaves {
		ids = append(ids, id)
	}
	return ids, nil
}
