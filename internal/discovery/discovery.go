// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Package discovery implements the service-discovery bus the LIN
// controller's trivial/detailed behavior switch watches (spec §4.5.2).
// It stands in for SIL Kit's participant-internal pub/sub service
// registry with an etcd clientv3 watch over a key prefix, grounded on
// the election/watch shape of pkg/manager/vip/manager.go in the
// teacher repo, with cenkalti/backoff reconnect retry matching
// pkg/balance/metricsreader's retry loop.
package discovery

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/vectorgrp/silkit-go/lib/util/waitgroup"
)

const keyPrefix = "/silkit/services/"

// EventKind distinguishes a service appearing from it disappearing.
type EventKind int

const (
	Appeared EventKind = iota
	Disappeared
)

// ServiceEvent is delivered for every lifecycle transition of a named
// service on a given network.
type ServiceEvent struct {
	Kind EventKind
	// PeerID identifies the specific service instance. For Appeared it is
	// the stored value, e.g. the network simulator participant name, used
	// by the LIN controller to pin detailed-mode traffic to exactly that
	// peer. For Disappeared it is the deleted etcd key.
	PeerID string
}

// Bus is the subset of the discovery API the LIN controller depends
// on: watch for a named service appearing/disappearing on a network.
type Bus interface {
	// Watch subscribes to lifecycle events for serviceName on network.
	// The returned cancel function stops the subscription; it must be
	// safe to call more than once.
	Watch(ctx context.Context, network, serviceName string) (<-chan ServiceEvent, func())
}

// EtcdBus implements Bus against an etcd cluster.
type EtcdBus struct {
	client *clientv3.Client
	lg     *zap.Logger
	wg     waitgroup.WaitGroup
}

// NewEtcdBus builds a Bus backed by client. The caller retains
// ownership of client and must close it after every watcher using this
// Bus has been cancelled.
func NewEtcdBus(client *clientv3.Client, lg *zap.Logger) *EtcdBus {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &EtcdBus{client: client, lg: lg}
}

// Watch implements Bus. It retries the underlying etcd watch with
// exponential backoff on transport errors, so a transient connection
// loss to the discovery cluster does not permanently blind the
// controller to peer lifecycle changes.
func (b *EtcdBus) Watch(ctx context.Context, network, serviceName string) (<-chan ServiceEvent, func()) {
	key := keyPrefix + network + "/" + serviceName
	out := make(chan ServiceEvent, 8)
	ctx, cancel := context.WithCancel(ctx)

	b.wg.RunWithRecover(func() {
		defer close(out)
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = 0

		for ctx.Err() == nil {
			watchCtx, watchCancel := context.WithCancel(ctx)
			wch := b.client.Watch(watchCtx, key, clientv3.WithPrefix())

			for resp := range wch {
				if err := resp.Err(); err != nil {
					b.lg.Warn("discovery watch error, retrying", zap.String("key", key), zap.Error(err))
					break
				}
				for _, ev := range resp.Events {
					select {
					case out <- decodeEvent(ev):
					case <-ctx.Done():
						watchCancel()
						return
					}
				}
			}
			watchCancel()

			if ctx.Err() != nil {
				return
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				wait = 30 * time.Second
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
	}, func(r any) {
		b.lg.Error("discovery watch goroutine panicked", zap.Any("panic", r), zap.String("key", key))
	}, b.lg)

	return out, cancel
}

func decodeEvent(ev *clientv3.Event) ServiceEvent {
	if ev.Type == clientv3.EventTypeDelete {
		return ServiceEvent{Kind: Disappeared, PeerID: string(ev.Kv.Key)}
	}
	return ServiceEvent{Kind: Appeared, PeerID: string(ev.Value)}
}

// Close waits for all watch goroutines spawned by this bus to exit.
// Callers must first cancel every Watch subscription.
func (b *EtcdBus) Close() {
	b.wg.Wait()
}
