// SPDX-FileCopyrightText: 2024 Vector Informatik GmbH
//
// SPDX-License-Identifier: MIT

// Command silkit-demo wires a LIN controller core against a TOML
// configuration file: it opens the trace source of every
// replay-configured controller, attaches those controllers to a
// ticking time provider, serves
// prometheus metrics, and runs until interrupted.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vectorgrp/silkit-go/internal/extension"
	"github.com/vectorgrp/silkit-go/internal/metrics"
	"github.com/vectorgrp/silkit-go/internal/pcap"
	"github.com/vectorgrp/silkit-go/internal/replay"
	"github.com/vectorgrp/silkit-go/internal/services/lin"
	"github.com/vectorgrp/silkit-go/internal/trace"
	"github.com/vectorgrp/silkit-go/lib/config"
	"github.com/vectorgrp/silkit-go/lib/util/errors"
	"github.com/vectorgrp/silkit-go/lib/util/logger"
)

// coreVersion is the build identity every extension must match exactly
// (spec §4.3). A real build pins these from link-time variables; a
// fixed development triple is used here.
var (
	coreVersionMajor uint32 = 4
	coreVersionMinor uint32 = 0
	coreVersionPatch uint32 = 0
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		listenAddr string
		logLevel   string
		stepMillis int
		extHints   []string
	)

	cmd := &cobra.Command{
		Use:   "silkit-demo",
		Short: "Run a LIN controller core against a replay configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), runOpts{
				configPath: configPath,
				listenAddr: listenAddr,
				logLevel:   logLevel,
				stepPeriod: time.Duration(stepMillis) * time.Millisecond,
				extHints:   extHints,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to the TOML configuration file")
	cmd.Flags().StringVar(&listenAddr, "listen", ":9090", "address to serve /metrics on")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "debug, info, warn, or error")
	cmd.Flags().IntVar(&stepMillis, "step-ms", 10, "simulation step period driving the replay scheduler")
	cmd.Flags().StringSliceVar(&extHints, "extension-hint", nil, "additional search directory for extension loading, repeatable")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

type runOpts struct {
	configPath string
	listenAddr string
	logLevel   string
	stepPeriod time.Duration
	extHints   []string
}

func run(ctx context.Context, opts runOpts) error {
	lg := logger.New(logger.Config{Level: opts.logLevel})
	defer lg.Sync() //nolint:errcheck

	data, err := os.ReadFile(opts.configPath)
	if err != nil {
		return errors.WithStack(err)
	}
	root, err := config.Load(data)
	if err != nil {
		return err
	}
	if err := root.Validate(); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)
	extLoader := extension.NewLoader(coreVersionMajor, coreVersionMinor, coreVersionPatch, [4]uint32{}, lg)
	_ = extLoader // ready for extension.Load calls driven by future config directives
	if len(opts.extHints) > 0 {
		lg.Debug("extension search hints configured", zap.Strings("hints", opts.extHints))
	}

	net := lin.NewNetwork()
	sched := replay.New(m, lg)
	tp := &tickerTimeProvider{period: opts.stepPeriod}
	sched.Attach(tp)

	controllers := make([]*lin.Controller, 0, len(root.LinControllers))
	for _, lc := range root.LinControllers {
		c := lin.NewController(lc.Name, lc.Ref.Network, lc.Ref.Participant, net, wallClock, lg, m)
		controllers = append(controllers, c)

		if !lc.Replay.Active() {
			continue
		}
		reader, err := openReplayReader(root, lc, lg)
		if err != nil {
			return fmt.Errorf("lin controller %q: %w", lc.Name, err)
		}
		c.SetReplayDirection(lc.Replay.Direction)
		sched.AddTask(c, reader)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: opts.listenAddr, Handler: mux}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	go tp.Run(ctx)

	lg.Info("silkit-demo running", zap.Int("controllers", len(controllers)), zap.String("listen", opts.listenAddr))

	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func wallClock() time.Duration { return time.Duration(time.Now().UnixNano()) }

// openReplayReader opens lc's trace source and resolves the channel
// matching lc's controller per spec §4.4.
func openReplayReader(root *config.Root, lc config.LinController, lg *zap.Logger) (trace.ReplayChannelReader, error) {
	src, err := root.TraceSourceByName(lc.Replay.UseTraceSource)
	if err != nil {
		return nil, err
	}

	var file trace.ReplayFile
	switch src.Type {
	case config.SourceTypePcapFile:
		file, err = pcap.Open(src.InputPath, lg)
	default:
		return nil, errors.ConfigurationError("unsupported trace source type %q for %q", src.Type, src.Name)
	}
	if err != nil {
		return nil, err
	}

	channel, err := replay.ResolveChannel(file, *src, lc.Replay, lc.Ref)
	if err != nil {
		return nil, err
	}
	return channel.Reader()
}

// tickerTimeProvider is a minimal replay.TimeProvider that advances
// virtual time by a fixed step on a real-time ticker; good enough to
// exercise the scheduler outside of a synchronized simulation.
type tickerTimeProvider struct {
	period time.Duration
	fn     replay.StepFunc
	now    time.Duration
}

func (t *tickerTimeProvider) RegisterNextStepHandler(fn replay.StepFunc) { t.fn = fn }

func (t *tickerTimeProvider) Run(ctx context.Context) {
	if t.period <= 0 {
		t.period = 10 * time.Millisecond
	}
	ticker := time.NewTicker(t.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.fn != nil {
				t.fn(t.now, t.period)
			}
			t.now += t.period
		}
	}
}
