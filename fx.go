// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"context"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the bridge into an fx application.
//
// It provides a kgo.Logger (from an optional *zap.Logger), a started
// *WorkerPool that is also the Scheduler, and *Metrics (from an optional
// metric.Meter).  A *Consumer and/or *Publisher supplied by the application
// are started and stopped with it; their unset Logger and Scheduler fields
// are filled in and Metrics is registered on them.
//
//	app := fx.New(
//	    kafkabridge.Module,
//	    fx.Provide(func() *kafkabridge.Consumer {
//	        return &kafkabridge.Consumer{Brokers: brokers, GroupID: "orders"}
//	    }),
//	)
var Module = fx.Module("kafkabridge",
	fx.Provide(
		provideLogger,
		provideWorkerPool,
		func(wp *WorkerPool) Scheduler { return wp },
		provideMetrics,
	),
	fx.Invoke(registerLifecycle),
)

// LoggerParams groups the optional logging inputs.
type LoggerParams struct {
	fx.In

	Zap *zap.Logger `optional:"true"`
}

func provideLogger(p LoggerParams) kgo.Logger {
	return NewZapLogger(p.Zap, kgo.LogLevelInfo)
}

// WorkerPoolParams groups what the default Scheduler needs.
type WorkerPoolParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    kgo.Logger
}

func provideWorkerPool(p WorkerPoolParams) *WorkerPool {
	wp := &WorkerPool{Logger: p.Logger}
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return wp.Start()
		},
		OnStop: func(ctx context.Context) error {
			return wp.Stop(ctx)
		},
	})
	return wp
}

// MetricsParams groups the optional metrics inputs.
type MetricsParams struct {
	fx.In

	Meter metric.Meter `optional:"true"`
}

func provideMetrics(p MetricsParams) (*Metrics, error) {
	return NewMetrics(p.Meter)
}

// LifecycleParams groups the handles started with the application.
type LifecycleParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Logger    kgo.Logger
	Scheduler Scheduler
	Metrics   *Metrics
	Consumer  *Consumer  `optional:"true"`
	Publisher *Publisher `optional:"true"`
}

func registerLifecycle(p LifecycleParams) {
	if c := p.Consumer; c != nil {
		if c.Logger == nil {
			c.Logger = p.Logger
		}
		if c.Scheduler == nil {
			c.Scheduler = p.Scheduler
		}

		var cancel func()
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				cancel = p.Metrics.Observe(c)
				return c.Start()
			},
			OnStop: func(ctx context.Context) error {
				err := c.Close(ctx)
				if cancel != nil {
					cancel()
				}
				return err
			},
		})
	}

	if pub := p.Publisher; pub != nil {
		if pub.Logger == nil {
			pub.Logger = p.Logger
		}
		if pub.Scheduler == nil && pub.Encoder == nil {
			pub.Scheduler = p.Scheduler
		}

		var cancel func()
		p.Lifecycle.Append(fx.Hook{
			OnStart: func(context.Context) error {
				cancel = p.Metrics.ObservePublisher(pub)
				return pub.Start()
			},
			OnStop: func(ctx context.Context) error {
				pub.Stop(ctx)
				if cancel != nil {
					cancel()
				}
				return nil
			},
		})
	}
}
