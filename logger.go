// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkabridge

import (
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kzap"
	"go.uber.org/zap"
)

// nopLogger, the default logger, drops everything.
type nopLogger struct{}

func (*nopLogger) Level() kgo.LogLevel { return kgo.LogLevelNone }
func (*nopLogger) Log(kgo.LogLevel, string, ...any) {
}

// NewZapLogger adapts l for use as Consumer.Logger, Publisher.Logger and
// WorkerPool.Logger.  The bridge and franz-go share it.  A nil l yields the
// no-op logger.
func NewZapLogger(l *zap.Logger, level kgo.LogLevel) kgo.Logger {
	if l == nil {
		return &nopLogger{}
	}
	return kzap.New(l, kzap.Level(level))
}
