package agent

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// ZapAdapter adapts a *zap.Logger to the Logger interface.
// NewZapAdapterForMode builds one with JSON encoding (zap.NewProductionConfig)
// for "production" and readable console output (zap.NewDevelopmentConfig)
// otherwise.
type ZapAdapter struct {
	logger *zap.Logger
}

// NewZapAdapter wraps an existing *zap.Logger.
func NewZapAdapter(logger *zap.Logger) *ZapAdapter {
	return &ZapAdapter{logger: logger}
}

// NewZapAdapterForMode builds a *zap.Logger from mode ("production" or
// "development", case-insensitive, defaulting to development) and wraps
// it, matching the config-driven construction ServiceConfig uses for
// every other backend.
func NewZapAdapterForMode(mode string) (*ZapAdapter, error) {
	var cfg zap.Config
	if strings.EqualFold(mode, "production") || strings.EqualFold(mode, "prod") {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapAdapter{logger: logger}, nil
}

func (z *ZapAdapter) Debug(ctx context.Context, msg string, fields ...Field) {
	z.logger.Debug(msg, z.convertFields(fields)...)
}

func (z *ZapAdapter) Info(ctx context.Context, msg string, fields ...Field) {
	z.logger.Info(msg, z.convertFields(fields)...)
}

func (z *ZapAdapter) Warn(ctx context.Context, msg string, fields ...Field) {
	z.logger.Warn(msg, z.convertFields(fields)...)
}

func (z *ZapAdapter) Error(ctx context.Context, msg string, fields ...Field) {
	z.logger.Error(msg, z.convertFields(fields)...)
}

// Sync flushes any buffered log entries. Callers should defer it once at
// startup after constructing a ZapAdapter.
func (z *ZapAdapter) Sync() error {
	return z.logger.Sync()
}

func (z *ZapAdapter) convertFields(fields []Field) []zap.Field {
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = zap.Any(f.Key, f.Value)
	}
	return out
}
