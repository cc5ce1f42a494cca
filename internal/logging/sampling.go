package logging

import (
	"go.uber.org/zap/zapcore"
)

// newSampledCore samples debug and info entries. Warnings and errors, such
// as per-candidate compaction failures, are never dropped.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}
	return &splitCore{
		Core:    core,
		sampled: zapcore.NewSamplerWithOptions(core, cfg.Tick, cfg.Initial, cfg.Thereafter),
	}
}

// splitCore routes entries below warn level through a sampler.
type splitCore struct {
	zapcore.Core
	sampled zapcore.Core
}

func (c *splitCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level < zapcore.WarnLevel {
		return c.sampled.Check(e, ce)
	}
	return c.Core.Check(e, ce)
}

func (c *splitCore) With(fields []zapcore.Field) zapcore.Core {
	return &splitCore{Core: c.Core.With(fields), sampled: c.sampled.With(fields)}
}
