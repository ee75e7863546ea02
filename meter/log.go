package meter

import (
	"log/slog"

	"github.com/ineyio/voicepool"
)

// LogMeter logs pool events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ voicepool.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAllocate(e voicepool.AllocateEvent) {
	if e.Error != nil {
		m.Logger.Warn("allocate_error",
			"required", e.Required,
			"excluded", e.Excluded,
			"error", e.Error,
		)
		return
	}
	m.Logger.Info("allocate",
		"credential", e.Label,
		"required", e.Required,
		"remaining", e.Remaining,
		"excluded", e.Excluded,
		"rescued", e.Rescued,
	)
}

func (m *LogMeter) OnSync(e voicepool.SyncEvent) {
	if e.Success {
		m.Logger.Info("sync",
			"credential", e.Label,
			"remaining", e.Remaining,
			"total", e.Total,
			"active", e.Active,
			"duration_ms", e.Duration.Milliseconds(),
		)
		return
	}
	m.Logger.Warn("sync_error",
		"credential", e.Label,
		"duration_ms", e.Duration.Milliseconds(),
		"error", e.Error,
	)
}

func (m *LogMeter) OnResult(e voicepool.ResultEvent) {
	if e.Success {
		m.Logger.Info("result",
			"provider", e.Provider,
			"credential", e.Label,
			"chars", e.Chars,
			"attempt", e.Attempt,
			"duration_ms", e.Duration.Milliseconds(),
		)
		return
	}
	m.Logger.Warn("result_error",
		"provider", e.Provider,
		"credential", e.Label,
		"chars", e.Chars,
		"attempt", e.Attempt,
		"duration_ms", e.Duration.Milliseconds(),
		"error", e.Error,
	)
}
