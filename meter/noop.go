package meter

import "github.com/ineyio/voicepool"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ voicepool.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAllocate(voicepool.AllocateEvent) {}
func (m *NoopMeter) OnSync(voicepool.SyncEvent)         {}
func (m *NoopMeter) OnResult(voicepool.ResultEvent)     {}
