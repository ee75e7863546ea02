package meter_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ineyio/voicepool"
	"github.com/ineyio/voicepool/meter"
)

func TestLogMeter(t *testing.T) {
	var buf bytes.Buffer
	m := meter.NewLogMeter(slog.New(slog.NewTextHandler(&buf, nil)))

	m.OnAllocate(voicepool.AllocateEvent{Label: "main", Required: 300, Remaining: 4700})
	m.OnSync(voicepool.SyncEvent{Label: "main", Error: errors.New("provider down")})

	out := buf.String()
	assert.Contains(t, out, "msg=allocate")
	assert.Contains(t, out, "credential=main")
	assert.Contains(t, out, "level=WARN msg=sync_error")
	assert.Contains(t, out, `error="provider down"`)
}

func TestNoopMeter(t *testing.T) {
	var m voicepool.Meter = &meter.NoopMeter{}
	assert.NotPanics(t, func() {
		m.OnAllocate(voicepool.AllocateEvent{})
		m.OnSync(voicepool.SyncEvent{})
		m.OnResult(voicepool.ResultEvent{})
	})
}
