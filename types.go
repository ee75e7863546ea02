package voicepool

import (
	"log/slog"
	"time"
)

// Credential is one provider API key together with its locally tracked quota.
type Credential struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Secret string `json:"-"`

	// RemainingQuota is stored as reported. It goes negative when the
	// provider reports more usage than the limit.
	RemainingQuota int64 `json:"remaining_quota"`
	TotalQuota     int64 `json:"total_quota"`
	Active         bool  `json:"active"`

	LastUsedAt   *time.Time `json:"last_used_at,omitempty"`
	LastSyncedAt time.Time  `json:"last_synced_at"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Available returns the remaining quota with negative values read as zero.
func (c Credential) Available() int64 {
	if c.RemainingQuota < 0 {
		return 0
	}
	return c.RemainingQuota
}

// Usable reports whether the credential can serve a request of required characters.
func (c Credential) Usable(required int64) bool {
	return c.Active && c.Available() >= required
}

// MaskedSecret returns the secret with everything but its first 8 and last 4
// characters hidden.
func (c Credential) MaskedSecret() string {
	return MaskSecret(c.Secret)
}

// LogValue implements slog.LogValuer. The secret is always masked.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.String("label", c.Label),
		slog.String("secret", c.MaskedSecret()),
		slog.Int64("remaining", c.RemainingQuota),
		slog.Bool("active", c.Active),
	)
}

// MaskSecret hides the middle of a secret for display.
func MaskSecret(secret string) string {
	r := []rune(secret)
	if len(r) < 8 {
		return "****"
	}
	return string(r[:8]) + "..." + string(r[len(r)-4:])
}

// QuotaUpdate is the provider truth written by a sync.
type QuotaUpdate struct {
	Remaining int64
	Total     int64
	Active    bool
	SyncedAt  time.Time
}

// Usage is the character usage reported by the provider for one credential.
type Usage struct {
	Used  int64 `json:"used"`
	Limit int64 `json:"limit"`
}

// SynthesisRequest is a text-to-speech request.
type SynthesisRequest struct {
	Text          string         `json:"text"`
	VoiceID       string         `json:"voice_id"`
	ModelID       string         `json:"model_id,omitempty"`
	OutputFormat  string         `json:"output_format,omitempty"`
	VoiceSettings *VoiceSettings `json:"voice_settings,omitempty"`
}

// VoiceSettings tunes the synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// DefaultVoiceSettings returns the settings used when a request carries none.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0,
		UseSpeakerBoost: true,
	}
}

// Routing describes which credential served a request.
type Routing struct {
	CredentialID   string `json:"credential_id"`
	Label          string `json:"label"`
	Chars          int64  `json:"chars"`
	Attempts       int    `json:"attempts"`
	InPlaceRetries int    `json:"in_place_retries"`
}

// SynthesisResult is the audio returned by Pool.Synthesize.
type SynthesisResult struct {
	Audio   []byte
	Routing Routing
}

// QuotaSnapshot is the view of a credential that the splitter works from.
type QuotaSnapshot struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	RemainingQuota int64  `json:"remaining_quota"`
}

// Snapshot returns the splitter view of the credential.
func (c Credential) Snapshot() QuotaSnapshot {
	return QuotaSnapshot{ID: c.ID, Label: c.Label, RemainingQuota: c.RemainingQuota}
}

// TextChunk is one piece of a split text, bound to the credential that will
// synthesize it.
type TextChunk struct {
	Index             int    `json:"index"`
	Text              string `json:"text"`
	CredentialID      string `json:"credential_id"`
	Label             string `json:"label"`
	QuotaAtAssignment int64  `json:"quota_at_assignment"`
	// Offset is the rune offset of Text in the input.
	Offset int `json:"offset"`
}

// ChunkAudio is the synthesized audio of one chunk.
type ChunkAudio struct {
	Chunk   TextChunk
	Audio   []byte
	Routing Routing
}
