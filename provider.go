package voicepool

import (
	"context"
	"io"
)

// Provider is the interface that speech provider adapters must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "elevenlabs").
	Name() string

	// FetchUsage returns the character usage and limit of the account behind secret.
	FetchUsage(ctx context.Context, secret string) (Usage, error)

	// Synthesize converts text to audio. Exhausted quota is reported as
	// ErrQuotaExceeded or ErrUnauthorized; see IsQuotaExceeded.
	Synthesize(ctx context.Context, secret string, req SynthesisRequest) (io.ReadCloser, error)
}

// Voice is one entry of a provider's voice catalog.
type Voice struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Language    string `json:"language"`
	Description string `json:"description"`
	PreviewText string `json:"preview_text,omitempty"`
}

// VoiceCatalog is implemented by providers that publish a voice list.
type VoiceCatalog interface {
	Voices() []Voice
}
