// Package elevenlabs is the ElevenLabs text-to-speech adapter.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/tidwall/gjson"

	"github.com/ineyio/voicepool"
)

const (
	defaultBaseURL      = "https://api.elevenlabs.io"
	defaultModel        = "eleven_multilingual_v2"
	defaultOutputFormat = "mp3_44100_128"
	defaultTimeout      = 60 * time.Second

	// defaultCharacterLimit applies when the subscription reports no limit.
	defaultCharacterLimit = 10000

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Provider is the ElevenLabs API adapter.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	model      string
	retry      retrypolicy.RetryPolicy[voicepool.Usage]
}

var (
	_ voicepool.Provider     = (*Provider)(nil)
	_ voicepool.VoiceCatalog = (*Provider)(nil)
)

// Option configures the provider.
type Option func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient = &http.Client{Timeout: d} }
}

// WithUsageRetry sets how transient usage query failures are retried.
func WithUsageRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(p *Provider) { p.retry = newRetryPolicy(maxRetries, baseDelay, maxDelay) }
}

// New creates a new ElevenLabs provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		model:      defaultModel,
		retry:      newRetryPolicy(2, 200*time.Millisecond, 2*time.Second),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) retrypolicy.RetryPolicy[voicepool.Usage] {
	return retrypolicy.NewBuilder[voicepool.Usage]().
		HandleIf(func(_ voicepool.Usage, err error) bool { return voicepool.IsRetryable(err) }).
		WithMaxRetries(maxRetries).
		WithBackoff(baseDelay, maxDelay).
		Build()
}

func (p *Provider) Name() string { return "elevenlabs" }

// FetchUsage reads the subscription of the account behind secret. Rate
// limits and unavailability are retried with exponential backoff.
func (p *Provider) FetchUsage(ctx context.Context, secret string) (voicepool.Usage, error) {
	var lastErr error
	usage, err := failsafe.With(p.retry).WithContext(ctx).Get(func() (voicepool.Usage, error) {
		u, err := p.fetchUsage(ctx, secret)
		lastErr = err
		return u, err
	})
	if err != nil {
		if lastErr != nil {
			return voicepool.Usage{}, lastErr
		}
		return voicepool.Usage{}, err
	}
	return usage, nil
}

func (p *Provider) fetchUsage(ctx context.Context, secret string) (voicepool.Usage, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/user/subscription", nil)
	if err != nil {
		return voicepool.Usage{}, fmt.Errorf("voicepool: create elevenlabs request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", secret)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.do(ctx, httpReq)
	if err != nil {
		return voicepool.Usage{}, err
	}
	defer resp.Body.Close()

	if err := mapHTTPError(resp); err != nil {
		return voicepool.Usage{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return voicepool.Usage{}, fmt.Errorf("%w: read subscription: %v", voicepool.ErrProviderUnavailable, err)
	}
	if !gjson.ValidBytes(body) {
		return voicepool.Usage{}, fmt.Errorf("%w: malformed subscription response", voicepool.ErrProviderError)
	}

	limit := gjson.GetBytes(body, "character_limit").Int()
	if limit == 0 {
		limit = defaultCharacterLimit
	}
	return voicepool.Usage{
		Used:  gjson.GetBytes(body, "character_count").Int(),
		Limit: limit,
	}, nil
}

type ttsRequest struct {
	Text          string                   `json:"text"`
	ModelID       string                   `json:"model_id"`
	VoiceSettings *voicepool.VoiceSettings `json:"voice_settings,omitempty"`
}

// Synthesize converts req.Text to audio. The caller closes the returned body.
func (p *Provider) Synthesize(ctx context.Context, secret string, req voicepool.SynthesisRequest) (io.ReadCloser, error) {
	voiceID := req.VoiceID
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	model := req.ModelID
	if model == "" {
		model = p.model
	}
	format := req.OutputFormat
	if format == "" {
		format = defaultOutputFormat
	}
	settings := req.VoiceSettings
	if settings == nil {
		def := voicepool.DefaultVoiceSettings()
		settings = &def
	}

	data, err := json.Marshal(ttsRequest{Text: req.Text, ModelID: model, VoiceSettings: settings})
	if err != nil {
		return nil, fmt.Errorf("voicepool: marshal elevenlabs request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		p.baseURL, url.PathEscape(voiceID), url.QueryEscape(format))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("voicepool: create elevenlabs request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", secret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := p.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	if err := mapHTTPError(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (p *Provider) do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", voicepool.ErrProviderUnavailable, err)
	}
	return resp, nil
}
