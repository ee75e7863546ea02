package voicepool

import (
	"context"
	"fmt"
	"time"
)

// Summary is an operator view of the pool's quota.
type Summary struct {
	// MaxPerRequest is the largest request a single active credential can take.
	MaxPerRequest  int64               `json:"max_per_request"`
	TotalAvailable int64               `json:"total_available"`
	ActiveCount    int                 `json:"active_count"`
	TotalCount     int                 `json:"total_count"`
	Credentials    []CredentialSummary `json:"credentials"`
}

// CredentialSummary describes one credential without its secret.
type CredentialSummary struct {
	ID               string     `json:"id"`
	Label            string     `json:"label"`
	MaskedSecret     string     `json:"masked_secret"`
	RemainingQuota   int64      `json:"remaining_quota"`
	TotalQuota       int64      `json:"total_quota"`
	PercentRemaining float64    `json:"percent_remaining"`
	Active           bool       `json:"active"`
	Health           string     `json:"health"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	LastSyncedAt     time.Time  `json:"last_synced_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Summarize describes one credential.
func (p *Pool) Summarize(c Credential) CredentialSummary {
	var pct float64
	if c.TotalQuota > 0 {
		pct = float64(c.RemainingQuota) / float64(c.TotalQuota) * 100
	}
	return CredentialSummary{
		ID:               c.ID,
		Label:            c.Label,
		MaskedSecret:     c.MaskedSecret(),
		RemainingQuota:   c.RemainingQuota,
		TotalQuota:       c.TotalQuota,
		PercentRemaining: pct,
		Active:           c.Active,
		Health:           p.health.GetHealth(c.ID).String(),
		LastUsedAt:       c.LastUsedAt,
		LastSyncedAt:     c.LastSyncedAt,
		CreatedAt:        c.CreatedAt,
	}
}

// Summary reports the quota of every stored credential.
func (p *Pool) Summary(ctx context.Context) (Summary, error) {
	all, err := p.store.ListAll(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("voicepool: summary: %w", err)
	}

	s := Summary{TotalCount: len(all), Credentials: make([]CredentialSummary, 0, len(all))}
	for _, c := range all {
		s.Credentials = append(s.Credentials, p.Summarize(c))
		if !c.Active {
			continue
		}
		s.ActiveCount++
		s.TotalAvailable += c.Available()
		if c.Available() > s.MaxPerRequest {
			s.MaxPerRequest = c.Available()
		}
	}
	return s, nil
}
