package voicepool

import (
	"sort"
	"strings"
	"unicode"
)

// cutSlack is the least room left between the minimum fill and the budget.
const cutSlack = 100

// SplitConfig holds the splitter limits. All lengths are in characters.
type SplitConfig struct {
	// SafetyMargin is kept free on every credential. Nil means 50.
	SafetyMargin *int `yaml:"safety_margin"`
	// MaxChunkChars caps a single chunk regardless of quota.
	MaxChunkChars int `yaml:"max_chunk_chars"`
	// MinChunkChars is the smallest usable chunk budget. Credentials with
	// less room are never selected.
	MinChunkChars int `yaml:"min_chunk_chars"`
	// ChunkConcurrency bounds parallel chunk synthesis.
	ChunkConcurrency int `yaml:"chunk_concurrency"`
}

// DefaultSplitConfig returns the provider's limits: 10000 chars per request
// minus a 50 char margin.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		SafetyMargin:     Int(50),
		MaxChunkChars:    9950,
		MinChunkChars:    100,
		ChunkConcurrency: 4,
	}
}

// SplitText partitions text across the given credentials with the default limits.
func SplitText(text string, quotas []QuotaSnapshot) ([]TextChunk, error) {
	return DefaultSplitConfig().Split(text, quotas)
}

// Split partitions text into chunks, one credential per chunk.
//
// Each step picks, among unused credentials in ascending quota order, the
// first whose budget holds all remaining text, or else the one with the
// largest quota. The cut lands after the last sentence end or newline past
// the minimum fill, else after the last space past it, else at the budget.
// On shortfall the chunks built so far are returned with a *SplitShortfallError.
func (sc SplitConfig) Split(text string, quotas []QuotaSnapshot) ([]TextChunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	ordered := make([]QuotaSnapshot, len(quotas))
	copy(ordered, quotas)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RemainingQuota < ordered[j].RemainingQuota
	})

	runes := []rune(text)
	used := make([]bool, len(ordered))
	var chunks []TextChunk

	for start := 0; start < len(runes); {
		remaining := len(runes) - start

		pick := -1
		for i, q := range ordered {
			if used[i] || sc.budget(q.RemainingQuota) < sc.MinChunkChars {
				continue
			}
			if sc.budget(q.RemainingQuota) >= remaining {
				pick = i
				break
			}
			if pick == -1 || q.RemainingQuota > ordered[pick].RemainingQuota {
				pick = i
			}
		}
		if pick == -1 {
			return chunks, &SplitShortfallError{Uncovered: remaining, Chunks: len(chunks)}
		}

		q := ordered[pick]
		used[pick] = true
		budget := sc.budget(q.RemainingQuota)

		end := len(runes)
		if remaining > budget {
			end = start + sc.cut(runes[start:start+budget], budget)
		}

		if chunk, offset := trimRunes(runes, start, end); chunk != "" {
			chunks = append(chunks, TextChunk{
				Index:             len(chunks),
				Text:              chunk,
				CredentialID:      q.ID,
				Label:             q.Label,
				QuotaAtAssignment: q.RemainingQuota,
				Offset:            offset,
			})
		}

		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		start = end
	}

	return chunks, nil
}

func (sc SplitConfig) margin() int {
	if sc.SafetyMargin == nil {
		return 50
	}
	return *sc.SafetyMargin
}

// budget is the largest chunk a credential with the given quota may take.
func (sc SplitConfig) budget(quota int64) int {
	b := quota - int64(sc.margin())
	if b > int64(sc.MaxChunkChars) {
		return sc.MaxChunkChars
	}
	return int(b)
}

// cut returns the length of the chunk to take from window.
func (sc SplitConfig) cut(window []rune, budget int) int {
	minLen := budget * 8 / 10
	if budget-cutSlack < minLen {
		minLen = budget - cutSlack
	}

	for i := len(window) - 1; i > minLen; i-- {
		switch window[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	for i := len(window) - 1; i > minLen; i-- {
		if window[i] == ' ' {
			return i
		}
	}
	return budget
}

// trimRunes returns runes[start:end] without surrounding whitespace and the
// offset where the trimmed text begins.
func trimRunes(runes []rune, start, end int) (string, int) {
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	return string(runes[start:end]), start
}
