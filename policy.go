package voicepool

import "sort"

// Policy orders eligible credentials. The allocator takes the first one that
// survives its freshness checks.
type Policy interface {
	// Order returns candidates in priority order (highest priority first).
	Order(candidates []Credential, required int64) []Credential
}

// bestFitPolicy is the default policy, inlined to avoid an import cycle with policy/.
type bestFitPolicy struct{}

func (bestFitPolicy) Order(candidates []Credential, _ int64) []Credential {
	result := make([]Credential, len(candidates))
	copy(result, candidates)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Available() < result[j].Available()
	})
	return result
}

// largestFirst orders by remaining quota, largest first. The rescue pass uses it.
func largestFirst(candidates []Credential) []Credential {
	result := make([]Credential, len(candidates))
	copy(result, candidates)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RemainingQuota > result[j].RemainingQuota
	})
	return result
}
