package policy

import (
	"sort"

	"github.com/ineyio/voicepool"
)

// LargestFirstPolicy orders candidates by remaining quota descending. It
// spreads load across credentials at the cost of fragmenting large ones.
type LargestFirstPolicy struct{}

var _ voicepool.Policy = (*LargestFirstPolicy)(nil)

// Order sorts candidates largest remaining first. Ties keep store order.
func (p *LargestFirstPolicy) Order(candidates []voicepool.Credential, _ int64) []voicepool.Credential {
	result := make([]voicepool.Credential, len(candidates))
	copy(result, candidates)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Available() > result[j].Available()
	})

	return result
}

// ByName returns the policy registered under name: "best_fit" or "largest_first".
func ByName(name string) (voicepool.Policy, bool) {
	switch name {
	case "", "best_fit":
		return &BestFitPolicy{}, true
	case "largest_first":
		return &LargestFirstPolicy{}, true
	default:
		return nil, false
	}
}
