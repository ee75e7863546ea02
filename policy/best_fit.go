package policy

import (
	"sort"

	"github.com/ineyio/voicepool"
)

// BestFitPolicy orders candidates by remaining quota ascending, so a request
// takes the smallest credential that still covers it and large credentials
// stay whole for large requests.
type BestFitPolicy struct{}

var _ voicepool.Policy = (*BestFitPolicy)(nil)

// Order sorts candidates smallest remaining first. Ties keep store order.
func (p *BestFitPolicy) Order(candidates []voicepool.Credential, _ int64) []voicepool.Credential {
	result := make([]voicepool.Credential, len(candidates))
	copy(result, candidates)

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Available() < result[j].Available()
	})

	return result
}
