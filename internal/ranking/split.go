package ranking

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/JakeFAU/aram-crawler/internal/features"
)

// SplitByMatch assigns whole matches to train or test. About testSize of the
// distinct match ids go to test; the assignment depends only on the set of
// ids and seed.
func SplitByMatch(rows []features.Row, testSize float64, seed uint64) (train, test []features.Row) {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range rows {
		if _, ok := seen[r.MatchID]; ok {
			continue
		}
		seen[r.MatchID] = struct{}{}
		ids = append(ids, r.MatchID)
	}
	sort.Strings(ids)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	nTest := 0
	if testSize > 0 && len(ids) > 1 {
		nTest = int(math.Ceil(float64(len(ids)) * testSize))
		nTest = min(max(nTest, 1), len(ids)-1)
	}
	testIDs := make(map[string]struct{}, nTest)
	for _, id := range ids[:nTest] {
		testIDs[id] = struct{}{}
	}
	for _, r := range rows {
		if _, ok := testIDs[r.MatchID]; ok {
			test = append(test, r)
		} else {
			train = append(train, r)
		}
	}
	return train, test
}
