package truetime

import "sort"

// selectSample picks a winner given the accepted samples grouped by the
// host they came from, it picks the per-host minimum-delay sample, then
// returns the median of those winners by offset. It is pure and
// stateless so that selection is commutative/associative over the set of
// accepted samples, as the concurrency model requires.
//
// hosts is supplied alongside samplesByHost to fix iteration order
// (Go map iteration is randomized) so that ties are broken by original
// insertion order.
func selectSample(hosts []string, samplesByHost map[string][]Sample) (Sample, bool) {
	winners := make([]Sample, 0, len(hosts))
	for _, host := range hosts {
		samples := samplesByHost[host]
		if len(samples) == 0 {
			continue
		}
		winner := samples[0]
		for _, s := range samples[1:] {
			if s.DelayMS < winner.DelayMS {
				winner = s
			}
		}
		winners = append(winners, winner)
	}

	if len(winners) == 0 {
		return Sample{}, false
	}

	sort.SliceStable(winners, func(i, j int) bool {
		return winners[i].OffsetMS < winners[j].OffsetMS
	})

	return winners[len(winners)/2], true
}
