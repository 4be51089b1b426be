package autocomplete

import "math"

// allocateBudget distributes maxResults result slots across providers.
//
// Every provider starts with an equal share (rounded half away from
// zero), adjusted by ±1 in registration order until the shares sum to
// exactly maxResults. Providers that produced fewer ids than their share
// release the surplus; skipped providers release their whole share.
// The surplus is then handed out one slot at a time, round-robin, to
// providers that produced more ids than their share, until it runs out
// or every deficit is filled.
//
// The returned map holds the final result count per non-skipped
// provider. No provider is ever granted more than maxResults in total.
func allocateBudget(maxResults int, order []string, available map[string]int, skipped map[string]bool) map[string]int {
	if len(order) == 0 {
		return map[string]int{}
	}

	share := int(math.Round(float64(maxResults) / float64(len(order))))
	shares := make(map[string]int, len(order))
	allocated := 0
	for _, name := range order {
		shares[name] = share
		allocated += share
	}

	// Rounding can leave the total off by a few slots either way.
	diff := 1
	if allocated > maxResults {
		diff = -1
	}
	for allocated != maxResults {
		for _, name := range order {
			shares[name] += diff
			allocated += diff
			if allocated == maxResults {
				break
			}
		}
	}

	final := make(map[string]int, len(order))
	deficits := make(map[string]int)
	surplus := 0
	for _, name := range order {
		if skipped[name] {
			surplus += shares[name]
			continue
		}
		avail := available[name]
		if avail <= shares[name] {
			final[name] = avail
			surplus += shares[name] - avail
		} else {
			final[name] = shares[name]
			deficits[name] = avail - shares[name]
		}
	}

	for surplus > 0 {
		anyDeficit := false
		for _, name := range order {
			if deficits[name] > 0 {
				anyDeficit = true
			}
		}
		if !anyDeficit {
			break
		}
		for _, name := range order {
			if deficits[name] > 0 {
				final[name]++
				deficits[name]--
				surplus--
			}
			if surplus <= 0 {
				break
			}
		}
	}

	return final
}
