package exchange

// DefaultMaxHTL is the hops-to-live a request starts with.
const DefaultMaxHTL = 10

// NextHTL computes the hops-to-live to relay a request with. The decrement
// is probabilistic, a bounded flood without a visited set: near the maximum
// the decrement chance is about 50%, near 1 about 25%, linear in between.
// Skipping decrements at the top hides the request origin; decrementing
// rarely at the bottom lets a dying request still reach a few more peers.
//
// rnd must be uniform in [0, 1). The second return is false when the request
// must not be relayed at all.
func NextHTL(htl uint8, rnd float64) (uint8, bool) {
	if htl == 0 {
		return 0, false
	}
	if htl > DefaultMaxHTL {
		htl = DefaultMaxHTL
	}

	p := 0.25
	if DefaultMaxHTL > 1 {
		p += 0.25 * float64(htl-1) / float64(DefaultMaxHTL-1)
	}
	if rnd < p {
		htl--
	}
	if htl == 0 {
		return 0, false
	}
	return htl, true
}
