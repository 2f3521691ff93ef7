package engine

import "runtime"

// poolSize implements spec.md §4.6: W = clamp(online_cpus, 1, 64), or the
// caller's explicit override when positive.
func poolSize(requested int) int {
	if requested > 0 {
		return clamp(requested, 1, 64)
	}
	return clamp(runtime.NumCPU(), 1, 64)
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
