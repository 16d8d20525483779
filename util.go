package raftchaos

import (
	"math/rand"
	"time"
)

// wallSeconds returns the driver's wall clock as floating-point seconds.
// All history timestamps come from this single clock, which keeps their
// intervals comparable.
func wallSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

func sample(l []int, size int, r *rand.Rand) []int {
	if size >= len(l) {
		return l
	}
	indexes := make(map[int]bool)
	for len(indexes) < size {
		i := r.Intn(len(l))
		indexes[i] = true
	}
	samples := make([]int, size)
	i := 0
	for k := range indexes {
		samples[i] = l[k]
		i++
	}
	return samples
}

func intRange(start, end int) []int {
	res := make([]int, end-start)
	for i := start; i < end; i++ {
		res[i-start] = i
	}
	return res
}
