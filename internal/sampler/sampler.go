// Package sampler picks distinct random positions out of a population without
// materializing the population itself.
package sampler

import (
	"math/rand/v2"
	"time"
)

// maxCollisions is the number of consecutive redraws tolerated before the
// sampler falls back to the position counter.
const maxCollisions = 10

// Sampler draws index sets and shuffles using its own generator.
// A Sampler is not safe for concurrent use; give each worker its own.
type Sampler struct {
	rng  *rand.Rand
	seed uint64
}

// New returns a sampler seeded with seed. A zero seed is replaced by the
// current time so that production runs differ from each other.
func New(seed uint64) *Sampler {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Sampler{
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		seed: seed,
	}
}

// Seed returns the seed the sampler was built with.
func (s *Sampler) Seed() uint64 {
	return s.seed
}

// Sample returns min(count, population) distinct 1-based indexes in
// [1, population].
//
// When population <= count every index is returned and no random draws are
// made. Otherwise each value is drawn uniformly; after maxCollisions
// consecutive collisions the position counter is used instead, probing
// forward to the next free index if the counter itself is taken.
func (s *Sampler) Sample(count, population int) map[int]struct{} {
	if count <= 0 || population <= 0 {
		return map[int]struct{}{}
	}

	if population <= count {
		all := make(map[int]struct{}, population)
		for i := 1; i <= population; i++ {
			all[i] = struct{}{}
		}
		return all
	}

	picked := make(map[int]struct{}, count)
	for i := 0; i < count; i++ {
		candidate := s.rng.IntN(population) + 1

		collisions := 0
		for contains(picked, candidate) {
			collisions++
			if collisions > maxCollisions {
				candidate = nextFree(picked, i+1, population)
				break
			}
			candidate = s.rng.IntN(population) + 1
		}

		picked[candidate] = struct{}{}
	}
	return picked
}

// Shuffle permutes n elements with an unbiased Fisher-Yates shuffle.
func (s *Sampler) Shuffle(n int, swap func(i, j int)) {
	s.rng.Shuffle(n, swap)
}

// SizeFor returns the number of entities to sample from a partition.
// A positive perPartition wins; otherwise percentage of the population is
// used with whole-hundred granularity.
func SizeFor(population, perPartition, percentage int) int {
	if perPartition > 0 {
		return perPartition
	}
	if population <= 0 || percentage <= 0 {
		return 0
	}
	return (population / 100) * percentage
}

func contains(set map[int]struct{}, v int) bool {
	_, ok := set[v]
	return ok
}

// nextFree returns start if it is free, otherwise the next free index after
// it, wrapping around inside [1, population]. The caller guarantees that at
// least one index is free.
func nextFree(set map[int]struct{}, start, population int) int {
	v := start
	for contains(set, v) {
		v++
		if v > population {
			v = 1
		}
	}
	return v
}
