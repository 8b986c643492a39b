// Package dataset generates the synthetic entities of one partition in
// fixed-size batches.
package dataset

import "github.com/basekick-labs/tablebench/pkg/models"

// Generator lazily yields the entities of a single partition. Entities are
// produced only when Next is called, so a whole partition never sits in
// memory at once.
type Generator struct {
	spec      models.PartitionSpec
	batchSize int
	factory   EntityFactory

	pos     int // last generated 1-based position
	sampled []models.Entity
}

// NewGenerator returns a generator for spec. batchSize must be positive;
// values below one are treated as one.
func NewGenerator(spec models.PartitionSpec, batchSize int, factory EntityFactory) *Generator {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Generator{
		spec:      spec,
		batchSize: batchSize,
		factory:   factory,
		sampled:   make([]models.Entity, 0, len(spec.SampleIndexes)),
	}
}

// Next returns the next batch. The second value is false once the partition
// is exhausted. Every batch is a newly allocated slice.
func (g *Generator) Next() ([]models.Entity, bool) {
	remaining := g.spec.Population - g.pos
	if remaining <= 0 {
		return nil, false
	}

	n := min(g.batchSize, remaining)
	batch := make([]models.Entity, 0, n)
	for range n {
		g.pos++
		e := g.factory.NewEntity(g.spec.Name)
		e.PartitionKey = g.spec.Name
		if g.spec.IsSampled(g.pos) {
			g.sampled = append(g.sampled, e)
		}
		batch = append(batch, e)
	}
	return batch, true
}

// Generated returns how many entities have been produced so far.
func (g *Generator) Generated() int {
	return g.pos
}

// Sampled returns the sampled entities produced so far, in generation order.
func (g *Generator) Sampled() []models.Entity {
	return g.sampled
}
