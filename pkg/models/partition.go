package models

// PartitionSpec describes one partition to generate and upload. It is built
// once before the load phase starts and never modified afterwards.
type PartitionSpec struct {
	Name       string
	Population int
	// SampleIndexes holds 1-based positions in [1, Population] whose
	// entities are kept for the query phase.
	SampleIndexes map[int]struct{}
}

// IsSampled reports whether the entity at 1-based position pos is sampled.
func (p PartitionSpec) IsSampled(pos int) bool {
	_, ok := p.SampleIndexes[pos]
	return ok
}
