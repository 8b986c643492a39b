package loader

// Summary aggregates the results of a load phase.
type Summary struct {
	Partitions      int
	TotalPopulation int64
	TotalBatches    int
	SampleSize      int
	// AverageEntitySizeBytes is the mean of the per-partition averages over
	// partitions with at least one sampled entity.
	AverageEntitySizeBytes float64
}

// AverageEntitySizeKB reports the average size in kilobytes (1000 bytes).
func (s Summary) AverageEntitySizeKB() float64 {
	return s.AverageEntitySizeBytes / 1000
}

// Summarize aggregates results.
func Summarize(results []PartitionResult) Summary {
	s := Summary{Partitions: len(results)}

	var sizeSum float64
	sized := 0
	for _, r := range results {
		s.TotalPopulation += int64(r.Population)
		s.TotalBatches += r.Batches
		s.SampleSize += len(r.Sampled)
		if len(r.Sampled) > 0 {
			sizeSum += r.AverageSampledEntitySizeBytes
			sized++
		}
	}
	if sized > 0 {
		s.AverageEntitySizeBytes = sizeSum / float64(sized)
	}
	return s
}
