package loader

import (
	"errors"
	"fmt"
)

// ErrPartitionFailed wraps every failure of a partition upload.
var ErrPartitionFailed = errors.New("partition upload failed")

// PartitionError reports which partition and batch failed.
type PartitionError struct {
	Partition string
	// Batch is the 1-based number of the failing batch, 0 when the failure
	// happened before the first insert.
	Batch int
	Err   error
}

func (e *PartitionError) Error() string {
	return fmt.Sprintf("partition %q failed at batch %d: %v", e.Partition, e.Batch, e.Err)
}

func (e *PartitionError) Unwrap() []error {
	return []error{ErrPartitionFailed, e.Err}
}
