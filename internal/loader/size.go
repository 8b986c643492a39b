package loader

import "github.com/basekick-labs/tablebench/pkg/models"

// SizeEstimator estimates the stored size of an entity in bytes.
type SizeEstimator interface {
	EntitySize(e models.Entity) int
}

// AzureTableSize applies the Azure Table Storage entity size formula:
// 4 bytes plus twice the length of both keys, plus for every property 8
// bytes, twice the length of its name and the size of its value (int32 is 4).
type AzureTableSize struct{}

func (AzureTableSize) EntitySize(e models.Entity) int {
	size := 4 + (len(e.PartitionKey)+len(e.RowKey))*2
	size += stringProperty("FirstName", e.FirstName)
	size += stringProperty("LastName", e.LastName)
	size += stringProperty("Address", e.Address)
	size += stringProperty("TaxNumber", e.TaxNumber)
	size += 8 + len("Age")*2 + 4
	return size
}

// stringProperty sizes a string property as UTF-16 name and value plus 8
// bytes of overhead. Values are ASCII so byte length equals UTF-16 length.
func stringProperty(name, value string) int {
	return 8 + len(name)*2 + len(value)*2
}

// averageSize is the mean estimated size of entities, 0 for none.
func averageSize(est SizeEstimator, entities []models.Entity) float64 {
	if len(entities) == 0 {
		return 0
	}
	var total int64
	for _, e := range entities {
		total += int64(est.EntitySize(e))
	}
	return float64(total) / float64(len(entities))
}
