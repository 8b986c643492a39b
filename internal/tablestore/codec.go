package tablestore

import (
	"fmt"

	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/vmihailenco/msgpack/v5"
)

// encodeEntity is the value format for stores that keep opaque blobs
// (object storage and Redis).
func encodeEntity(e models.Entity) ([]byte, error) {
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entity %s: %w", e.Key(), err)
	}
	return data, nil
}

func decodeEntity(data []byte) (models.Entity, error) {
	var e models.Entity
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return models.Entity{}, fmt.Errorf("failed to decode entity: %w", err)
	}
	return e, nil
}
