package models

// Entity is one generated table row. PartitionKey and RowKey together form the
// store's primary key; the remaining fields are opaque payload.
type Entity struct {
	PartitionKey string `json:"PartitionKey" msgpack:"pk"`
	RowKey       string `json:"RowKey" msgpack:"rk"`
	FirstName    string `json:"FirstName" msgpack:"fn"`
	LastName     string `json:"LastName" msgpack:"ln"`
	Address      string `json:"Address" msgpack:"addr"`
	Age          int32  `json:"Age" msgpack:"age"`
	TaxNumber    string `json:"TaxNumber" msgpack:"tax"`
}

// Key returns the composite lookup key, mostly useful for logging and maps.
func (e Entity) Key() string {
	return e.PartitionKey + "/" + e.RowKey
}
