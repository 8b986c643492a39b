package dataset

import (
	"math/rand/v2"
	"time"

	"github.com/basekick-labs/tablebench/pkg/models"
	"github.com/google/uuid"
)

const (
	addressLength  = 100
	addressCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var firstNames = []string{
	"Alessandro", "Andrea", "Anna", "Antonio", "Beatrice", "Chiara", "Davide",
	"Elena", "Emma", "Federico", "Francesca", "Gabriele", "Giorgia", "Giulia",
	"Giuseppe", "Leonardo", "Lorenzo", "Luca", "Marco", "Maria", "Martina",
	"Matteo", "Paolo", "Riccardo", "Sara", "Sofia", "Stefano", "Tommaso",
	"Valentina", "Vittoria",
}

var lastNames = []string{
	"Barbieri", "Bianchi", "Bruno", "Colombo", "Conti", "Costa", "De Luca",
	"Esposito", "Ferrara", "Ferrari", "Fontana", "Galli", "Gallo", "Giordano",
	"Greco", "Leone", "Lombardi", "Mancini", "Marino", "Martini", "Moretti",
	"Rizzo", "Romano", "Ricci", "Rinaldi", "Rossi", "Russo", "Santoro",
	"Marchetti", "Villa",
}

// EntityFactory builds the payload for one generated entity.
type EntityFactory interface {
	NewEntity(partitionKey string) models.Entity
}

// PersonFactory generates random people. It is not safe for concurrent use;
// each partition worker gets its own.
type PersonFactory struct {
	rng *rand.Rand
}

// NewPersonFactory returns a factory seeded with seed (0 picks a time seed).
func NewPersonFactory(seed uint64) *PersonFactory {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &PersonFactory{rng: rand.New(rand.NewPCG(seed, seed>>1|1))}
}

// NewEntity returns a person with a fresh row key.
func (f *PersonFactory) NewEntity(partitionKey string) models.Entity {
	return models.Entity{
		PartitionKey: partitionKey,
		RowKey:       uuid.NewString(),
		FirstName:    firstNames[f.rng.IntN(len(firstNames))],
		LastName:     lastNames[f.rng.IntN(len(lastNames))],
		Address:      f.randomString(addressLength),
		Age:          int32(f.rng.IntN(99) + 1),
		TaxNumber:    uuid.NewString(),
	}
}

func (f *PersonFactory) randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = addressCharset[f.rng.IntN(len(addressCharset))]
	}
	return string(b)
}
