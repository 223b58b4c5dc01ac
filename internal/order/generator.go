package order

import (
	"math/rand"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	minPrice     = 30000.0
	priceSpan    = 40000.0
	minQuantity  = 0.01
	quantitySpan = 2.0
	limitShare   = 0.8

	// ClientBuckets bounds the number of distinct synthetic clients.
	ClientBuckets = 100
)

// Generator produces randomized orders. The random source is injected so
// runs can be reproduced from a seed; access to it is serialized, so a
// Generator is safe for concurrent use.
type Generator struct {
	mu           sync.Mutex
	rnd          *rand.Rand
	instrument   string
	clientPrefix string
}

// GeneratorOption customizes a Generator.
type GeneratorOption func(*Generator)

// WithInstrument sets the instrument stamped on every order.
func WithInstrument(instrument string) GeneratorOption {
	return func(g *Generator) {
		if instrument != "" {
			g.instrument = instrument
		}
	}
}

// WithClientPrefix sets the prefix of the synthetic client id.
func WithClientPrefix(prefix string) GeneratorOption {
	return func(g *Generator) {
		g.clientPrefix = prefix
	}
}

// NewGenerator returns a Generator drawing from rnd. A nil rnd falls back
// to a source seeded with 1.
func NewGenerator(rnd *rand.Rand, opts ...GeneratorOption) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(1))
	}
	g := &Generator{
		rnd:          rnd,
		instrument:   DefaultInstrument,
		clientPrefix: "client-",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewSeededGenerator is shorthand for NewGenerator(rand.New(rand.NewSource(seed)), opts...).
func NewSeededGenerator(seed int64, opts ...GeneratorOption) *Generator {
	return NewGenerator(rand.New(rand.NewSource(seed)), opts...)
}

// Generate returns the order for position index. The client id depends
// only on index mod ClientBuckets; every other field is drawn from the
// random source.
func (g *Generator) Generate(index int) Order {
	g.mu.Lock()
	sideRoll := g.rnd.Float64()
	typeRoll := g.rnd.Float64()
	priceRoll := g.rnd.Float64()
	qtyRoll := g.rnd.Float64()
	g.mu.Unlock()

	side := SideSell
	if sideRoll < 0.5 {
		side = SideBuy
	}
	typ := TypeMarket
	if typeRoll < limitShare {
		typ = TypeLimit
	}

	bucket := index % ClientBuckets
	if bucket < 0 {
		bucket += ClientBuckets
	}

	return Order{
		ClientID:   g.clientPrefix + strconv.Itoa(bucket),
		Instrument: g.instrument,
		Side:       side,
		Type:       typ,
		Price:      decimal.NewFromFloat(minPrice + priceRoll*priceSpan).Round(2),
		Quantity:   decimal.NewFromFloat(minQuantity + qtyRoll*quantitySpan).Round(3),
	}
}
