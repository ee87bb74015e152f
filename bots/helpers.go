package bots

import (
	"math/rand"
	"sync/atomic"
)

// PriceReference is the shared quoting price, moved by executions the swarm sees.
type PriceReference struct {
	price atomic.Int64
}

// NewPriceReference starts the reference at start.
func NewPriceReference(start int64) *PriceReference {
	r := &PriceReference{}
	r.price.Store(start)
	return r
}

func (r *PriceReference) Load() int64 { return r.price.Load() }

func (r *PriceReference) Store(price int64) {
	if price > 0 {
		r.price.Store(price)
	}
}

// quote offsets ref by up to rangeTicks away from the touch and never returns a
// non-positive price.
func quote(rng *rand.Rand, ref, rangeTicks int64, below bool) int64 {
	delta := rng.Int63n(rangeTicks + 1)
	price := ref + delta
	if below {
		price = ref - delta
	}
	if price <= 0 {
		return 1
	}
	return price
}

func quantity(rng *rand.Rand, max int64) int64 {
	if max <= 1 {
		return 1
	}
	return rng.Int63n(max) + 1
}
