package metric

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/lightstep/varopt"
)

// VarOptReservoir is a weighted reservoir producing a variance optimal
// sample. Plain Update gives every value weight 1, which makes it behave
// like a uniform reservoir; UpdateWeighted lets the caller favour values.
type VarOptReservoir struct {
	mu    sync.Mutex
	size  int
	rnd   *rand.Rand
	count int64
	vo    *varopt.Varopt
}

// NewVarOptReservoir returns a weighted reservoir holding at most size values.
func NewVarOptReservoir(size int, opts ...MOption) *VarOptReservoir {
	if size <= 0 {
		size = DefaultSampleSize
	}
	cfg := newMConfig(nil, opts...)
	rnd := cfg.rand()
	return &VarOptReservoir{size: size, rnd: rnd, vo: varopt.New(size, rnd)}
}

func (r *VarOptReservoir) Update(v int64) {
	// weight 1 is always valid
	_ = r.UpdateWeighted(v, 1)
}

// UpdateWeighted offers v with the given weight, which must be positive
// and finite.
func (r *VarOptReservoir) UpdateWeighted(v int64, weight float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.vo.Add(v, weight); err != nil {
		return fmt.Errorf("varopt reservoir: %w", err)
	}
	r.count++
	return nil
}

func (r *VarOptReservoir) Count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *VarOptReservoir) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.vo.Size()
}

func (r *VarOptReservoir) Snapshot() Snapshot {
	r.mu.Lock()
	values := make([]int64, r.vo.Size())
	for i := range values {
		s, _ := r.vo.Get(i)
		values[i] = s.(int64)
	}
	r.mu.Unlock()
	return snapshotOf(values)
}

func (r *VarOptReservoir) Clear() {
	r.mu.Lock()
	r.count = 0
	r.vo = varopt.New(r.size, r.rnd)
	r.mu.Unlock()
}
