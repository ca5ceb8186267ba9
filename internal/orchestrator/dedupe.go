package orchestrator

import (
	"sync"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/store"
)

// Detector flags captures that are perceptually close to the last distinct
// one. The reference frame only moves when a capture is not a duplicate.
type Detector struct {
	mu          sync.Mutex
	maxDistance int
	last        uint64
	has         bool
}

// NewDetector creates a detector; maxDistance < 0 disables it.
func NewDetector(maxDistance int) *Detector {
	return &Detector{maxDistance: maxDistance}
}

// Check compares hash against the reference frame. A zero hash means the
// hash could not be computed and is never a duplicate.
func (d *Detector) Check(hash uint64) (dup bool, distance int) {
	if d.maxDistance < 0 || hash == 0 {
		return false, -1
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.has {
		d.last, d.has = hash, true
		return false, -1
	}

	distance = store.Distance(d.last, hash)
	if distance <= d.maxDistance {
		return true, distance
	}
	d.last = hash
	return false, distance
}

// Reset forgets the reference frame.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.has = false
	d.last = 0
	d.mu.Unlock()
}
