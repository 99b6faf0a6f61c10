package engine

// Dedup caps: when the set exceeds dedupMax entries, only the dedupKeep most
// recently inserted survive. Insertion order is tracked explicitly so trimming
// drops oldest-first.
const (
	dedupMax  = 3000
	dedupKeep = 2000
)

// sigDedup is a bounded first-observation-wins signature set. It is mutated
// only by the cluster dispatcher, so it carries no lock of its own.
type sigDedup struct {
	seen  map[string]struct{}
	order []string
}

func newSigDedup() *sigDedup {
	return &sigDedup{seen: make(map[string]struct{})}
}

// Observe records a signature. It returns true on the first occurrence and
// false on every later one.
func (d *sigDedup) Observe(sig string) bool {
	if _, ok := d.seen[sig]; ok {
		return false
	}
	d.seen[sig] = struct{}{}
	d.order = append(d.order, sig)
	if len(d.order) > dedupMax {
		evict := d.order[:len(d.order)-dedupKeep]
		for _, old := range evict {
			delete(d.seen, old)
		}
		d.order = append([]string(nil), d.order[len(d.order)-dedupKeep:]...)
	}
	return true
}

func (d *sigDedup) Len() int {
	return len(d.seen)
}

func (d *sigDedup) Contains(sig string) bool {
	_, ok := d.seen[sig]
	return ok
}

// Reset clears the set, used when a cluster connection tears down.
func (d *sigDedup) Reset() {
	d.seen = make(map[string]struct{})
	d.order = nil
}
