package mnist

import "math/rand"

// Batch is one mini-batch of flattened images and labels, laid out ready
// for tensor construction.
type Batch struct {
	Images []float32 // [len * 784] row-major
	Labels []int32   // [len]
	Size   int
}

// Loader serves a dataset in mini-batches, reshuffling sample order from
// the provided rng at the start of every epoch.
type Loader struct {
	dataset   *Dataset
	batchSize int
	rng       *rand.Rand
	order     []int
	pos       int

	// KeepTail serves the trailing partial batch instead of dropping it.
	// Training leaves it off so every step sees the same batch size;
	// evaluation turns it on so no held-out sample is skipped.
	KeepTail bool
}

// NewLoader creates a loader. A nil rng disables shuffling, which keeps
// evaluation order deterministic.
func NewLoader(dataset *Dataset, batchSize int, rng *rand.Rand) *Loader {
	order := make([]int, dataset.Len())
	for i := range order {
		order[i] = i
	}
	return &Loader{
		dataset:   dataset,
		batchSize: batchSize,
		rng:       rng,
		order:     order,
	}
}

// NumBatches returns the number of batches per epoch. Without KeepTail a
// trailing partial batch is dropped so every step sees the same batch size.
func (l *Loader) NumBatches() int {
	n := l.dataset.Len() / l.batchSize
	if l.KeepTail && l.dataset.Len()%l.batchSize != 0 {
		n++
	}
	return n
}

// Reset rewinds the loader and reshuffles when an rng is present.
func (l *Loader) Reset() {
	l.pos = 0
	if l.rng != nil {
		l.rng.Shuffle(len(l.order), func(i, j int) {
			l.order[i], l.order[j] = l.order[j], l.order[i]
		})
	}
}

// Next returns the next batch, or nil at the end of the epoch.
func (l *Loader) Next() *Batch {
	remaining := l.dataset.Len() - l.pos
	size := l.batchSize
	if remaining < size {
		if !l.KeepTail || remaining == 0 {
			return nil
		}
		size = remaining
	}

	batch := &Batch{
		Images: make([]float32, size*ImageSize),
		Labels: make([]int32, size),
		Size:   size,
	}
	for i := 0; i < size; i++ {
		idx := l.order[l.pos+i]
		copy(batch.Images[i*ImageSize:(i+1)*ImageSize], l.dataset.Images[idx])
		batch.Labels[i] = l.dataset.Labels[idx]
	}
	l.pos += size
	return batch
}
