package nn

import "github.com/distill-ml/distill/internal/tensor"

// ReLU applies the rectifier element-wise.
type ReLU[B tensor.Backend] struct {
	backend B
}

// NewReLU creates a ReLU activation.
func NewReLU[B tensor.Backend](backend B) *ReLU[B] {
	return &ReLU[B]{backend: backend}
}

// Forward computes max(0, x).
func (r *ReLU[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	raw := r.backend.ReLU(input.Raw())
	return tensor.New[float32, B](raw, r.backend)
}

// Parameters returns an empty slice.
func (r *ReLU[B]) Parameters() []*Parameter[B] { return nil }
