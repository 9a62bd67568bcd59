// Package nn provides neural network building blocks: layers, activations,
// initialization and loss functions. Design follows PyTorch's nn.Module
// adapted for Go generics.
package nn

import "github.com/distill-ml/distill/internal/tensor"

// Module is the interface every network component implements.
type Module[B tensor.Backend] interface {
	// Forward computes the module output for the given input.
	Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B]

	// Parameters returns all trainable parameters, including those of
	// nested modules. Parameter-free modules return an empty slice.
	Parameters() []*Parameter[B]
}
