// Package model defines the convolutional digit classifier used for both
// the teacher and the student networks. The two differ only in width.
package model

import (
	"fmt"
	"math/rand"

	"github.com/distill-ml/distill/internal/nn"
	"github.com/distill-ml/distill/internal/tensor"
)

// Config sets the width of the network.
type Config struct {
	Conv1Channels int // first conv block output channels
	Conv2Channels int // second conv block output channels
	Hidden        int // fully connected hidden units
}

// TeacherConfig is the wide network distillation transfers knowledge from.
func TeacherConfig() Config {
	return Config{Conv1Channels: 32, Conv2Channels: 64, Hidden: 512}
}

// StudentConfig is the compact network trained directly or by distillation.
func StudentConfig() Config {
	return Config{Conv1Channels: 8, Conv2Channels: 16, Hidden: 64}
}

// Net is a LeNet-style CNN for 28x28 grayscale digits:
//
//	Input [N, 1, 28, 28]
//	Conv 5x5 -> ReLU -> MaxPool 2x2   [N, c1, 12, 12]
//	Conv 5x5 -> ReLU -> MaxPool 2x2   [N, c2, 4, 4]
//	Flatten -> Linear -> ReLU -> Linear [N, 10]
//
// Forward returns raw logits; losses apply softmax themselves.
type Net[B tensor.Backend] struct {
	config Config

	conv1 *nn.Conv2D[B]
	conv2 *nn.Conv2D[B]
	pool  *nn.MaxPool2D[B]
	relu  *nn.ReLU[B]
	fc1   *nn.Linear[B]
	fc2   *nn.Linear[B]
}

// New creates a network with Xavier-initialized weights drawn from rng.
func New[B tensor.Backend](config Config, rng *rand.Rand, backend B) *Net[B] {
	if config.Conv1Channels <= 0 || config.Conv2Channels <= 0 || config.Hidden <= 0 {
		panic(fmt.Sprintf("model: invalid config %+v", config))
	}

	flat := config.Conv2Channels * 4 * 4
	return &Net[B]{
		config: config,
		conv1:  nn.NewConv2D("conv1", 1, config.Conv1Channels, 5, 1, 0, rng, backend),
		conv2:  nn.NewConv2D("conv2", config.Conv1Channels, config.Conv2Channels, 5, 1, 0, rng, backend),
		pool:   nn.NewMaxPool2D(2, 2, backend),
		relu:   nn.NewReLU(backend),
		fc1:    nn.NewLinear("fc1", flat, config.Hidden, rng, backend),
		fc2:    nn.NewLinear("fc2", config.Hidden, 10, rng, backend),
	}
}

// Config returns the width configuration.
func (n *Net[B]) Config() Config { return n.config }

// Forward maps a batch of images to class logits. Accepts either flat
// [N, 784] or image [N, 1, 28, 28] input.
func (n *Net[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	switch len(shape) {
	case 2:
		input = input.Reshape(shape[0], 1, 28, 28)
	case 4:
	default:
		panic(fmt.Sprintf("model: expected [N, 784] or [N, 1, 28, 28] input, got %v", shape))
	}

	x := n.conv1.Forward(input) // [N, c1, 24, 24]
	x = n.relu.Forward(x)
	x = n.pool.Forward(x) // [N, c1, 12, 12]

	x = n.conv2.Forward(x) // [N, c2, 8, 8]
	x = n.relu.Forward(x)
	x = n.pool.Forward(x) // [N, c2, 4, 4]

	batch := x.Shape()[0]
	x = x.Reshape(batch, n.config.Conv2Channels*4*4)

	x = n.fc1.Forward(x)
	x = n.relu.Forward(x)
	return n.fc2.Forward(x) // [N, 10]
}

// Parameters returns all trainable parameters in a stable order.
func (n *Net[B]) Parameters() []*nn.Parameter[B] {
	params := make([]*nn.Parameter[B], 0, 8)
	params = append(params, n.conv1.Parameters()...)
	params = append(params, n.conv2.Parameters()...)
	params = append(params, n.fc1.Parameters()...)
	params = append(params, n.fc2.Parameters()...)
	return params
}

// NumParameters returns the total trainable element count.
func (n *Net[B]) NumParameters() int {
	total := 0
	for _, p := range n.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// StateDict snapshots every parameter into a name-keyed map of copied
// float32 slices, suitable for checkpointing or equality checks.
func (n *Net[B]) StateDict() map[string][]float32 {
	state := make(map[string][]float32, 8)
	for _, p := range n.Parameters() {
		data := p.Tensor().Data()
		state[p.Name()] = append([]float32(nil), data...)
	}
	return state
}

// LoadStateDict copies values back into parameters by name. Every
// parameter must be present with matching length.
func (n *Net[B]) LoadStateDict(state map[string][]float32) error {
	for _, p := range n.Parameters() {
		values, ok := state[p.Name()]
		if !ok {
			return fmt.Errorf("model: missing parameter %q in state", p.Name())
		}
		data := p.Tensor().Data()
		if len(values) != len(data) {
			return fmt.Errorf("model: parameter %q has %d elements, state has %d", p.Name(), len(data), len(values))
		}
		copy(data, values)
	}
	return nil
}
