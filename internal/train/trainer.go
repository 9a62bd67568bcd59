// Package train drives supervised training, knowledge distillation and
// evaluation of the digit classifier. One parametrized loop serves both
// training modes; the per-step loss is the only thing that differs.
package train

import (
	"fmt"
	"io"

	"github.com/distill-ml/distill/internal/autodiff"
	"github.com/distill-ml/distill/internal/mnist"
	"github.com/distill-ml/distill/internal/model"
	"github.com/distill-ml/distill/internal/nn"
	"github.com/distill-ml/distill/internal/optim"
	"github.com/distill-ml/distill/internal/tensor"
)

// Strategy computes the per-step loss from the current batch. The trainer
// has already run the student forward pass; strategies that need more (a
// teacher forward, for example) receive the input images as well.
type Strategy[B tensor.Backend] interface {
	// StepLoss returns the scalar loss to backpropagate for this batch.
	StepLoss(
		images *tensor.Tensor[float32, *autodiff.Backend[B]],
		logits *tensor.Tensor[float32, *autodiff.Backend[B]],
		labels *tensor.Tensor[int32, *autodiff.Backend[B]],
	) *tensor.Tensor[float32, *autodiff.Backend[B]]
}

// Trainer runs epochs of mini-batch gradient descent over a model.
type Trainer[B tensor.Backend] struct {
	model     *model.Net[*autodiff.Backend[B]]
	optimizer optim.Optimizer
	backend   *autodiff.Backend[B]

	// Progress receives per-batch and per-epoch output. Nil silences it.
	Progress io.Writer

	// Validation, when set, is evaluated after every epoch and its
	// accuracy goes into the per-epoch report instead of the
	// training-batch accuracy.
	Validation *mnist.Loader
}

// NewTrainer wires a model to an optimizer over an autodiff backend.
func NewTrainer[B tensor.Backend](m *model.Net[*autodiff.Backend[B]], opt optim.Optimizer, backend *autodiff.Backend[B]) *Trainer[B] {
	return &Trainer[B]{model: m, optimizer: opt, backend: backend}
}

// Train runs the given number of epochs, drawing batches from the loader
// and computing the step loss through the strategy. Returns the per-epoch
// history: mean training loss, paired with held-out accuracy when a
// Validation loader is set and training-batch accuracy otherwise.
func (t *Trainer[B]) Train(loader *mnist.Loader, epochs int, strategy Strategy[B]) (*History, error) {
	if epochs <= 0 {
		return nil, fmt.Errorf("train: epochs must be > 0, got %d", epochs)
	}
	if loader.NumBatches() == 0 {
		return nil, fmt.Errorf("train: dataset smaller than one batch")
	}

	tape := t.backend.Tape()
	tape.StartRecording()
	defer tape.StopRecording()
	defer tape.Clear()

	evaluator := NewEvaluator(t.backend)
	history := &History{}
	for epoch := 1; epoch <= epochs; epoch++ {
		loss, acc, err := t.runEpoch(loader, epoch, epochs, strategy)
		if err != nil {
			return nil, err
		}
		if t.Validation != nil {
			_, acc, err = evaluator.Evaluate(t.model, t.Validation)
			if err != nil {
				return nil, fmt.Errorf("train: validating epoch %d: %w", epoch, err)
			}
		}
		history.Append(epoch, loss, acc)
		t.printf("Loss:%.2f\tAccuracy:%.2f\n", loss, acc)
	}
	return history, nil
}

func (t *Trainer[B]) runEpoch(loader *mnist.Loader, epoch, epochs int, strategy Strategy[B]) (float32, float32, error) {
	loader.Reset()
	numBatches := loader.NumBatches()

	var totalLoss float32
	var totalCorrect, totalSamples int

	step := 0
	for batch := loader.Next(); batch != nil; batch = loader.Next() {
		step++
		t.printf("\rEpoch %d/%d [batch %d/%d]", epoch, epochs, step, numBatches)

		images, labels, err := batchTensors(batch, t.backend)
		if err != nil {
			return 0, 0, err
		}

		t.optimizer.ZeroGrad()
		t.backend.Tape().Clear()

		logits := t.model.Forward(images)
		loss := strategy.StepLoss(images, logits, labels)

		grads := t.backend.Tape().Backward(onesLike(loss), t.backend)
		t.optimizer.Step(grads)

		totalLoss += loss.Data()[0]
		acc := nn.Accuracy(logits, labels)
		totalCorrect += int(acc*float32(batch.Size) + 0.5)
		totalSamples += batch.Size
	}
	t.printf("\r")

	return totalLoss / float32(numBatches), float32(totalCorrect) / float32(totalSamples), nil
}

func (t *Trainer[B]) printf(format string, args ...any) {
	if t.Progress != nil {
		fmt.Fprintf(t.Progress, format, args...)
	}
}

// batchTensors copies a mini-batch into backend tensors.
func batchTensors[B tensor.Backend](batch *mnist.Batch, backend *autodiff.Backend[B]) (
	*tensor.Tensor[float32, *autodiff.Backend[B]],
	*tensor.Tensor[int32, *autodiff.Backend[B]],
	error,
) {
	images, err := tensor.FromSlice(batch.Images, tensor.Shape{batch.Size, mnist.ImageSize}, backend)
	if err != nil {
		return nil, nil, fmt.Errorf("train: building image tensor: %w", err)
	}
	labels, err := tensor.FromSlice(batch.Labels, tensor.Shape{batch.Size}, backend)
	if err != nil {
		return nil, nil, fmt.Errorf("train: building label tensor: %w", err)
	}
	return images, labels, nil
}

// onesLike builds the seed gradient for a scalar loss.
func onesLike[B tensor.Backend](loss *tensor.Tensor[float32, B]) *tensor.RawTensor {
	grad, err := tensor.NewRaw(loss.Shape(), tensor.Float32, loss.Raw().Device())
	if err != nil {
		panic(err)
	}
	grad.AsFloat32()[0] = 1
	return grad
}
