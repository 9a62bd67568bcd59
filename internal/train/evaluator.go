package train

import (
	"fmt"

	"github.com/distill-ml/distill/internal/autodiff"
	"github.com/distill-ml/distill/internal/mnist"
	"github.com/distill-ml/distill/internal/model"
	"github.com/distill-ml/distill/internal/nn"
	"github.com/distill-ml/distill/internal/tensor"
)

// Evaluator measures loss and accuracy on a held-out split. Evaluation
// never mutates the model and never records on the tape.
type Evaluator[B tensor.Backend] struct {
	backend *autodiff.Backend[B]
	loss    *nn.CrossEntropyLoss[*autodiff.Backend[B]]
}

// NewEvaluator creates an evaluator on the given backend.
func NewEvaluator[B tensor.Backend](backend *autodiff.Backend[B]) *Evaluator[B] {
	return &Evaluator[B]{backend: backend, loss: nn.NewCrossEntropyLoss(backend)}
}

// Evaluate runs the model over every batch in the loader and returns mean
// loss and overall accuracy. Recording state is restored on return.
func (e *Evaluator[B]) Evaluate(m *model.Net[*autodiff.Backend[B]], loader *mnist.Loader) (float32, float32, error) {
	if loader.NumBatches() == 0 {
		return 0, 0, fmt.Errorf("evaluate: dataset smaller than one batch")
	}

	tape := e.backend.Tape()
	wasRecording := tape.IsRecording()
	tape.StopRecording()
	defer func() {
		if wasRecording {
			tape.StartRecording()
		}
	}()

	loader.Reset()

	var totalLoss float32
	var totalCorrect, totalSamples int

	for batch := loader.Next(); batch != nil; batch = loader.Next() {
		images, labels, err := batchTensors(batch, e.backend)
		if err != nil {
			return 0, 0, err
		}

		logits := m.Forward(images)
		loss := e.loss.Forward(logits, labels)

		// Weight by batch size so a trailing partial batch does not skew
		// the per-sample mean.
		totalLoss += loss.Data()[0] * float32(batch.Size)
		acc := nn.Accuracy(logits, labels)
		totalCorrect += int(acc*float32(batch.Size) + 0.5)
		totalSamples += batch.Size
	}

	return totalLoss / float32(totalSamples), float32(totalCorrect) / float32(totalSamples), nil
}
