package nn

import (
	"math"

	"github.com/distill-ml/distill/internal/tensor"
)

// CrossEntropyLoss computes mean softmax cross-entropy against class index
// targets. With an autodiff-aware backend the fused op lands on the tape;
// otherwise the loss is computed directly with log-sum-exp.
type CrossEntropyLoss[B tensor.Backend] struct {
	backend B
}

// NewCrossEntropyLoss creates the loss function.
func NewCrossEntropyLoss[B tensor.Backend](backend B) *CrossEntropyLoss[B] {
	return &CrossEntropyLoss[B]{backend: backend}
}

// Forward computes the scalar mean loss for [batch, classes] logits and
// [batch] int32 targets.
func (c *CrossEntropyLoss[B]) Forward(
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[int32, B],
) *tensor.Tensor[float32, B] {
	type crossEntropyBackend interface {
		CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
	}
	if ad, ok := any(c.backend).(crossEntropyBackend); ok {
		return tensor.New[float32, B](ad.CrossEntropy(logits.Raw(), targets.Raw()), c.backend)
	}

	shape := logits.Shape()
	if len(shape) != 2 {
		panic("cross-entropy: logits must be [batch, classes]")
	}
	batch, classes := shape[0], shape[1]
	logitsData := logits.Data()
	targetsData := targets.Data()

	var total float32
	for b := 0; b < batch; b++ {
		row := logitsData[b*classes : (b+1)*classes]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sumExp float32
		for _, v := range row {
			sumExp += float32(math.Exp(float64(v - maxVal)))
		}
		logSumExp := maxVal + float32(math.Log(float64(sumExp)))
		total += logSumExp - row[targetsData[b]]
	}

	loss := tensor.Zeros[float32](tensor.Shape{1}, c.backend)
	loss.Data()[0] = total / float32(batch)
	return loss
}

// Accuracy returns the fraction of rows whose argmax matches the target.
func Accuracy[B tensor.Backend](logits *tensor.Tensor[float32, B], targets *tensor.Tensor[int32, B]) float32 {
	shape := logits.Shape()
	batch, classes := shape[0], shape[1]
	logitsData := logits.Data()
	targetsData := targets.Data()

	correct := 0
	for b := 0; b < batch; b++ {
		row := logitsData[b*classes : (b+1)*classes]
		best := 0
		for i, v := range row {
			if v > row[best] {
				best = i
			}
		}
		if int32(best) == targetsData[b] {
			correct++
		}
	}
	return float32(correct) / float32(batch)
}
