package ops

import (
	"fmt"

	"github.com/distill-ml/distill/internal/tensor"
)

// CrossEntropyOp is the fused softmax + cross-entropy loss.
//
// Forward: mean over the batch of -log_softmax(logits)[target].
// Backward: (softmax(logits) - onehot(target)) / batch.
//
// Targets are class indices, not one-hot, and receive no gradient.
type CrossEntropyOp struct {
	logits  *tensor.RawTensor // [batch, classes] float32
	targets *tensor.RawTensor // [batch] int32
	output  *tensor.RawTensor // scalar loss
}

func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{logits: logits, targets: targets, output: output}
}

func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor { return []*tensor.RawTensor{op.logits} }
func (op *CrossEntropyOp) Output() *tensor.RawTensor   { return op.output }

func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	shape := op.logits.Shape()
	batch, classes := shape[0], shape[1]

	grad := newGrad(shape, op.logits)
	logits := op.logits.AsFloat32()
	targets := op.targets.AsInt32()
	out := grad.AsFloat32()
	gradScale := outputGrad.AsFloat32()[0]

	for b := 0; b < batch; b++ {
		probs := softmaxRow(logits[b*classes : (b+1)*classes])
		target := int(targets[b])
		for i, p := range probs {
			g := p
			if i == target {
				g -= 1
			}
			out[b*classes+i] = gradScale * g / float32(batch)
		}
	}
	return []*tensor.RawTensor{grad}
}

// CrossEntropyForward computes the mean negative log-likelihood without
// touching the tape. The autodiff backend wraps it with a CrossEntropyOp.
func CrossEntropyForward(logits, targets *tensor.RawTensor, device tensor.Device) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross-entropy: logits must be [batch, classes], got %v", shape))
	}
	tShape := targets.Shape()
	if len(tShape) != 1 || tShape[0] != shape[0] {
		panic(fmt.Sprintf("cross-entropy: targets shape %v does not match logits %v", tShape, shape))
	}
	batch, classes := shape[0], shape[1]

	output, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, device)
	if err != nil {
		panic(err)
	}

	logitsData := logits.AsFloat32()
	targetsData := targets.AsInt32()

	var total float32
	for b := 0; b < batch; b++ {
		logProbs := logSoftmaxRow(logitsData[b*classes : (b+1)*classes])
		target := int(targetsData[b])
		if target < 0 || target >= classes {
			panic(fmt.Sprintf("cross-entropy: target %d out of range [0,%d)", target, classes))
		}
		total -= logProbs[target]
	}
	output.AsFloat32()[0] = total / float32(batch)
	return output
}
