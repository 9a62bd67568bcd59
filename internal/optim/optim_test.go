package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/distill-ml/distill/internal/backend/cpu"
	"github.com/distill-ml/distill/internal/nn"
	"github.com/distill-ml/distill/internal/optim"
	"github.com/distill-ml/distill/internal/tensor"
)

// quadParam builds a single scalar parameter starting at x0 for minimizing
// f(x) = x^2, whose gradient is 2x.
func quadParam(t *testing.T, x0 float32, b *cpu.Backend) *nn.Parameter[*cpu.Backend] {
	t.Helper()
	tn, err := tensor.FromSlice([]float32{x0}, tensor.Shape{1}, b)
	require.NoError(t, err)
	return nn.NewParameter("x", tn)
}

func quadGrads(t *testing.T, param *nn.Parameter[*cpu.Backend], b *cpu.Backend) map[*tensor.RawTensor]*tensor.RawTensor {
	t.Helper()
	grad, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, b.Device())
	require.NoError(t, err)
	grad.AsFloat32()[0] = 2 * param.Tensor().Data()[0]
	return map[*tensor.RawTensor]*tensor.RawTensor{param.Tensor().Raw(): grad}
}

func TestSGD_ConvergesOnQuadratic(t *testing.T) {
	b := cpu.New()
	param := quadParam(t, 5, b)
	opt := optim.NewSGD([]*nn.Parameter[*cpu.Backend]{param}, optim.SGDConfig{LR: 0.1}, b)

	for i := 0; i < 100; i++ {
		opt.Step(quadGrads(t, param, b))
	}
	assert.InDelta(t, 0, float64(param.Tensor().Data()[0]), 1e-4)
}

func TestSGD_MomentumMovesFasterInitially(t *testing.T) {
	b := cpu.New()
	plain := quadParam(t, 5, b)
	heavy := quadParam(t, 5, b)
	optPlain := optim.NewSGD([]*nn.Parameter[*cpu.Backend]{plain}, optim.SGDConfig{LR: 0.01}, b)
	optHeavy := optim.NewSGD([]*nn.Parameter[*cpu.Backend]{heavy}, optim.SGDConfig{LR: 0.01, Momentum: 0.9}, b)

	for i := 0; i < 10; i++ {
		optPlain.Step(quadGrads(t, plain, b))
		optHeavy.Step(quadGrads(t, heavy, b))
	}
	assert.Less(t, heavy.Tensor().Data()[0], plain.Tensor().Data()[0])
}

func TestSGD_DefaultLR(t *testing.T) {
	b := cpu.New()
	opt := optim.NewSGD([]*nn.Parameter[*cpu.Backend]{}, optim.SGDConfig{}, b)
	assert.Equal(t, float32(0.01), opt.GetLR())
}

func TestSGD_SkipsParamsWithoutGradient(t *testing.T) {
	b := cpu.New()
	param := quadParam(t, 3, b)
	opt := optim.NewSGD([]*nn.Parameter[*cpu.Backend]{param}, optim.SGDConfig{LR: 0.1}, b)

	opt.Step(map[*tensor.RawTensor]*tensor.RawTensor{})
	assert.Equal(t, float32(3), param.Tensor().Data()[0])
}

func TestAdam_ConvergesOnQuadratic(t *testing.T) {
	b := cpu.New()
	param := quadParam(t, 5, b)
	opt := optim.NewAdam([]*nn.Parameter[*cpu.Backend]{param}, optim.AdamConfig{LR: 0.1}, b)

	for i := 0; i < 300; i++ {
		opt.Step(quadGrads(t, param, b))
	}
	assert.InDelta(t, 0, float64(param.Tensor().Data()[0]), 1e-2)
}

func TestAdam_FirstStepIsLRSized(t *testing.T) {
	b := cpu.New()
	param := quadParam(t, 5, b)
	opt := optim.NewAdam([]*nn.Parameter[*cpu.Backend]{param}, optim.AdamConfig{LR: 0.1}, b)

	opt.Step(quadGrads(t, param, b))

	// With bias correction the first Adam step has magnitude ~lr.
	moved := math.Abs(float64(5 - param.Tensor().Data()[0]))
	assert.InDelta(t, 0.1, moved, 1e-3)
}

func TestAdam_Defaults(t *testing.T) {
	b := cpu.New()
	opt := optim.NewAdam([]*nn.Parameter[*cpu.Backend]{}, optim.AdamConfig{}, b)
	assert.Equal(t, float32(0.001), opt.GetLR())
}

func TestZeroGrad_ClearsParameterGrads(t *testing.T) {
	b := cpu.New()
	param := quadParam(t, 1, b)
	gradT, err := tensor.FromSlice([]float32{2}, tensor.Shape{1}, b)
	require.NoError(t, err)
	param.SetGrad(gradT)

	opt := optim.NewSGD([]*nn.Parameter[*cpu.Backend]{param}, optim.SGDConfig{}, b)
	opt.ZeroGrad()
	assert.Nil(t, param.Grad())
}
