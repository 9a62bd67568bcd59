package mnist

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

const (
	// ImageSize is the flattened pixel count of one digit.
	ImageSize = 28 * 28
	// NumClasses is the number of digit classes.
	NumClasses = 10
)

// Dataset holds images normalized to [0, 1] and their labels.
type Dataset struct {
	Images [][]float32 // [n][784]
	Labels []int32     // [n], values 0..9
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Images) }

// Load reads a train or test split from dir. Standard file names are tried
// with and without .gz: train-images-idx3-ubyte, train-labels-idx1-ubyte,
// t10k-images-idx3-ubyte, t10k-labels-idx1-ubyte.
func Load(dir, split string) (*Dataset, error) {
	var imagesName, labelsName string
	switch split {
	case "train":
		imagesName, labelsName = "train-images-idx3-ubyte", "train-labels-idx1-ubyte"
	case "test":
		imagesName, labelsName = "t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte"
	default:
		return nil, fmt.Errorf("mnist: unknown split %q (want train or test)", split)
	}

	imagesPath, err := findFile(dir, imagesName)
	if err != nil {
		return nil, err
	}
	labelsPath, err := findFile(dir, labelsName)
	if err != nil {
		return nil, err
	}

	rawImages, rows, cols, err := readIDXImages(imagesPath)
	if err != nil {
		return nil, err
	}
	if rows*cols != ImageSize {
		return nil, fmt.Errorf("mnist: unexpected image size %dx%d", rows, cols)
	}
	rawLabels, err := readIDXLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	if len(rawImages) != len(rawLabels) {
		return nil, fmt.Errorf("mnist: %d images but %d labels", len(rawImages), len(rawLabels))
	}

	ds := &Dataset{
		Images: make([][]float32, len(rawImages)),
		Labels: make([]int32, len(rawLabels)),
	}
	for i, img := range rawImages {
		pixels := make([]float32, ImageSize)
		for j, p := range img {
			pixels[j] = float32(p) / 255.0
		}
		ds.Images[i] = pixels
		label := rawLabels[i]
		if label >= NumClasses {
			return nil, fmt.Errorf("mnist: label %d out of range at sample %d", label, i)
		}
		ds.Labels[i] = int32(label)
	}
	return ds, nil
}

func findFile(dir, name string) (string, error) {
	for _, candidate := range []string{name, name + ".gz"} {
		path := filepath.Join(dir, candidate)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("mnist: %s not found in %s", name, dir)
}

// Subset returns a dataset view over the first n samples. It shares the
// underlying image slices.
func (d *Dataset) Subset(n int) *Dataset {
	if n <= 0 || n > d.Len() {
		n = d.Len()
	}
	return &Dataset{Images: d.Images[:n], Labels: d.Labels[:n]}
}

// Synthetic generates a random dataset with the MNIST shape, for tests and
// smoke runs without the real files. Pixels are uniform in [0, 1) and
// labels uniform in 0..9.
func Synthetic(n int, rng *rand.Rand) *Dataset {
	ds := &Dataset{
		Images: make([][]float32, n),
		Labels: make([]int32, n),
	}
	for i := 0; i < n; i++ {
		pixels := make([]float32, ImageSize)
		for j := range pixels {
			pixels[j] = rng.Float32()
		}
		ds.Images[i] = pixels
		ds.Labels[i] = int32(rng.Intn(NumClasses))
	}
	return ds
}
