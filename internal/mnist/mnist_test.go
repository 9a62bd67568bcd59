package mnist

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func writeIDXImages(t *testing.T, path string, images [][]byte, rows, cols int, compress bool) {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range []uint32{imageMagic, uint32(len(images)), uint32(rows), uint32(cols)} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, img := range images {
		buf.Write(img)
	}
	writeIDXFile(t, path, buf.Bytes(), compress)
}

func writeIDXLabels(t *testing.T, path string, labels []byte, compress bool) {
	t.Helper()
	var buf bytes.Buffer
	for _, v := range []uint32{labelMagic, uint32(len(labels))} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	buf.Write(labels)
	writeIDXFile(t, path, buf.Bytes(), compress)
}

func writeIDXFile(t *testing.T, path string, data []byte, compress bool) {
	t.Helper()
	if compress {
		var gzBuf bytes.Buffer
		gw := gzip.NewWriter(&gzBuf)
		if _, err := gw.Write(data); err != nil {
			t.Fatal(err)
		}
		if err := gw.Close(); err != nil {
			t.Fatal(err)
		}
		data = gzBuf.Bytes()
		path += ".gz"
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeSplit(t *testing.T, dir string, n int, compress bool) {
	t.Helper()
	images := make([][]byte, n)
	labels := make([]byte, n)
	for i := range images {
		img := make([]byte, ImageSize)
		img[0] = byte(255)
		img[1] = byte(i % 256)
		images[i] = img
		labels[i] = byte(i % NumClasses)
	}
	writeIDXImages(t, filepath.Join(dir, "train-images-idx3-ubyte"), images, 28, 28, compress)
	writeIDXLabels(t, filepath.Join(dir, "train-labels-idx1-ubyte"), labels, compress)
}

func TestLoad_PlainFiles(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, 5, false)

	ds, err := Load(dir, "train")
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 5 {
		t.Fatalf("Len = %d, want 5", ds.Len())
	}
	if ds.Images[0][0] != 1.0 {
		t.Errorf("pixel 255 should normalize to 1.0, got %f", ds.Images[0][0])
	}
	if ds.Images[3][1] != 3.0/255.0 {
		t.Errorf("pixel normalization off: %f", ds.Images[3][1])
	}
	if ds.Labels[4] != 4 {
		t.Errorf("label[4] = %d, want 4", ds.Labels[4])
	}
}

func TestLoad_GzipFallback(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, 3, true)

	ds, err := Load(dir, "train")
	if err != nil {
		t.Fatal(err)
	}
	if ds.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ds.Len())
	}
}

func TestLoad_MissingFiles(t *testing.T) {
	if _, err := Load(t.TempDir(), "train"); err == nil {
		t.Error("expected error for empty directory")
	}
}

func TestLoad_UnknownSplit(t *testing.T) {
	if _, err := Load(t.TempDir(), "validation"); err == nil {
		t.Error("expected error for unknown split")
	}
}

func TestLoad_BadMagic(t *testing.T) {
	dir := t.TempDir()
	writeSplit(t, dir, 2, false)

	// Corrupt the images magic number.
	path := filepath.Join(dir, "train-images-idx3-ubyte")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[3] = 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(dir, "train"); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestSubset(t *testing.T) {
	ds := Synthetic(10, rand.New(rand.NewSource(1)))

	sub := ds.Subset(4)
	if sub.Len() != 4 {
		t.Errorf("Subset(4).Len = %d", sub.Len())
	}
	if all := ds.Subset(0); all.Len() != 10 {
		t.Errorf("Subset(0) should keep everything, got %d", all.Len())
	}
	if over := ds.Subset(100); over.Len() != 10 {
		t.Errorf("Subset beyond size should clamp, got %d", over.Len())
	}
}

func TestSynthetic_ShapeAndRanges(t *testing.T) {
	ds := Synthetic(20, rand.New(rand.NewSource(7)))
	if ds.Len() != 20 {
		t.Fatalf("Len = %d", ds.Len())
	}
	for i, img := range ds.Images {
		if len(img) != ImageSize {
			t.Fatalf("image %d has %d pixels", i, len(img))
		}
		for _, p := range img {
			if p < 0 || p >= 1 {
				t.Fatalf("pixel out of [0,1): %f", p)
			}
		}
		if ds.Labels[i] < 0 || ds.Labels[i] >= NumClasses {
			t.Fatalf("label out of range: %d", ds.Labels[i])
		}
	}
}

func TestLoader_DropsPartialBatch(t *testing.T) {
	ds := Synthetic(10, rand.New(rand.NewSource(1)))
	loader := NewLoader(ds, 4, nil)

	if loader.NumBatches() != 2 {
		t.Fatalf("NumBatches = %d, want 2", loader.NumBatches())
	}

	loader.Reset()
	var n int
	for batch := loader.Next(); batch != nil; batch = loader.Next() {
		if batch.Size != 4 {
			t.Fatalf("batch size = %d", batch.Size)
		}
		n++
	}
	if n != 2 {
		t.Errorf("served %d batches, want 2", n)
	}
}

func TestLoader_KeepTailServesPartialBatch(t *testing.T) {
	ds := Synthetic(10, rand.New(rand.NewSource(1)))
	loader := NewLoader(ds, 4, nil)
	loader.KeepTail = true

	if loader.NumBatches() != 3 {
		t.Fatalf("NumBatches = %d, want 3", loader.NumBatches())
	}

	loader.Reset()
	sizes := []int{}
	total := 0
	for batch := loader.Next(); batch != nil; batch = loader.Next() {
		sizes = append(sizes, batch.Size)
		if len(batch.Labels) != batch.Size || len(batch.Images) != batch.Size*ImageSize {
			t.Fatalf("batch slices inconsistent with Size %d", batch.Size)
		}
		total += batch.Size
	}
	if len(sizes) != 3 || sizes[0] != 4 || sizes[1] != 4 || sizes[2] != 2 {
		t.Errorf("batch sizes = %v, want [4 4 2]", sizes)
	}
	if total != ds.Len() {
		t.Errorf("served %d samples, want all %d", total, ds.Len())
	}
}

func TestLoader_KeepTailSmallerThanBatch(t *testing.T) {
	ds := Synthetic(3, rand.New(rand.NewSource(1)))
	loader := NewLoader(ds, 8, nil)
	loader.KeepTail = true

	if loader.NumBatches() != 1 {
		t.Fatalf("NumBatches = %d, want 1", loader.NumBatches())
	}
	loader.Reset()
	batch := loader.Next()
	if batch == nil || batch.Size != 3 {
		t.Fatalf("expected one batch of 3, got %+v", batch)
	}
	if loader.Next() != nil {
		t.Error("expected exactly one batch")
	}
}

func TestLoader_NilRngKeepsOrder(t *testing.T) {
	ds := Synthetic(6, rand.New(rand.NewSource(1)))
	loader := NewLoader(ds, 3, nil)

	loader.Reset()
	batch := loader.Next()
	for i := 0; i < 3; i++ {
		if batch.Labels[i] != ds.Labels[i] {
			t.Fatalf("unshuffled loader changed order at %d", i)
		}
	}
}

func TestLoader_SameSeedSameOrder(t *testing.T) {
	ds := Synthetic(32, rand.New(rand.NewSource(1)))

	a := NewLoader(ds, 8, rand.New(rand.NewSource(42)))
	b := NewLoader(ds, 8, rand.New(rand.NewSource(42)))
	a.Reset()
	b.Reset()

	for {
		ba, bb := a.Next(), b.Next()
		if ba == nil && bb == nil {
			break
		}
		if ba == nil || bb == nil {
			t.Fatal("loaders disagree on epoch length")
		}
		for i := range ba.Labels {
			if ba.Labels[i] != bb.Labels[i] {
				t.Fatal("same seed must give same batch order")
			}
		}
	}
}

func TestLoader_ResetReshuffles(t *testing.T) {
	ds := Synthetic(64, rand.New(rand.NewSource(1)))
	loader := NewLoader(ds, 64, rand.New(rand.NewSource(9)))

	loader.Reset()
	first := loader.Next().Labels
	firstCopy := append([]int32(nil), first...)

	loader.Reset()
	second := loader.Next().Labels

	var same int
	for i := range firstCopy {
		if firstCopy[i] == second[i] {
			same++
		}
	}
	if same == len(firstCopy) {
		t.Error("reshuffle produced identical order")
	}
}
