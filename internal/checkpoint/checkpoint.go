// Package checkpoint persists model state dicts in a small binary format:
//
//	magic "DSTL" | version | header length | SHA-256 of data section
//	JSON header (named tensor offsets and lengths, training metadata)
//	data section (little-endian float32)
//
// The checksum covers the data section; Load refuses corrupted files.
package checkpoint

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"time"
)

const (
	magic         = "DSTL"
	formatVersion = 1
)

// Meta records where a checkpoint came from.
type Meta struct {
	ModelType string    `json:"model_type"` // "teacher", "student-direct", "student-distilled"
	Epoch     int       `json:"epoch"`
	Loss      float64   `json:"loss"`
	Accuracy  float64   `json:"accuracy"`
	CreatedAt time.Time `json:"created_at"`
}

type header struct {
	FormatVersion int          `json:"format_version"`
	Meta          Meta         `json:"meta"`
	Tensors       []tensorMeta `json:"tensors"`
}

type tensorMeta struct {
	Name   string `json:"name"`
	Offset int64  `json:"offset"` // bytes from start of data section
	Count  int64  `json:"count"`  // float32 element count
}

// Save writes a state dict to path. Tensor order in the file is sorted by
// name so identical states produce identical bytes.
func Save(path string, state map[string][]float32, meta Meta) error {
	names := make([]string, 0, len(state))
	for name := range state {
		names = append(names, name)
	}
	sort.Strings(names)

	var data bytes.Buffer
	h := header{FormatVersion: formatVersion, Meta: meta}
	for _, name := range names {
		values := state[name]
		h.Tensors = append(h.Tensors, tensorMeta{
			Name:   name,
			Offset: int64(data.Len()),
			Count:  int64(len(values)),
		})
		buf := make([]byte, 4)
		for _, v := range values {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
			data.Write(buf)
		}
	}

	headerJSON, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("checkpoint: encoding header: %w", err)
	}
	checksum := sha256.Sum256(data.Bytes())

	var out bytes.Buffer
	out.WriteString(magic)
	binary.Write(&out, binary.LittleEndian, uint32(formatVersion))
	binary.Write(&out, binary.LittleEndian, uint32(len(headerJSON)))
	out.Write(checksum[:])
	out.Write(headerJSON)
	out.Write(data.Bytes())

	return os.WriteFile(path, out.Bytes(), 0o644)
}

// Load reads a state dict written by Save, verifying the data checksum.
func Load(path string) (map[string][]float32, Meta, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, Meta{}, err
	}

	prefixLen := len(magic) + 4 + 4 + sha256.Size
	if len(raw) < prefixLen {
		return nil, Meta{}, fmt.Errorf("checkpoint: %s: file too short", path)
	}
	if string(raw[:4]) != magic {
		return nil, Meta{}, fmt.Errorf("checkpoint: %s: bad magic %q", path, raw[:4])
	}
	version := binary.LittleEndian.Uint32(raw[4:8])
	if version != formatVersion {
		return nil, Meta{}, fmt.Errorf("checkpoint: %s: unsupported version %d", path, version)
	}
	headerLen := int(binary.LittleEndian.Uint32(raw[8:12]))

	var stored [sha256.Size]byte
	copy(stored[:], raw[12:12+sha256.Size])

	if len(raw) < prefixLen+headerLen {
		return nil, Meta{}, fmt.Errorf("checkpoint: %s: truncated header", path)
	}
	var h header
	if err := json.Unmarshal(raw[prefixLen:prefixLen+headerLen], &h); err != nil {
		return nil, Meta{}, fmt.Errorf("checkpoint: %s: decoding header: %w", path, err)
	}

	data := raw[prefixLen+headerLen:]
	if sha256.Sum256(data) != stored {
		return nil, Meta{}, fmt.Errorf("checkpoint: %s: checksum mismatch", path)
	}

	state := make(map[string][]float32, len(h.Tensors))
	for _, tm := range h.Tensors {
		end := tm.Offset + tm.Count*4
		if tm.Offset < 0 || end > int64(len(data)) {
			return nil, Meta{}, fmt.Errorf("checkpoint: %s: tensor %q out of bounds", path, tm.Name)
		}
		values := make([]float32, tm.Count)
		for i := range values {
			bits := binary.LittleEndian.Uint32(data[tm.Offset+int64(i)*4:])
			values[i] = math.Float32frombits(bits)
		}
		state[tm.Name] = values
	}
	return state, h.Meta, nil
}
