package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
)

type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
}

// LoadMetadata reads the JSON file describing the model's tensor names and shapes.
func LoadMetadata(path string) (Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}

	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "output"
	}
	if len(metadata.InputShape) == 0 || len(metadata.OutputShape) == 0 {
		return Metadata{}, fmt.Errorf("metadata must declare input_shape and output_shape")
	}
	for _, dim := range append(slices.Clone(metadata.InputShape), metadata.OutputShape...) {
		if dim <= 0 {
			return Metadata{}, fmt.Errorf("metadata shapes must be fully static, got input %v output %v",
				metadata.InputShape, metadata.OutputShape)
		}
	}

	return metadata, nil
}

// Tensor is a dense float32 array stored flat in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// NewTensor checks that data holds exactly as many elements as shape describes.
func NewTensor(shape []int64, data []float32) (Tensor, error) {
	t := Tensor{Shape: shape, Data: data}
	if err := t.validate(); err != nil {
		return Tensor{}, err
	}
	return t, nil
}

// Size is the number of elements implied by the shape.
func (t Tensor) Size() int64 {
	return shapeSize(t.Shape)
}

func (t Tensor) validate() error {
	for _, dim := range t.Shape {
		if dim < 0 {
			return fmt.Errorf("negative dimension in shape %v", t.Shape)
		}
	}
	if t.Size() != int64(len(t.Data)) {
		return fmt.Errorf("shape %v needs %d values, got %d", t.Shape, t.Size(), len(t.Data))
	}
	return nil
}

// MarshalJSON encodes the tensor as nested arrays following its shape, so a
// (1, 3) tensor becomes [[a,b,c]].
func (t Tensor) MarshalJSON() ([]byte, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(t.Data)*8+2*len(t.Shape))
	return appendNested(buf, t.Shape, t.Data)
}

func appendNested(buf []byte, shape []int64, data []float32) ([]byte, error) {
	if len(shape) == 0 {
		v := float64(data[0])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("unsupported value in output: %v", data[0])
		}
		return strconv.AppendFloat(buf, v, 'g', -1, 32), nil
	}

	stride := shapeSize(shape[1:])
	buf = append(buf, '[')
	for i := int64(0); i < shape[0]; i++ {
		if i > 0 {
			buf = append(buf, ',')
		}
		var err error
		buf, err = appendNested(buf, shape[1:], data[i*stride:(i+1)*stride])
		if err != nil {
			return nil, err
		}
	}
	return append(buf, ']'), nil
}

func shapeSize(shape []int64) int64 {
	size := int64(1)
	for _, dim := range shape {
		size *= dim
	}
	return size
}
