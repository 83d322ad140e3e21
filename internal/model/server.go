package model

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"time"

	ort "github.com/yalue/onnxruntime_go"
)

type Options struct {
	ModelPath      string
	MetadataPath   string
	LibraryPath    string
	PoolSize       int
	AcquireTimeout time.Duration
	// InputShape is the shape the caller will feed; the model metadata must agree.
	InputShape []int64
}

// Server runs predictions against a pool of ONNX sessions loaded once at startup.
type Server struct {
	Metadata Metadata
	pool     *sessionPool
}

func NewServer(opts Options) (*Server, error) {
	metadata, err := LoadMetadata(opts.MetadataPath)
	if err != nil {
		return nil, err
	}
	if opts.InputShape != nil && !slices.Equal(metadata.InputShape, opts.InputShape) {
		return nil, fmt.Errorf("model input shape %v does not match preprocessed shape %v",
			metadata.InputShape, opts.InputShape)
	}

	if opts.LibraryPath != "" {
		ort.SetSharedLibraryPath(opts.LibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	size := opts.PoolSize
	if size <= 0 {
		size = 1
	}

	sessions := make([]session, 0, size)
	for i := 0; i < size; i++ {
		s, err := newONNXSession(opts.ModelPath, metadata, size)
		if err != nil {
			for _, created := range sessions {
				created.Destroy()
			}
			ort.DestroyEnvironment()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		sessions = append(sessions, s)
	}

	return &Server{
		Metadata: metadata,
		pool:     newSessionPool(sessions, opts.AcquireTimeout),
	}, nil
}

// Predict runs one forward pass. The call blocks until a session is free,
// the acquire timeout passes, or ctx is done.
func (s *Server) Predict(ctx context.Context, input Tensor) (Tensor, error) {
	if !slices.Equal(input.Shape, s.Metadata.InputShape) {
		return Tensor{}, fmt.Errorf("input shape %v does not match model input %v", input.Shape, s.Metadata.InputShape)
	}
	if err := input.validate(); err != nil {
		return Tensor{}, err
	}

	sess, err := s.pool.acquire(ctx)
	if err != nil {
		return Tensor{}, err
	}
	defer s.pool.release(sess)

	output, err := sess.Run(input.Data)
	if err != nil {
		return Tensor{}, fmt.Errorf("inference failed: %w", err)
	}

	return NewTensor(slices.Clone(s.Metadata.OutputShape), output)
}

func (s *Server) PoolStats() PoolStats {
	return s.pool.snapshot()
}

func (s *Server) Close() {
	s.pool.close()
	ort.DestroyEnvironment()
}

type onnxSession struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func newONNXSession(modelPath string, metadata Metadata, poolSize int) (*onnxSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	threads := runtime.NumCPU() / poolSize
	if threads < 1 {
		threads = 1
	}
	if err := options.SetIntraOpNumThreads(threads); err != nil {
		return nil, fmt.Errorf("error setting intra-op threads: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &onnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (o *onnxSession) Run(input []float32) ([]float32, error) {
	copy(o.inputTensor.GetData(), input)

	if err := o.session.Run(); err != nil {
		return nil, err
	}

	return slices.Clone(o.outputTensor.GetData()), nil
}

func (o *onnxSession) Destroy() {
	if o.inputTensor != nil {
		o.inputTensor.Destroy()
	}
	if o.outputTensor != nil {
		o.outputTensor.Destroy()
	}
	if o.session != nil {
		o.session.Destroy()
	}
}
