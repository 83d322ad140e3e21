package handlers

import (
	"time"

	"github.com/Brownie44l1/classify-api/internal/model"
)

const errNoFile = "No file provided"

type PredictionResponse struct {
	Prediction model.Tensor `json:"prediction"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Timing holds the two diagnostic durations of a successful prediction.
// Inference covers decode through model output; Total starts when the
// request is accepted, so Inference <= Total.
type Timing struct {
	Inference time.Duration
	Total     time.Duration
}

// ProcessingError is the single failure kind reported as 500. Error returns
// only the underlying message; Stage is kept for logs.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return e.Err.Error()
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}
