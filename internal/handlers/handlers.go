package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Brownie44l1/classify-api/internal/config"
	"github.com/Brownie44l1/classify-api/internal/metrics"
	"github.com/Brownie44l1/classify-api/internal/middleware"
	"github.com/Brownie44l1/classify-api/internal/model"
	"github.com/Brownie44l1/classify-api/internal/preprocess"
	log "github.com/sirupsen/logrus"
)

// Predictor is the loaded model. Implementations must be safe for concurrent use.
type Predictor interface {
	Predict(ctx context.Context, input model.Tensor) (model.Tensor, error)
}

type Handler struct {
	predictor      Predictor
	logger         *log.Logger
	metrics        *metrics.Metrics
	maxUploadBytes int64
	maxImagePixels int64
}

func NewHandler(predictor Predictor, cfg *config.Config, logger *log.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		predictor:      predictor,
		logger:         logger,
		metrics:        m,
		maxUploadBytes: cfg.MaxUploadBytes,
		maxImagePixels: cfg.MaxImagePixels,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Predict accepts a multipart upload with the image in the "file" field and
// responds with the raw model output.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	requestID := middleware.RequestIDFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.countOutcome("too_large")
			h.writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		h.countOutcome("no_file")
		h.writeError(w, http.StatusBadRequest, errNoFile)
		return
	}
	defer file.Close()

	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"filename":   header.Filename,
		"size":       header.Size,
	}).Debug("Received file")

	prediction, timing, err := h.run(r.Context(), file, startTotal)
	if err != nil {
		stage := "unknown"
		var procErr *ProcessingError
		if errors.As(err, &procErr) {
			stage = procErr.Stage
		}
		h.logger.WithFields(log.Fields{
			"request_id": requestID,
			"stage":      stage,
		}).Errorf("Prediction failed: %v", err)
		h.countOutcome("error")
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	entry := h.logger.WithField("request_id", requestID)
	entry.WithField("inference_seconds", timing.Inference.Seconds()).
		Debugf("Inference time: %v seconds", timing.Inference.Seconds())
	entry.WithField("total_seconds", timing.Total.Seconds()).
		Debugf("Total processing time (including response preparation): %v seconds", timing.Total.Seconds())
	if h.metrics != nil {
		h.metrics.InferenceDuration.Observe(timing.Inference.Seconds())
	}

	body, err := json.Marshal(PredictionResponse{Prediction: prediction})
	if err != nil {
		message := err.Error()
		var marshalErr *json.MarshalerError
		if errors.As(err, &marshalErr) {
			message = marshalErr.Err.Error()
		}
		h.logger.WithFields(log.Fields{
			"request_id": requestID,
			"stage":      "encode",
		}).Errorf("Prediction failed: %s", message)
		h.countOutcome("error")
		h.writeError(w, http.StatusInternalServerError, message)
		return
	}

	h.countOutcome("success")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// run reads, decodes, preprocesses and predicts. Any failure, including a
// panic, comes back as a *ProcessingError.
func (h *Handler) run(ctx context.Context, file io.Reader, startTotal time.Time) (prediction model.Tensor, timing Timing, err error) {
	stage := "read"
	defer func() {
		if rec := recover(); rec != nil {
			err = &ProcessingError{Stage: stage, Err: fmt.Errorf("%v", rec)}
		}
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		return model.Tensor{}, Timing{}, &ProcessingError{Stage: stage, Err: err}
	}

	startInference := time.Now()

	stage = "decode"
	img, err := preprocess.Decode(data, h.maxImagePixels)
	if err != nil {
		return model.Tensor{}, Timing{}, &ProcessingError{Stage: stage, Err: err}
	}

	stage = "preprocess"
	input := preprocess.Preprocess(img)

	stage = "inference"
	prediction, err = h.predictor.Predict(ctx, input)
	if err != nil {
		return model.Tensor{}, Timing{}, &ProcessingError{Stage: stage, Err: err}
	}

	timing.Inference = time.Since(startInference)
	timing.Total = time.Since(startTotal)
	return prediction, timing, nil
}

func (h *Handler) countOutcome(outcome string) {
	if h.metrics != nil {
		h.metrics.Predictions.WithLabelValues(outcome).Inc()
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, ErrorResponse{Error: message})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		h.logger.Errorf("Error encoding JSON response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// NotFound and MethodNotAllowed keep router errors in the same JSON shape.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusNotFound, "Not found")
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
