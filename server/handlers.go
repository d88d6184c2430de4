package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/sys/cpu"

	"github.com/Tutortoise/face-enrichment-service/models"
	"github.com/Tutortoise/face-enrichment-service/pipeline"
)

type DetectResponse struct {
	RequestID string          `json:"request_id"`
	FaceCount int             `json:"face_count"`
	Message   string          `json:"message"`
	Width     int             `json:"width"`
	Height    int             `json:"height"`
	Faces     []FaceResponse  `json:"faces"`
	Timings   TimingsResponse `json:"timings"`
}

// FaceResponse is one enriched face, optionally with its PNG crop.
type FaceResponse struct {
	models.EnrichedFace
	Crop string `json:"crop,omitempty"`
}

// TimingsResponse reports stage durations in milliseconds.
type TimingsResponse struct {
	ImageDecode float64 `json:"image_decode_ms"`
	Preprocess  float64 `json:"preprocess_ms"`
	Inference   float64 `json:"inference_ms"`
	Postprocess float64 `json:"postprocess_ms"`
	Suppression float64 `json:"suppression_ms"`
	Enrichment  float64 `json:"enrichment_ms"`
	Total       float64 `json:"total_ms"`
}

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	startTotal := time.Now()
	requestID := uuid.NewString()
	ctx := r.Context()

	threshold, err := s.threshold(r)
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	wantCrops := r.URL.Query().Get("crops") == "true"

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var imgBytes []byte
	switch mediaType {
	case "application/json":
		imgBytes, err = handleJSONRequest(r)
	case "multipart/form-data":
		imgBytes, err = handleMultipartRequest(r)
	default:
		imgBytes, err = handleRawRequest(r)
	}
	if err != nil {
		sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	if len(imgBytes) == 0 {
		sendErrorResponse(w, "invalid_request", "Request body contains no image", http.StatusBadRequest)
		return
	}

	decodeStart := time.Now()
	img, err := pipeline.DecodeImage(imgBytes)
	decodeTime := time.Since(decodeStart)
	if err != nil {
		sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
		return
	}

	p, err := s.pool.Acquire(ctx)
	if err != nil {
		sendErrorResponse(w, "session_error", err.Error(), http.StatusServiceUnavailable)
		return
	}
	result, err := p.ProcessRequest(ctx, requestID, img, threshold)
	s.pool.Release(p)
	if err != nil {
		sendErrorResponse(w, "processing_error", err.Error(), http.StatusInternalServerError)
		return
	}
	result.Timings.ImageDecode = decodeTime
	result.Timings.Total = time.Since(startTotal)
	s.logTimings(&result.Timings)
	s.record(ctx, requestID, result.Faces)

	faces := make([]FaceResponse, len(result.Faces))
	for i, f := range result.Faces {
		faces[i].EnrichedFace = f
		if !wantCrops {
			continue
		}
		png, err := pipeline.CropPNG(img, f.Face, s.opts.CropPadding)
		if err != nil {
			s.log.Warn("crop failed", "request_id", requestID, "face", i, "stage", pipeline.StageCrop, "error", err)
			continue
		}
		faces[i].Crop = base64.StdEncoding.EncodeToString(png)
	}

	response := DetectResponse{
		RequestID: requestID,
		FaceCount: len(faces),
		Message:   faceCountMessage(len(faces)),
		Width:     result.Width,
		Height:    result.Height,
		Faces:     faces,
		Timings:   timingsResponse(result.Timings),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func (s *Server) threshold(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("threshold")
	if raw == "" {
		return s.opts.Threshold, nil
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(t) || t < 0 || t > 1 {
		return 0, fmt.Errorf("threshold must be a number in [0,1], got %q", raw)
	}
	return t, nil
}

func (s *Server) logTimings(t *models.ProcessingTimings) {
	if !s.opts.Debug {
		return
	}
	s.log.Debug("processing times",
		"request_id", t.RequestID,
		"image_decode", t.ImageDecode,
		"preprocess", t.Preprocess,
		"inference", t.Inference,
		"postprocess", t.Postprocess,
		"suppression", t.Suppression,
		"enrichment", t.Enrichment,
		"total", t.Total,
	)
}

func (s *Server) record(ctx context.Context, requestID string, faces []models.EnrichedFace) {
	if s.opts.Recorder == nil {
		return
	}
	if err := s.opts.Recorder.SaveResults(ctx, requestID, "http", faces); err != nil {
		s.log.Warn("failed to store results", "request_id", requestID, "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) addMonitoringRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	metrics := s.pool.Metrics()
	lastErrors := []string{}
	for _, err := range s.pool.LastErrors() {
		lastErrors = append(lastErrors, err.Error())
	}
	response := map[string]interface{}{
		"pool_size":          metrics.Size,
		"pipelines_in_use":   metrics.InUse,
		"pipelines_idle":     metrics.Available,
		"total_acquired":     metrics.TotalAcquired,
		"total_released":     metrics.TotalReleased,
		"acquire_failures":   metrics.AcquireFailures,
		"pipelines_replaced": metrics.Discarded,
		"acquire_wait_ms":    float64(metrics.WaitTime) / float64(time.Millisecond),
		"num_cpu":            runtime.NumCPU(),
		"cpu_features":       CPUFeatures(),
		"last_errors":        lastErrors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// CPUFeatures reports the SIMD extensions the host CPU supports.
func CPUFeatures() map[string]bool {
	return map[string]bool{
		"sse41":   cpu.X86.HasSSE41,
		"avx2":    cpu.X86.HasAVX2,
		"avx512f": cpu.X86.HasAVX512F,
		"fma":     cpu.X86.HasFMA,
		"neon":    cpu.ARM64.HasASIMD,
	}
}

func timingsResponse(t models.ProcessingTimings) TimingsResponse {
	ms := func(d time.Duration) float64 {
		return float64(d) / float64(time.Millisecond)
	}
	return TimingsResponse{
		ImageDecode: ms(t.ImageDecode),
		Preprocess:  ms(t.Preprocess),
		Inference:   ms(t.Inference),
		Postprocess: ms(t.Postprocess),
		Suppression: ms(t.Suppression),
		Enrichment:  ms(t.Enrichment),
		Total:       ms(t.Total),
	}
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, err
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleMultipartRequest(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:    code,
		Message: message,
	})
}
