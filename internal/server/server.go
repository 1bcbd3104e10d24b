package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/kiesman99/mosaic/internal/api"
	"github.com/kiesman99/mosaic/internal/metric"
	"github.com/kiesman99/mosaic/internal/mosaic"
	"github.com/kiesman99/mosaic/internal/prepare"
	"github.com/kiesman99/mosaic/pkg/tile"
)

// DefaultMaxBodyBytes limits the size of an uploaded target image
const DefaultMaxBodyBytes = 32 << 20

// Server implements the ServerInterface from the generated API. The tile
// library is loaded once and shared read-only by all requests.
type Server struct {
	startTime time.Time
	version   string
	tiles     *tile.Set

	// MaxThreads caps the workers a single request may ask for.
	MaxThreads int
	// MaxBodyBytes caps the uploaded image size.
	MaxBodyBytes int64
}

// NewServer creates a new server instance serving mosaics built from tiles
func NewServer(version string, tiles *tile.Set, maxThreads int) *Server {
	return &Server{
		startTime:    time.Now(),
		version:      version,
		tiles:        tiles,
		MaxThreads:   max(maxThreads, 1),
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// GetHealth implements the health check endpoint
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	uptime := int(time.Since(s.startTime).Seconds())
	tiles := s.tiles.Len()
	tileSize := s.tiles.Size.Width

	var backends []string
	for _, m := range metric.Available() {
		backends = append(backends, m.Backend().String())
	}

	response := api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
		Uptime:    &uptime,
		Version:   &s.version,
		Tiles:     &tiles,
		TileSize:  &tileSize,
		Backends:  &backends,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Error("Error encoding health response")
	}
}

// request is a validated CreateMosaic call
type request struct {
	scaling    int
	removeUsed bool
	simd       bool
	threads    int
	format     tile.Format
}

// CreateMosaic implements the mosaic endpoint. The body is the encoded
// target image, the response the encoded mosaic.
func (s *Server) CreateMosaic(w http.ResponseWriter, r *http.Request, params api.CreateMosaicParams) {
	requestID := uuid.NewString()
	logger := log.WithField("request_id", requestID)

	req, err := s.convertParams(params)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), &requestID)
		return
	}

	body := http.MaxBytesReader(w, r.Body, s.MaxBodyBytes)
	img, format, err := tile.DecodeImage(body)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			s.writeErrorResponse(w, http.StatusRequestEntityTooLarge, "IMAGE_TOO_LARGE",
				fmt.Sprintf("target image exceeds %d bytes", maxBytes.Limit), &requestID)
			return
		}
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_IMAGE",
			fmt.Sprintf("can't decode target image: %v", err), &requestID)
		return
	}
	logger.WithFields(log.Fields{
		"format": format,
		"width":  img.Bounds().Dx(),
		"height": img.Bounds().Dy(),
	}).Debug("Target received")

	target, err := prepare.FitTarget(img, req.scaling, s.tiles.Size)
	if err != nil {
		s.handleMosaicError(w, err, &requestID)
		return
	}

	composer := mosaic.NewComposer(metric.Select(req.simd), req.threads, req.removeUsed)
	result, err := composer.Compose(r.Context(), target, s.tiles)
	if err != nil {
		s.handleMosaicError(w, err, &requestID)
		return
	}

	data, err := tile.EncodeBytes(result.Canvas, req.format)
	if err != nil {
		s.handleMosaicError(w, fmt.Errorf("%w: %v", mosaic.ErrOutput, err), &requestID)
		return
	}

	logger.WithFields(log.Fields{
		"blocks":  len(result.Assignment),
		"backend": result.Backend,
		"bytes":   len(data),
	}).Info("Mosaic created")

	w.Header().Set("Content-Type", req.format.ContentType())
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("X-Mosaic-Backend", result.Backend.String())
	w.Header().Set("X-Mosaic-Grid", fmt.Sprintf("%dx%d", result.Cols, result.Rows))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))

	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.WithError(err).Error("Error writing response")
	}
}

// convertParams applies defaults and validates the query parameters
func (s *Server) convertParams(params api.CreateMosaicParams) (request, error) {
	req := request{
		scaling: 1,
		threads: s.MaxThreads,
		format:  tile.FormatPNG,
	}

	if params.Scaling != nil {
		if *params.Scaling < 1 {
			return req, fmt.Errorf("scaling must be at least 1, got %d", *params.Scaling)
		}
		req.scaling = *params.Scaling
	}
	if params.Threads != nil {
		if *params.Threads < 1 {
			return req, fmt.Errorf("threads must be at least 1, got %d", *params.Threads)
		}
		req.threads = min(*params.Threads, s.MaxThreads)
	}
	if params.RemoveUsed != nil {
		req.removeUsed = *params.RemoveUsed
	}
	if params.Simd != nil {
		req.simd = *params.Simd
	}
	if params.Format != nil {
		format, err := tile.ParseFormat(string(*params.Format))
		if err != nil {
			return req, err
		}
		req.format = format
	}
	return req, nil
}

// handleMosaicError maps composition errors to status codes
func (s *Server) handleMosaicError(w http.ResponseWriter, err error, requestID *string) {
	switch {
	case errors.Is(err, mosaic.ErrInvalidConfig), errors.Is(err, mosaic.ErrInput):
		s.writeErrorResponse(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), requestID)
	case errors.Is(err, mosaic.ErrTilesExhausted):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "TILES_EXHAUSTED", err.Error(), requestID)
	case errors.Is(err, mosaic.ErrNoTiles):
		s.writeErrorResponse(w, http.StatusUnprocessableEntity, "NO_TILES", err.Error(), requestID)
	default:
		log.WithField("request_id", *requestID).WithError(err).Error("Mosaic failed")
		s.writeErrorResponse(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", requestID)
	}
}

// writeErrorResponse writes a standard error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string, requestID *string) {
	response := api.ErrorResponse{
		Error:     errorCode,
		Message:   message,
		RequestId: requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// ParamErrorHandler reports query parameters that could not be bound
func ParamErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	requestID := uuid.NewString()
	response := api.ErrorResponse{
		Error:     "INVALID_PARAMETER",
		Message:   err.Error(),
		RequestId: &requestID,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(response)
}
