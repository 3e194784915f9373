package server

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/document"
	"github.com/raaihank/pii-gateway/internal/gateway"
	"github.com/raaihank/pii-gateway/internal/generator"
	"github.com/raaihank/pii-gateway/internal/privacy"
	"github.com/raaihank/pii-gateway/internal/validator"
)

// writeError maps pipeline errors to HTTP statuses. Messages come from
// error types that never carry request text; anything unrecognised gets a
// generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)

	log := s.logger.WithRequestID(gateway.RequestID(r.Context()))
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.Int("status_code", status), zap.Error(err))
	} else {
		log.Info("Request rejected", zap.Int("status_code", status), zap.Error(err))
	}

	writeJSONError(w, status, message)
}

func classify(err error) (int, string) {
	var (
		rejection *validator.Rejection
		cfgErr    *privacy.ConfigurationError
		readErr   *document.ReadError
		genErr    *generator.Error
	)
	switch {
	case errors.As(err, &rejection):
		return http.StatusUnprocessableEntity, rejection.Error()
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest, cfgErr.Error()
	case errors.As(err, &readErr):
		return http.StatusUnprocessableEntity, readErr.Reason
	case errors.Is(err, privacy.ErrMappingMismatch), errors.Is(err, privacy.ErrInvalidDetection):
		return http.StatusBadRequest, "mapping does not fit the supplied text"
	case errors.As(err, &genErr):
		return http.StatusBadGateway, "text generation failed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
