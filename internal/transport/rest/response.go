package rest

import (
	"encoding/json"
	"errors"
	"net/http"

	"school-fees/internal/domain"

	"go.uber.org/zap"
)

type APIResponse struct {
	ErrorCode int         `json:"error_code"`
	Status    string      `json:"status"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data"`
}

func Response(w http.ResponseWriter, message string, data interface{}, errorCode int, status string, httpStatus int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)

	response := APIResponse{
		ErrorCode: errorCode,
		Status:    status,
		Message:   message,
		Data:      data,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func Success(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusOK)
}

func SuccessCreated(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusCreated)
}

func SuccessAccepted(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 0, "success", http.StatusAccepted)
}

func Error(w http.ResponseWriter, message string, errorCode int, httpStatus int) {
	Response(w, message, nil, errorCode, "error", httpStatus)
}

func ErrorBadRequest(w http.ResponseWriter, message string) {
	Error(w, message, 400, http.StatusBadRequest)
}

func ErrorUnauthorized(w http.ResponseWriter, message string) {
	Error(w, message, 401, http.StatusUnauthorized)
}

func ErrorNotFound(w http.ResponseWriter, message string) {
	Error(w, message, 404, http.StatusNotFound)
}

func ErrorConflict(w http.ResponseWriter, message string, data interface{}) {
	Response(w, message, data, 409, "error", http.StatusConflict)
}

func ErrorUnprocessable(w http.ResponseWriter, message string) {
	Error(w, message, 422, http.StatusUnprocessableEntity)
}

func ErrorInternal(w http.ResponseWriter, message string) {
	Error(w, message, 500, http.StatusInternalServerError)
}

// writeError maps service errors onto the response envelope. Unknown errors are
// logged and answered with a generic message.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var (
		ve   *ValidationError
		fe   *domain.FieldError
		over *domain.OverpaymentError
	)

	switch {
	case errors.As(err, &ve):
		Response(w, ve.Error(), map[string]string{"field": ve.Field}, 400, "error", http.StatusBadRequest)
	case errors.As(err, &fe):
		Response(w, fe.Error(), map[string]string{"field": fe.Field}, 400, "error", http.StatusBadRequest)
	case errors.As(err, &over):
		ErrorConflict(w, over.Error(), map[string]string{
			"outstanding": over.Outstanding.StringFixed(2),
			"attempted":   over.Attempted.StringFixed(2),
		})
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrInvalidFeeStructure),
		errors.Is(err, domain.ErrInvalidPeriod),
		errors.Is(err, domain.ErrInvalidArgument):
		ErrorBadRequest(w, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		ErrorNotFound(w, err.Error())
	case errors.Is(err, domain.ErrNoFeeStructure):
		ErrorUnprocessable(w, err.Error())
	case errors.Is(err, domain.ErrAlreadySettled):
		ErrorConflict(w, err.Error(), nil)
	case errors.Is(err, domain.ErrConflict):
		ErrorConflict(w, domain.ErrConflict.Error(), nil)
	default:
		h.log.Error(op,
			zap.Error(err),
			zap.String("request_id", requestID(r)),
		)
		ErrorInternal(w, "internal server error")
	}
}
