package utils

import (
	"encoding/json"
	"net/http"
	"time"

	"ms-rental/internal/models"
)

type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

func SuccessResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func ErrorResponse(message, error string) APIResponse {
	return APIResponse{
		Success:   false,
		Message:   message,
		Error:     error,
		Timestamp: time.Now(),
	}
}

// KindResponse builds the error envelope for a classified error.
func KindResponse(err error) APIResponse {
	e := models.AsError(err)
	resp := ErrorResponse(string(e.Kind), e.UserMessage())
	resp.Code = string(e.Kind)
	return resp
}

func WriteJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func WriteSuccess(w http.ResponseWriter, status int, message string, data interface{}) {
	WriteJSON(w, status, SuccessResponse(message, data))
}

// WriteError writes err with the status of its kind. Internal errors never
// leak their cause to the caller.
func WriteError(w http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	resp := KindResponse(err)
	if kind == models.KindInternal {
		resp.Error = "internal server error"
	}
	WriteJSON(w, kind.HTTPStatus(), resp)
}
