package response

import (
	"encoding/json"
	"net/http"
	"strconv"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
)

// StandardResponse represents the standard API response structure
type StandardResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ConfirmationPrompt is the body of a 428 reply: what the client should
// show before repeating the request with confirmation.
type ConfirmationPrompt struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// SuccessResponse sends a success response with given status code, message, and data
func SuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	response := StandardResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}
	SendJSON(w, statusCode, response)
}

// ErrorResponse sends an error response with given status code and error message
func ErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string) {
	response := StandardResponse{
		Status: "error",
		Error:  errorMsg,
	}
	SendJSON(w, statusCode, response)
}

// Error maps an application error onto its status code. Internal details
// are logged and replaced by a generic message.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperrors.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		logger.Error("%s %s failed: %v", r.Method, r.URL.Path, err)
		ErrorResponse(w, status, "internal server error")
		return
	}
	ErrorResponse(w, status, err.Error())
}

// ConfirmationRequired replies 428 with the prompt to show.
func ConfirmationRequired(w http.ResponseWriter, title, message string) {
	SendJSON(w, http.StatusPreconditionRequired, StandardResponse{
		Status: "error",
		Error:  "confirmation required",
		Data:   ConfirmationPrompt{Title: title, Message: message},
	})
}

// SendFile writes a download.
func SendFile(w http.ResponseWriter, contentType, filename string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Error("Error writing file response: %v", err)
	}
}

// SendJSON encodes and sends a JSON response
func SendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}
