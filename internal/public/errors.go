package public

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Failed requests answer {"error": reason, "message": text}. The reason is
// fixed per status so callers can branch on it.
type failure struct {
	Reason  string `json:"error"`
	Message string `json:"message"`
}

var reasons = map[int]string{
	http.StatusBadRequest:          "invalid_request",
	http.StatusNotFound:            "task_not_found",
	http.StatusConflict:            "not_confirmable",
	http.StatusTooManyRequests:     "slow_down",
	http.StatusInternalServerError: "server_error",
}

func fail(w http.ResponseWriter, status int, message string) {
	reason, ok := reasons[status]
	if !ok {
		reason = "server_error"
	}
	respond(w, status, failure{Reason: reason, Message: message})
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("public: write response", "status", status, "err", err)
	}
}
