package api

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/nerzen/webmail/internal/deliver"
	"github.com/nerzen/webmail/internal/mailbox"
	"github.com/nerzen/webmail/internal/token"
)

type errorResponse struct {
	Error string `json:"error"`

	// Failed carries the failed subset of a partial bulk operation.
	Failed []bulkFailure `json:"failed,omitempty"`
}

type bulkFailure struct {
	UID    uint32 `json:"uid"`
	Reason string `json:"reason"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// writeError maps the error taxonomy onto HTTP statuses. Client messages
// stay generic; the full error goes to the log only, so credentials and
// server internals never reach the response body.
func writeError(w http.ResponseWriter, log zerolog.Logger, err error) {
	switch {
	case token.IsInvalidToken(err):
		log.Debug().Err(err).Msg("rejected session token")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid or expired session"})

	case mailbox.IsAuthError(err):
		log.Debug().Err(err).Msg("mail server rejected credentials")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "mail server rejected the credentials"})

	case mailbox.IsTimeoutError(err):
		log.Warn().Err(err).Msg("mail server timeout")
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "mail server timed out"})

	case mailbox.IsConnectError(err):
		log.Warn().Err(err).Msg("mail server unreachable")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "mail server unreachable"})

	case mailbox.IsFolderNotFound(err):
		log.Debug().Err(err).Msg("folder not found")
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "folder not found on server"})

	case deliver.IsSubmissionError(err):
		log.Warn().Err(err).Msg("submission failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "message could not be submitted"})

	default:
		if bulkErr, ok := mailbox.IsPartialBulk(err); ok {
			log.Warn().Err(err).Msg("bulk operation partially failed")
			resp := errorResponse{Error: bulkErr.Error()}
			for _, item := range bulkErr.Failed {
				resp.Failed = append(resp.Failed, bulkFailure{UID: uint32(item.UID), Reason: item.Reason})
			}
			writeJSON(w, http.StatusMultiStatus, resp)
			return
		}
		log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}
