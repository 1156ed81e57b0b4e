package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/Domusgpt/parserator-sub000/internal/logger"
	"github.com/Domusgpt/parserator-sub000/internal/parse"
	"github.com/Domusgpt/parserator-sub000/internal/usage"
	"github.com/Domusgpt/parserator-sub000/internal/version"
)

// parseRequest is the inbound POST /v1/parse payload.
type parseRequest struct {
	InputData    string            `json:"inputData" validate:"required"`
	OutputSchema map[string]string `json:"outputSchema" validate:"required,min=1"`
	Instructions string            `json:"instructions,omitempty"`
	ForceRefresh bool              `json:"forceRefresh,omitempty"`
}

// errorBody is the JSON error envelope shared by all endpoints.
type errorBody struct {
	Success bool        `json:"success"`
	Error   parse.Error `json:"error"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	subject, err := s.subjectFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, parse.Error{
			Code:    "INVALID_API_KEY",
			Message: "the provided API key is not recognized",
			Stage:   parse.StageValidation,
		})
		return
	}

	if qerr := s.governor.Admit(r.Context(), subject.ID, subject.Tier); qerr != nil {
		writeQuotaError(w, qerr)
		return
	}

	var payload parseRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, parse.Error{
			Code:    "INVALID_REQUEST_BODY",
			Message: fmt.Sprintf("request body is not valid JSON: %v", err),
			Stage:   parse.StageValidation,
		})
		return
	}
	if err := s.validate.Struct(payload); err != nil {
		writeError(w, http.StatusBadRequest, parse.Error{
			Code:    "INVALID_REQUEST_BODY",
			Message: validationMessage(err),
			Stage:   parse.StageValidation,
		})
		return
	}

	userID := ""
	if !subject.Anonymous {
		userID = subject.ID
	}
	result, err := s.parser.Parse(r.Context(), parse.Request{
		InputData:    payload.InputData,
		OutputSchema: payload.OutputSchema,
		Instructions: payload.Instructions,
		ForceRefresh: payload.ForceRefresh,
		UserID:       userID,
	})
	if err != nil {
		logger.Error("parse request failed unexpectedly", "error", err)
		writeError(w, http.StatusInternalServerError, parse.Error{
			Code:    "INTERNAL_ERROR",
			Message: "an unexpected error occurred",
			Stage:   parse.StageOrchestration,
		})
		return
	}

	// Consumption is recorded regardless of parse outcome: failed LLM
	// calls still spent tokens.
	s.governor.Record(r.Context(), subject.ID, result.Metadata.TokensUsed)

	writeJSON(w, statusFor(result), result)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	subject, err := s.subjectFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, parse.Error{
			Code:    "INVALID_API_KEY",
			Message: "the provided API key is not recognized",
			Stage:   parse.StageValidation,
		})
		return
	}

	snap, err := s.governor.Usage(r.Context(), subject.ID, subject.Tier)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, parse.Error{
			Code:    "USAGE_UNAVAILABLE",
			Message: "usage counters are temporarily unavailable",
			Stage:   parse.StageOrchestration,
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

// statusFor maps a parse outcome to its HTTP status: stage validation is a
// client error, stage architect/extractor a processing failure, anything
// else unexpected.
func statusFor(res parse.Result) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Err.Stage {
	case parse.StageValidation:
		return http.StatusBadRequest
	case parse.StageArchitect, parse.StageExtractor:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeQuotaError(w http.ResponseWriter, qerr *usage.QuotaError) {
	status := http.StatusTooManyRequests
	code := "QUOTA_EXCEEDED"
	if qerr.Reason == usage.ReasonUnavailable {
		status = http.StatusServiceUnavailable
		code = "QUOTA_STORE_UNAVAILABLE"
	}
	if qerr.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(qerr.RetryAfter.Seconds()+0.5)))
	}
	writeError(w, status, parse.Error{
		Code:    code,
		Message: qerr.Error(),
		Stage:   parse.StageValidation,
		Details: map[string]any{"reason": qerr.Reason, "tier": qerr.Tier},
	})
}

func writeError(w http.ResponseWriter, status int, perr parse.Error) {
	writeJSON(w, status, errorBody{Success: false, Error: perr})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		switch f.Tag() {
		case "required":
			return fmt.Sprintf("%s is required", jsonFieldName(f.Field()))
		case "min":
			return fmt.Sprintf("%s must contain at least %s entries", jsonFieldName(f.Field()), f.Param())
		}
		return fmt.Sprintf("%s is invalid", jsonFieldName(f.Field()))
	}
	return "request body failed validation"
}

// jsonFieldName lowercases the leading rune so errors reference the wire
// name rather than the Go field.
func jsonFieldName(field string) string {
	if field == "" {
		return field
	}
	return string(field[0]|0x20) + field[1:]
}
