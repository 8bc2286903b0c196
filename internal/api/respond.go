// Package api holds the HTTP envelope, error mapping and request decoding
// shared by every feature package's routes.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/hlog"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

// CompoundHeader carries the caller's compound scope.
const CompoundHeader = "X-Compound-ID"

// Envelope is the single response shape of every endpoint.
type Envelope struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// JSON writes data inside a success envelope.
func JSON(w http.ResponseWriter, status int, data any) {
	write(w, status, Envelope{Status: "success", Data: data})
}

// Error maps err to a status code and writes an error envelope. Messages
// of system failures are generic; the cause is logged instead.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Wrap(err, apperr.KindInternal, apperr.CodeInternal, "internal error")
	}
	status := StatusFor(ae.Kind)

	body := &ErrorBody{Code: ae.Code, Kind: string(ae.Kind), Message: ae.Message, Details: ae.Details}
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("code", ae.Code).Msg("request failed")
	} else if ae.Err != nil && apperr.IsUserError(ae) {
		body.Message = ae.Error()
	}
	write(w, status, Envelope{Status: "error", Error: body})
}

// StatusFor returns the HTTP status for an error kind.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindDuplicateContent:
		return http.StatusConflict
	case apperr.KindExternalTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindExtraction, apperr.KindEmbedding, apperr.KindIndexWrite, apperr.KindExternalService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func write(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// CompoundID returns the compound scope of r or a validation error when
// the header is absent.
func CompoundID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.Header.Get(CompoundHeader))
	if id == "" {
		return "", apperr.Validation(apperr.CodeMissingCompoundID, "%s header is required", CompoundHeader)
	}
	return id, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode reads a JSON body into dst and validates its struct tags.
func Decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Validation(apperr.CodeInvalidRequest, "invalid request body: %v", err)
	}
	return Validate(dst)
}

// Validate checks the struct tags of v.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validation(apperr.CodeInvalidRequest, "invalid request: %v", err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return apperr.Validation(apperr.CodeInvalidRequest, "invalid fields: %s", strings.Join(fields, ", ")).
		WithDetail("fields", fields)
}
