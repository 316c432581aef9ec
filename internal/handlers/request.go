package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/SARVESHVARADKAR123/RealChat/internal/transport"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const (
	errInvalidBody   = "invalid_body"
	errInvalidParams = "invalid_params"
	msgInvalidJSON   = "invalid json"

	maxBodyBytes = 1 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decode reads a JSON body into dst and validates it. On failure the error
// response has already been written.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		transport.WriteError(r.Context(), w, http.StatusBadRequest, errInvalidBody, msgInvalidJSON)
		return false
	}

	if err := validate.Struct(dst); err != nil {
		transport.WriteError(r.Context(), w, http.StatusBadRequest, errInvalidParams, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// queryInt64 returns the named query parameter, or def when it is absent.
func queryInt64(r *http.Request, name string, def int64) (int64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", name)
	}
	return v, nil
}

func conversationID(r *http.Request) string {
	return chi.URLParam(r, "conversationID")
}

func messageID(r *http.Request) string {
	return chi.URLParam(r, "messageID")
}
