package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"storeledger/internal/core"
)

// maxBodySize caps request bodies at 1 MiB. Bulk import requests get a
// larger cap of their own.
const (
	maxBodySize       = 1 << 20
	maxImportBodySize = 16 << 20
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// decodeJSON reads and validates a JSON request body into dst. Struct tags
// drive validation; the first failing field is reported.
func decodeJSON(r *http.Request, dst any, limit int64) error {
	body := http.MaxBytesReader(nil, r.Body, limit)
	defer io.Copy(io.Discard, body)

	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return core.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return core.NewValidationError(fieldName(fe), validationMessage(fe))
		}
		return core.NewValidationError("body", err.Error())
	}
	return nil
}

func fieldName(fe validator.FieldError) string {
	// StructNamespace looks like "Type.Field"; report the leaf in snake case.
	parts := strings.Split(fe.StructNamespace(), ".")
	return toSnake(parts[len(parts)-1])
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid (" + fe.Tag() + ")"
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// pathID parses the named numeric path segment of a request.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.NewValidationError(name, "must be a positive integer")
	}
	return id, nil
}

// queryInt parses an optional integer query parameter, returning def when
// absent or malformed.
func queryInt(r *http.Request, name string, def int64) int64 {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

// queryBool reports whether an optional boolean query parameter is set true.
func queryBool(r *http.Request, name string) bool {
	v := strings.ToLower(strings.TrimSpace(r.URL.Query().Get(name)))
	return v == "1" || v == "true" || v == "yes"
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(r *http.Request, name string) (*core.Date, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return nil, core.NewValidationError(name, "must be a YYYY-MM-DD date")
	}
	return &d, nil
}
