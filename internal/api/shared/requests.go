package shared

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// MaxBodyBytes bounds request bodies. Generation requests carry base64
// reference images, so the limit is generous.
const MaxBodyBytes = 32 << 20

var validate = validator.New()

// DecodeJSON decodes the request body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// ValidateRequest validates v against its struct tags.
func ValidateRequest(v any) error {
	return validate.Struct(v)
}
