package utils

import (
	"encoding/json"
	"net/http"

	apperrors "enrollment-crm/errors"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// DecodeJSONRequest decodes JSON from HTTP request body into the provided interface.
// Usage: var data MyType; if err := DecodeJSONRequest(r, &data); err != nil { ... }
func DecodeJSONRequest(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.E(apperrors.Invalid, "invalid JSON body", err)
	}
	return nil
}
