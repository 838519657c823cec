package utils

import (
	"encoding/json"
	"io"
	"net/http"
)

// maxJSONBody caps request bodies read by DecodeJSONBody.
const maxJSONBody = 64 << 10

// WriteJSONResponse writes a JSON response with the given status code
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// DecodeJSONBody decodes a request body into v. Empty bodies are not an error
// and leave v untouched.
func DecodeJSONBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(v)
	if err == io.EOF {
		return nil
	}
	return err
}
