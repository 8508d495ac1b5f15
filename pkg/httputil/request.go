// Package httputil holds small helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// MaxBodyBytes bounds request bodies read by DecodeJSON.
const MaxBodyBytes = 1 << 20

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// bodies over MaxBodyBytes.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// QueryList splits a comma-separated query parameter, dropping blanks.
func QueryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range strings.Split(r.URL.Query().Get(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// QueryPositiveInt returns the integer value of key, or defaultValue when
// absent. Present values that are not positive integers are an error.
func QueryPositiveInt(r *http.Request, key string, defaultValue int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer", key)
	}
	return n, nil
}
