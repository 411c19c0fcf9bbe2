package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// MaxRequestBody caps JSON request bodies.
const MaxRequestBody = 1 << 20

// ErrEmptyBody is returned by DecodeJSONRequest for a request without a body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSONRequest decodes JSON from HTTP request body into the provided interface.
// Usage: var data MyType; if err := DecodeJSONRequest(r, &data); err != nil { ... }
func DecodeJSONRequest(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	err := json.NewDecoder(io.LimitReader(r.Body, MaxRequestBody)).Decode(v)
	if errors.Is(err, io.EOF) {
		return ErrEmptyBody
	}
	return err
}

// ReadBody returns the raw request body, bounded by MaxRequestBody.
func ReadBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > MaxRequestBody {
		return nil, fmt.Errorf("request body exceeds %d bytes", MaxRequestBody)
	}
	return body, nil
}

// FlexibleString accepts a JSON string or number. Provider ids are sent
// either way.
type FlexibleString string

func (f *FlexibleString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexibleString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexibleString(n.String())
	return nil
}

func (f FlexibleString) String() string {
	return string(f)
}

// PathID extracts the numeric id that follows prefix in the request path,
// e.g. PathID(r, "/lessons/") for "/lessons/12/".
func PathID(r *http.Request, prefix string) (int64, error) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if raw == "" || strings.Contains(raw, "/") {
		return 0, fmt.Errorf("invalid id in path %q", r.URL.Path)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
