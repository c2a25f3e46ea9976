package httpjson

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/programme-lv/pagesforge/srvcerror"
)

// maxRequestBytes bounds request bodies; task payloads carry data URI
// attachments.
const maxRequestBytes = 16 << 20

// DecodeRequired reads a JSON object from the request body into dst. Every key
// in required must be present at the top level. Errors are service errors
// ready for HandleError.
func DecodeRequired(r *http.Request, dst any, required []string) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return srvcerror.ErrInvalidJson().SetDebug(err)
	}
	missing, err := MissingKeys(body, required)
	if err != nil {
		return srvcerror.ErrInvalidJson().SetDebug(err)
	}
	if len(missing) > 0 {
		return srvcerror.ErrMissingFields(strings.Join(missing, ", "))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return srvcerror.ErrInvalidJson().SetDebug(err)
	}
	return nil
}

// MissingKeys lists the required top level keys absent from raw.
func MissingKeys(raw []byte, required []string) ([]string, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("body is not a JSON object")
	}
	var missing []string
	for _, k := range required {
		if _, ok := obj[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing, nil
}
