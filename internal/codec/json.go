package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/tidwall/gjson"

	"netonboard/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// Parse reads a JSON array of requests, or an object carrying one under
// "devices".
func (c *JSONCodec) Parse(r io.Reader) ([]domain.OnboardingRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JSON: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("failed to parse JSON: invalid document")
	}

	list := gjson.ParseBytes(data)
	if list.IsObject() {
		list = list.Get("devices")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("failed to parse JSON: expected an array of devices")
	}

	var reqs []domain.OnboardingRequest
	decoder := json.NewDecoder(bytes.NewReader([]byte(list.Raw)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&reqs); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return validate(reqs)
}

// Export writes results as a JSON array
func (c *JSONCodec) Export(results []*domain.OnboardingResult, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if results == nil {
		results = []*domain.OnboardingResult{}
	}
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
