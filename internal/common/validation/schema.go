// Package validation checks inbound recommendation requests against a JSON
// schema before any pipeline work happens. Schema violations are the only
// error class surfaced to clients.
package validation

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "recommendation-backend/internal/common/errors"
)

// requestSchema constrains the shape of the recommendation request body.
// Market membership and n upper bounds are configuration-dependent and
// checked by the service, not here.
const requestSchema = `{
	"type": "object",
	"properties": {
		"user_id":        {"type": "string"},
		"product_id":     {"type": "string"},
		"query":          {"type": "string"},
		"n":              {"type": "integer", "minimum": 1},
		"market_id":      {"type": "string", "minLength": 1},
		"content_weight": {"type": "number", "minimum": 0, "maximum": 1}
	},
	"required": ["n", "market_id"],
	"additionalProperties": false
}`

// RequestValidator validates raw request bodies against the schema.
type RequestValidator struct {
	schema *gojsonschema.Schema
}

// NewRequestValidator compiles the request schema once.
func NewRequestValidator() (*RequestValidator, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(requestSchema))
	if err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}
	return &RequestValidator{schema: schema}, nil
}

// Validate checks a raw JSON request body. Returns an INVALID_REQUEST error
// listing every violation, or nil when the body is well-formed.
func (v *RequestValidator) Validate(raw []byte) error {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return apperrors.NewInvalidRequestError(fmt.Sprintf("malformed JSON: %v", err))
	}

	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return apperrors.NewInvalidRequestError(strings.Join(errs, "; "))
	}

	return nil
}
