package booking

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// bookingSchemaJSON describes a booking as returned by the lookup endpoint.
const bookingSchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["accessToken", "municipality", "collectionDate", "timeSlot", "currentStatus"],
	"properties": {
		"id": {"type": "integer"},
		"accessToken": {"type": "string", "minLength": 1},
		"municipality": {"type": "string", "minLength": 1},
		"collectionDate": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
		"timeSlot": {"type": "string"},
		"currentStatus": {
			"type": "string",
			"enum": ["RECEIVED", "ASSIGNED", "IN_PROGRESS", "COMPLETED", "CANCELLED"]
		},
		"items": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["name"],
				"properties": {
					"name": {"type": "string"},
					"weight": {"type": "number"},
					"volume": {"type": "number"}
				}
			}
		}
	}
}`

var bookingSchema = jsonschema.MustCompileString("booking.json", bookingSchemaJSON)

// AccessToken extracts a non-empty accessToken from a JSON body.
func AccessToken(body []byte) (string, bool) {
	if !gjson.ValidBytes(body) {
		return "", false
	}
	token := gjson.GetBytes(body, "accessToken")
	if token.Type != gjson.String || token.Str == "" {
		return "", false
	}
	return token.Str, true
}

// CurrentStatus extracts the booking status from a JSON body.
func CurrentStatus(body []byte) string {
	return gjson.GetBytes(body, "currentStatus").String()
}

// IsJSONArray reports whether body is a valid JSON array.
func IsJSONArray(body []byte) bool {
	return gjson.ValidBytes(body) && gjson.ParseBytes(body).IsArray()
}

// IsJSONObject reports whether body is a valid JSON object.
func IsJSONObject(body []byte) bool {
	return gjson.ValidBytes(body) && gjson.ParseBytes(body).IsObject()
}

// ValidationErrors collects every schema violation of a body.
type ValidationErrors []error

func (ve ValidationErrors) Error() string {
	parts := make([]string, len(ve))
	for i, err := range ve {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// ValidateBooking checks a booking body against the booking schema.
func ValidateBooking(body []byte) error {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	err := bookingSchema.Validate(doc)
	if err == nil {
		return nil
	}
	if verr, ok := err.(*jsonschema.ValidationError); ok {
		return collectValidationErrors(verr)
	}
	return err
}

func collectValidationErrors(err *jsonschema.ValidationError) ValidationErrors {
	var errs ValidationErrors
	if len(err.Causes) == 0 {
		errs = append(errs, fmt.Errorf("%s: %s", err.InstanceLocation, err.Message))
	}
	for _, cause := range err.Causes {
		errs = append(errs, collectValidationErrors(cause)...)
	}
	return errs
}
