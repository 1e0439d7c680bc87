package tracking

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/ga4_event.json
var eventSchemaJSON string

var (
	eventSchemaOnce sync.Once
	eventSchema     *jsonschema.Schema
	eventSchemaErr  error
)

func compiledEventSchema() (*jsonschema.Schema, error) {
	eventSchemaOnce.Do(func() {
		eventSchema, eventSchemaErr = jsonschema.CompileString("ga4_event.json", eventSchemaJSON)
	})
	return eventSchema, eventSchemaErr
}

// ValidateEvent checks ev against the GA4 ecommerce event schema.
func ValidateEvent(ev Event) error {
	schema, err := compiledEventSchema()
	if err != nil {
		return fmt.Errorf("failed to compile event schema: %w", err)
	}

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode event: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%s payload does not match schema: %w", ev.Name, err)
	}
	return nil
}
