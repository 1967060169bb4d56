// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Glowline Contributors

package sessionserver

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/glowline/glowline/internal/profile"
)

// CodeMalformed marks a response body that is not a valid profile document.
const CodeMalformed = "MALFORMED_RESPONSE"

const responseSchemaURL = "hasjoined.schema.json"

// Response is the hasJoined document as served by the session server.
type Response struct {
	Name       string             `json:"name" jsonschema:"minLength=1,description=Account name"`
	ID         string             `json:"id" jsonschema:"description=Account UUID in 32-digit hex form"`
	Properties []ResponseProperty `json:"properties" jsonschema:"description=Signed profile properties"`
}

// ResponseProperty is one entry of Response.Properties.
type ResponseProperty struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Signature string `json:"signature,omitempty"`
}

// GenerateSchema returns the JSON Schema a hasJoined body must satisfy.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(&Response{})
	schema.Title = "hasJoined response"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_GENERATION_FAILED").Wrap(err)
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(func() (*jschema.Schema, error) {
	data, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	c := jschema.NewCompiler()
	if err := c.AddResource(responseSchemaURL, doc); err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	sch, err := c.Compile(responseSchemaURL)
	if err != nil {
		return nil, oops.Code("SCHEMA_COMPILE_FAILED").Wrap(err)
	}
	return sch, nil
})

// Parse converts a hasJoined body into a Profile. Structural problems
// fail with MALFORMED_RESPONSE; an id that is not a 32-digit UUID fails
// with IDENTITY_PARSE_FAILED.
func Parse(body []byte) (*profile.Profile, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, oops.Code(CodeMalformed).Errorf("empty response body")
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, oops.Code(CodeMalformed).Wrapf(err, "response is not JSON")
	}
	if err := sch.Validate(doc); err != nil {
		return nil, oops.Code(CodeMalformed).Wrapf(err, "response does not match profile schema")
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, oops.Code(CodeMalformed).Wrapf(err, "decode response")
	}

	id, err := profile.ParseFlatUUID(resp.ID)
	if err != nil {
		return nil, err
	}

	props := make([]profile.Property, 0, len(resp.Properties))
	for _, p := range resp.Properties {
		props = append(props, profile.Property{
			Name:      p.Name,
			Value:     p.Value,
			Signature: p.Signature,
		})
	}
	return &profile.Profile{
		Name:       resp.Name,
		ID:         id,
		Properties: props,
	}, nil
}
