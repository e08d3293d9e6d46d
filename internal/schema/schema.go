// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schema converts a subset of JSON Schema, as advertised by an
// upstream tool's inputSchema, into a Validator tree. The conversion is
// intentionally lossy: oneOf/anyOf, enums, and formats are dropped, and
// nothing in this package is used to reject an inbound call — upstreams
// remain the authority on their own arguments.
package schema

// Kind enumerates the scalar and structural forms this package recognizes.
type Kind string

const (
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindInteger Kind = "integer"
	KindBoolean Kind = "boolean"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
	KindAny     Kind = "any"
)

// Validator is the converted shape of one JSON Schema node.
type Validator struct {
	Kind Kind

	// Items is set when Kind == KindArray: the element validator.
	Items *Validator

	// Properties is set when Kind == KindObject and the schema declared
	// `properties`; nil with Kind == KindObject means "map of string to any".
	Properties map[string]*Validator
}

// Convert translates raw, a decoded JSON Schema document (as produced by
// unmarshaling a tool's inputSchema), into a Validator tree. Missing or
// unrecognized `type` values become KindAny rather than an error, matching
// the passthrough contract: the converter never fails a registration.
func Convert(raw map[string]any) *Validator {
	return convertNode(raw)
}

func convertNode(node map[string]any) *Validator {
	if node == nil {
		return &Validator{Kind: KindAny}
	}

	t, _ := node["type"].(string)
	switch Kind(t) {
	case KindString, KindNumber, KindInteger, KindBoolean:
		return &Validator{Kind: Kind(t)}

	case KindArray:
		items, _ := node["items"].(map[string]any)
		itemType, _ := items["type"].(string)
		switch Kind(itemType) {
		case KindString, KindNumber, KindInteger, KindBoolean:
			return &Validator{Kind: KindArray, Items: &Validator{Kind: Kind(itemType)}}
		default:
			return &Validator{Kind: KindArray, Items: &Validator{Kind: KindAny}}
		}

	case KindObject:
		props, ok := node["properties"].(map[string]any)
		if !ok {
			return &Validator{Kind: KindObject}
		}
		out := make(map[string]*Validator, len(props))
		for name, p := range props {
			child, _ := p.(map[string]any)
			out[name] = convertNode(child)
		}
		return &Validator{Kind: KindObject, Properties: out}

	default:
		return &Validator{Kind: KindAny}
	}
}
