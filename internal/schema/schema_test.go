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

package schema

import "testing"

func TestConvert_Scalars(t *testing.T) {
	cases := map[string]Kind{
		"string":  KindString,
		"number":  KindNumber,
		"integer": KindInteger,
		"boolean": KindBoolean,
	}
	for typ, want := range cases {
		got := Convert(map[string]any{"type": typ})
		if got.Kind != want {
			t.Errorf("Convert(type=%q).Kind = %q, want %q", typ, got.Kind, want)
		}
	}
}

func TestConvert_NilIsAny(t *testing.T) {
	got := Convert(nil)
	if got.Kind != KindAny {
		t.Fatalf("Convert(nil).Kind = %q, want %q", got.Kind, KindAny)
	}
}

func TestConvert_UnknownTypeIsAny(t *testing.T) {
	got := Convert(map[string]any{"type": "oneOf"})
	if got.Kind != KindAny {
		t.Fatalf("Convert(type=oneOf).Kind = %q, want %q", got.Kind, KindAny)
	}
}

func TestConvert_MissingTypeIsAny(t *testing.T) {
	got := Convert(map[string]any{"description": "no type key here"})
	if got.Kind != KindAny {
		t.Fatalf("Convert(no type).Kind = %q, want %q", got.Kind, KindAny)
	}
}

func TestConvert_ArrayOfStrings(t *testing.T) {
	got := Convert(map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	})
	if got.Kind != KindArray {
		t.Fatalf("Kind = %q, want %q", got.Kind, KindArray)
	}
	if got.Items == nil || got.Items.Kind != KindString {
		t.Fatalf("Items = %+v, want Kind=string", got.Items)
	}
}

func TestConvert_ArrayWithoutItemTypeIsArrayOfAny(t *testing.T) {
	got := Convert(map[string]any{"type": "array"})
	if got.Kind != KindArray {
		t.Fatalf("Kind = %q, want %q", got.Kind, KindArray)
	}
	if got.Items == nil || got.Items.Kind != KindAny {
		t.Fatalf("Items = %+v, want Kind=any", got.Items)
	}
}

func TestConvert_ObjectWithoutPropertiesIsMapOfAny(t *testing.T) {
	got := Convert(map[string]any{"type": "object"})
	if got.Kind != KindObject {
		t.Fatalf("Kind = %q, want %q", got.Kind, KindObject)
	}
	if got.Properties != nil {
		t.Fatalf("Properties = %+v, want nil (map-of-any)", got.Properties)
	}
}

func TestConvert_ObjectWithNestedProperties(t *testing.T) {
	got := Convert(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
			"tags": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"meta": map[string]any{"type": "object"},
		},
	})
	if got.Kind != KindObject {
		t.Fatalf("Kind = %q, want %q", got.Kind, KindObject)
	}
	if len(got.Properties) != 3 {
		t.Fatalf("len(Properties) = %d, want 3", len(got.Properties))
	}
	if got.Properties["name"].Kind != KindString {
		t.Errorf("Properties[name].Kind = %q, want string", got.Properties["name"].Kind)
	}
	if got.Properties["tags"].Kind != KindArray || got.Properties["tags"].Items.Kind != KindString {
		t.Errorf("Properties[tags] = %+v, want array of string", got.Properties["tags"])
	}
	if got.Properties["meta"].Kind != KindObject {
		t.Errorf("Properties[meta].Kind = %q, want object", got.Properties["meta"].Kind)
	}
}
