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

package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mcgravity.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
name: my-gateway
version: 2.0.0
servers:
  billing:
    url: http://billing.internal:8080/sse
    name: billing-upstream
    tags: ["finance"]
  search:
    url: http://search.internal:9090/sse
`)

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Name != "my-gateway" || f.Version != "2.0.0" {
		t.Fatalf("File = %+v, want name=my-gateway version=2.0.0", f)
	}
	if len(f.Servers) != 2 {
		t.Fatalf("len(Servers) = %d, want 2", len(f.Servers))
	}

	descriptors, err := f.Descriptors()
	if err != nil {
		t.Fatalf("Descriptors: %v", err)
	}
	sort.Slice(descriptors, func(i, j int) bool { return descriptors[i].URL < descriptors[j].URL })

	if descriptors[0].Name != "billing-upstream" {
		t.Errorf("descriptors[0].Name = %q, want %q (explicit name honored)", descriptors[0].Name, "billing-upstream")
	}
	if descriptors[1].Name != "search.internal:9090" {
		t.Errorf("descriptors[1].Name = %q, want host default", descriptors[1].Name)
	}
	if descriptors[1].Version != "1.0.0" {
		t.Errorf("descriptors[1].Version = %q, want default 1.0.0", descriptors[1].Version)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, `
servers:
  billing:
    url: http://billing.internal:8080/sse
    totally_unknown_field: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load with unknown field: want error, got nil")
	}
}

func TestLoad_RejectsMissingURL(t *testing.T) {
	path := writeTempConfig(t, `
servers:
  billing:
    name: billing-upstream
`)
	if _, err := Load(path); err == nil {
		t.Fatal("Load without url: want validation error, got nil")
	}
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	path := writeTempConfig(t, "servers: [this is not, a valid: map")
	if _, err := Load(path); err == nil {
		t.Fatal("Load with malformed YAML: want error, got nil")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("Load missing file: want error, got nil")
	}
}

func TestDescriptorFromURL(t *testing.T) {
	d, err := DescriptorFromURL("http://upstream.example.com:1234/sse")
	if err != nil {
		t.Fatalf("DescriptorFromURL: %v", err)
	}
	if d.Name != "upstream.example.com:1234" {
		t.Errorf("Name = %q, want host default", d.Name)
	}
	if d.Version != "1.0.0" {
		t.Errorf("Version = %q, want default 1.0.0", d.Version)
	}
}

func TestDescriptorFromURL_RejectsRelative(t *testing.T) {
	if _, err := DescriptorFromURL("/just/a/path"); err == nil {
		t.Fatal("DescriptorFromURL with relative URL: want error, got nil")
	}
}
