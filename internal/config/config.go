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

// Package config loads the optional YAML descriptor of upstream servers,
// the boundary adapter named C6 in SPEC_FULL.md.
package config

import (
	"fmt"
	"net/url"
	"os"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/googleapis/mcgravity/internal/registry"
	"github.com/googleapis/mcgravity/internal/util"
)

// ServerEntry is one `servers.<key>` document, decoded strictly and then
// struct-tag validated.
type ServerEntry struct {
	URL         string   `yaml:"url" validate:"required,url"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

// File is the top-level shape of the config document.
type File struct {
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description"`
	Servers     map[string]ServerEntry `yaml:"servers" validate:"dive"`
}

// Load reads path with gopkg.in/yaml.v3 into a generic envelope, then
// strictly re-decodes the whole document and each server entry with
// goccy/go-yaml so unknown fields and type mismatches are caught, matching
// the teacher's two-library split between outer-envelope and per-resource
// decoding.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var raw map[string]any
	if err := yamlv3.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	dec, err := util.NewStrictDecoder(raw)
	if err != nil {
		return nil, fmt.Errorf("build config decoder: %w", err)
	}
	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	return &f, nil
}

// Descriptors converts the file's servers map into registry descriptors,
// applying the `name defaults to url.host` and `version defaults to 1.0.0`
// rules from the data model.
func (f *File) Descriptors() ([]registry.Descriptor, error) {
	out := make([]registry.Descriptor, 0, len(f.Servers))
	for key, s := range f.Servers {
		d, err := toDescriptor(s)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", key, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func toDescriptor(s ServerEntry) (registry.Descriptor, error) {
	u, err := url.Parse(s.URL)
	if err != nil || !u.IsAbs() {
		return registry.Descriptor{}, fmt.Errorf("invalid upstream url %q", s.URL)
	}

	name := s.Name
	if name == "" {
		name = u.Host
	}
	version := s.Version
	if version == "" {
		version = "1.0.0"
	}

	return registry.Descriptor{
		URL:         s.URL,
		Name:        name,
		Version:     version,
		Description: s.Description,
		Tags:        s.Tags,
	}, nil
}

// DescriptorFromURL builds a descriptor from a bare positional upstream URL,
// applying the same defaulting rules as the config file path.
func DescriptorFromURL(rawURL string) (registry.Descriptor, error) {
	return toDescriptor(ServerEntry{URL: rawURL})
}
