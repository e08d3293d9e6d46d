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

package registry

import (
	"errors"
	"reflect"
	"testing"
)

func TestRegistry_PutThenGet(t *testing.T) {
	r := New()
	d := Descriptor{URL: "http://up1", Name: "up1", Version: "1.0.0"}
	r.Put(d.URL, d)

	got, ok := r.Get(d.URL)
	if !ok {
		t.Fatal("Get after Put: ok = false, want true")
	}
	if !reflect.DeepEqual(got, d) {
		t.Fatalf("Get after Put = %+v, want %+v", got, d)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := New()
	if _, ok := r.Get("http://nope"); ok {
		t.Fatal("Get on empty registry: ok = true, want false")
	}
}

func TestRegistry_SetPendingWithoutError(t *testing.T) {
	r := New()
	d := Descriptor{URL: "http://up1", Name: "up1"}
	r.SetPending(d.URL, d, nil)

	list := r.List()
	if len(list) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(list))
	}
	if list[0].State != StatePending {
		t.Fatalf("State = %q, want %q", list[0].State, StatePending)
	}
	if list[0].LastError != "" {
		t.Fatalf("LastError = %q, want empty", list[0].LastError)
	}
}

func TestRegistry_SetPendingWithError(t *testing.T) {
	r := New()
	d := Descriptor{URL: "http://up1", Name: "up1"}
	r.SetPending(d.URL, d, errors.New("dial tcp: connection refused"))

	list := r.List()
	if len(list) != 1 {
		t.Fatalf("len(List()) = %d, want 1", len(list))
	}
	if list[0].State != StateFailed {
		t.Fatalf("State = %q, want %q", list[0].State, StateFailed)
	}
	if list[0].LastError == "" {
		t.Fatal("LastError = empty, want the dial error text")
	}
}

func TestRegistry_PutOverwritesPending(t *testing.T) {
	r := New()
	d := Descriptor{URL: "http://up1", Name: "up1"}
	r.SetPending(d.URL, d, errors.New("boom"))
	r.Put(d.URL, d)

	got, ok := r.Get(d.URL)
	if !ok || !reflect.DeepEqual(got, d) {
		t.Fatalf("Get after Put = %+v, %v, want %+v, true", got, ok, d)
	}
	entries := r.List()
	if len(entries) != 1 || entries[0].State != StateRegistered {
		t.Fatalf("entries = %+v, want single Registered entry", entries)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := New()
	d := Descriptor{URL: "http://up1", Name: "up1"}
	r.Put(d.URL, d)
	r.Remove(d.URL)

	if _, ok := r.Get(d.URL); ok {
		t.Fatal("Get after Remove: ok = true, want false")
	}
	if len(r.List()) != 0 {
		t.Fatalf("len(List()) after Remove = %d, want 0", len(r.List()))
	}
}

func TestRegistry_RemoveUnknownIsNoop(t *testing.T) {
	r := New()
	r.Remove("http://never-registered")
	if len(r.List()) != 0 {
		t.Fatalf("len(List()) = %d, want 0", len(r.List()))
	}
}

func TestRegistry_ListSnapshotIsIndependent(t *testing.T) {
	r := New()
	r.Put("http://up1", Descriptor{URL: "http://up1", Name: "up1"})

	snapshot := r.List()
	r.Put("http://up2", Descriptor{URL: "http://up2", Name: "up2"})

	if len(snapshot) != 1 {
		t.Fatalf("len(snapshot) = %d, want 1 (snapshot must not observe later writes)", len(snapshot))
	}
	if len(r.List()) != 2 {
		t.Fatalf("len(List()) after second Put = %d, want 2", len(r.List()))
	}
}
