// internal/template/generate_test.go
package template

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestStarterKinds(t *testing.T) {
	testCases := []struct {
		name     string
		kind     string
		wantName string
	}{
		{name: "basic", kind: "basic", wantName: "basic"},
		{name: "empty kind means basic", kind: "", wantName: "basic"},
		{name: "case insensitive", kind: "Listing", wantName: "listing"},
		{name: "listing", kind: "listing", wantName: "listing"},
		{name: "directory", kind: "directory", wantName: "directory"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tpl, err := Starter(tc.kind)
			if err != nil {
				t.Fatalf("Starter(%q) returned error: %v", tc.kind, err)
			}
			if tpl.Name != tc.wantName {
				t.Errorf("Starter(%q).Name = %q, want %q", tc.kind, tpl.Name, tc.wantName)
			}
			if result := tpl.ValidateDetailed(); !result.Valid {
				t.Errorf("Starter(%q) produced an invalid template: %v", tc.kind, result.Errors)
			}
		})
	}
}

func TestStarterUnknownKind(t *testing.T) {
	_, err := Starter("graphql")
	if err == nil {
		t.Fatal("Starter(\"graphql\") should fail")
	}
	if !strings.Contains(err.Error(), "unknown template kind") {
		t.Errorf("error = %q, want mention of unknown template kind", err)
	}
}

func TestStarterRoundTripsThroughYAML(t *testing.T) {
	tpl, err := Starter(StarterDirectory)
	if err != nil {
		t.Fatalf("Starter: %v", err)
	}

	data, err := yaml.Marshal(tpl)
	if err != nil {
		t.Fatalf("yaml.Marshal: %v", err)
	}

	loaded, err := LoadFromBytes(data)
	if err != nil {
		t.Fatalf("LoadFromBytes: %v", err)
	}
	if loaded.Container == nil || !loaded.Container.FollowLinks {
		t.Error("followLinks lost in the round trip")
	}
	if len(loaded.Container.SubpageFields) != len(tpl.Container.SubpageFields) {
		t.Errorf("subpage fields = %d, want %d",
			len(loaded.Container.SubpageFields), len(tpl.Container.SubpageFields))
	}
	if loaded.Pagination == nil || loaded.Pagination.Kind != PaginationURLPattern {
		t.Error("pagination kind lost in the round trip")
	}
}
