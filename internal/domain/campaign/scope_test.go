package campaign

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestParseScopeNormalizes(t *testing.T) {
	raw := json.RawMessage(`{"departments":[" eng ","FIN","eng",""],"applications":["b","a","b"]}`)
	scope, err := ParseScope(raw)
	if err != nil {
		t.Fatalf("ParseScope: %v", err)
	}
	if want := []string{"ENG", "FIN"}; !reflect.DeepEqual(scope.Departments, want) {
		t.Fatalf("departments = %v, want %v", scope.Departments, want)
	}
	if want := []string{"a", "b"}; !reflect.DeepEqual(scope.Applications, want) {
		t.Fatalf("applications = %v, want %v", scope.Applications, want)
	}
}

func TestParseScopeEmptyVariants(t *testing.T) {
	for _, raw := range []json.RawMessage{nil, json.RawMessage("null"), json.RawMessage("{}")} {
		scope, err := ParseScope(raw)
		if err != nil {
			t.Fatalf("ParseScope(%q): %v", raw, err)
		}
		if !scope.IsEmpty() {
			t.Fatalf("ParseScope(%q) should be empty, got %+v", raw, scope)
		}
	}
}

func TestParseScopeRejectsMalformed(t *testing.T) {
	if _, err := ParseScope(json.RawMessage(`["ENG"]`)); err == nil {
		t.Fatal("array scope should be rejected")
	}
}

func TestGrantFilter(t *testing.T) {
	scope := Scope{Departments: []string{"ENG"}, Applications: []string{"app-1"}}
	clause, args := scope.GrantFilter(3)
	want := " AND d.code = ANY($3) AND app.id::text = ANY($4)"
	if clause != want {
		t.Fatalf("clause = %q, want %q", clause, want)
	}
	if len(args) != 2 {
		t.Fatalf("args = %v", args)
	}
}

func TestGrantFilterEmptyScope(t *testing.T) {
	clause, args := (Scope{}).GrantFilter(2)
	if clause != "" || args != nil {
		t.Fatalf("empty scope should add no filter, got %q / %v", clause, args)
	}
}
