package directory

import (
	"reflect"
	"testing"
)

func TestBuildUpdateSetFiltersUnknownKeys(t *testing.T) {
	set, args := buildUpdateSet(userUpdatableFields, map[string]any{
		"firstName":    "Ada",
		"passwordHash": "nope",
		"role":         "manager",
		"id":           "deadbeef",
	}, 2)

	wantSet := []string{"first_name = $3", "role = $4"}
	if !reflect.DeepEqual(set, wantSet) {
		t.Fatalf("set = %v, want %v", set, wantSet)
	}
	wantArgs := []any{"Ada", "manager"}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args = %v, want %v", args, wantArgs)
	}
}

func TestBuildUpdateSetEmpty(t *testing.T) {
	set, args := buildUpdateSet(applicationUpdatableFields, map[string]any{"owner": "x"}, 2)
	if len(set) != 0 || len(args) != 0 {
		t.Fatalf("expected empty set, got %v / %v", set, args)
	}
}

func TestBuildUpdateSetStableOrder(t *testing.T) {
	first, _ := buildUpdateSet(applicationUpdatableFields, map[string]any{
		"status": "retired", "name": "ERP", "criticality": "high",
	}, 1)
	second, _ := buildUpdateSet(applicationUpdatableFields, map[string]any{
		"criticality": "high", "name": "ERP", "status": "retired",
	}, 1)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("order not stable: %v vs %v", first, second)
	}
}
