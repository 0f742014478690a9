package directory

import (
	"fmt"
	"sort"
)

// Updatable field maps translate payload keys to columns. Anything not
// listed here is dropped before it can reach a SQL statement.
var userUpdatableFields = map[string]string{
	"firstName":    "first_name",
	"lastName":     "last_name",
	"role":         "role",
	"departmentId": "department_id",
	"status":       "status",
}

var applicationUpdatableFields = map[string]string{
	"name":        "name",
	"description": "description",
	"ownerUserId": "owner_user_id",
	"criticality": "criticality",
	"status":      "status",
}

// buildUpdateSet returns SET clauses and args for the allowed subset of
// fields. Placeholders start after `reserved` leading args. Keys are applied
// in sorted order so generated SQL is stable.
func buildUpdateSet(allowed map[string]string, fields map[string]any, reserved int) ([]string, []any) {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if _, ok := allowed[key]; ok {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	set := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		set = append(set, fmt.Sprintf("%s = $%d", allowed[key], reserved+len(args)+1))
		args = append(args, fields[key])
	}
	return set, args
}
