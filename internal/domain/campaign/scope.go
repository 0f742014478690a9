package campaign

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"accessgov/internal/domain/fault"
)

// Scope narrows which active grants a campaign certifies. Filters combine
// conjunctively; an empty scope selects every active grant in the
// organization. Department codes that match nothing simply yield zero
// candidates, launch never fails on them.
type Scope struct {
	Departments  []string `json:"departments,omitempty"`
	Applications []string `json:"applications,omitempty"`
}

func ParseScope(raw json.RawMessage) (Scope, error) {
	var scope Scope
	if len(raw) == 0 || string(raw) == "null" {
		return scope, nil
	}
	if err := json.Unmarshal(raw, &scope); err != nil {
		return Scope{}, fault.Validationf("scope", "must be an object with optional departments and applications arrays")
	}
	scope.Departments = normalizeCodes(scope.Departments)
	scope.Applications = normalizeIDs(scope.Applications)
	return scope, nil
}

func (s Scope) IsEmpty() bool {
	return len(s.Departments) == 0 && len(s.Applications) == 0
}

// GrantFilter renders the scope as SQL conditions against the aliased
// grant join (u = users, d = departments, app = applications).
// Placeholders start at next.
func (s Scope) GrantFilter(next int) (string, []any) {
	var clauses []string
	var args []any
	if len(s.Departments) > 0 {
		clauses = append(clauses, fmt.Sprintf("d.code = ANY($%d)", next+len(args)))
		args = append(args, s.Departments)
	}
	if len(s.Applications) > 0 {
		clauses = append(clauses, fmt.Sprintf("app.id::text = ANY($%d)", next+len(args)))
		args = append(args, s.Applications)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " AND " + strings.Join(clauses, " AND "), args
}

func normalizeCodes(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		code := strings.ToUpper(strings.TrimSpace(v))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func normalizeIDs(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		id := strings.TrimSpace(v)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
