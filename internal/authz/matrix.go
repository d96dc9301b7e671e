// Copyright 2026 The Devbench Authors
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

package authz

import (
	"errors"
	"fmt"
	"sort"
)

// Configuration errors. Compile failures are fatal at startup; the process
// must not serve traffic with a malformed permission matrix.
var (
	ErrDuplicateScopeTable = errors.New("duplicate table for scope")
	ErrUnknownRole         = errors.New("unknown role in grant table")
	ErrForeignRole         = errors.New("role declared outside its scope")
)

// Matrix is the compiled action→role-set index. Built once at startup from
// the declarative scope tables and read-only thereafter; safe for
// concurrent use without locking.
type Matrix struct {
	grants map[Action]map[Role]struct{}
}

// Compile flattens the scope tables into a single matrix. For every action
// the resulting role set is the union of that action's role lists across
// all tables that declare it. Union is commutative, so table order never
// affects the result; an empty role list contributes the empty set and
// cannot erase grants made by another scope.
func Compile(tables []Table) (*Matrix, error) {
	seen := make(map[Scope]bool, len(tables))
	grants := make(map[Action]map[Role]struct{})

	for _, t := range tables {
		if seen[t.Scope] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateScopeTable, t.Scope)
		}
		seen[t.Scope] = true

		for action, roles := range t.Grants {
			set, ok := grants[action]
			if !ok {
				set = make(map[Role]struct{})
				grants[action] = set
			}
			for _, role := range roles {
				scope, known := ScopeOf(role)
				if !known {
					return nil, fmt.Errorf("%w: %q (action %q)", ErrUnknownRole, role, action)
				}
				if scope != t.Scope {
					return nil, fmt.Errorf("%w: %q belongs to %s, declared under %s (action %q)",
						ErrForeignRole, role, scope, t.Scope, action)
				}
				set[role] = struct{}{}
			}
		}
	}

	return &Matrix{grants: grants}, nil
}

// MustCompile is Compile for static tables known to be well-formed, used
// in tests and wiring where a malformed table is a programmer error.
func MustCompile(tables []Table) *Matrix {
	m, err := Compile(tables)
	if err != nil {
		panic(err)
	}
	return m
}

// Resolve returns the roles permitted to perform action, sorted for
// deterministic output. Unknown actions resolve to the empty set; callers
// cannot distinguish "never declared" from "declared with no grants", and
// must not.
func (m *Matrix) Resolve(action Action) []Role {
	set, ok := m.grants[action]
	if !ok || len(set) == 0 {
		return nil
	}
	roles := make([]Role, 0, len(set))
	for r := range set {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// IsAuthorized reports whether role may perform action. Unknown actions
// and unknown roles are both unauthorized.
func (m *Matrix) IsAuthorized(action Action, role Role) bool {
	set, ok := m.grants[action]
	if !ok {
		return false
	}
	_, ok = set[role]
	return ok
}

// Actions returns every action the matrix knows about, sorted. Used by the
// permissions listing endpoint.
func (m *Matrix) Actions() []Action {
	actions := make([]Action, 0, len(m.grants))
	for a := range m.grants {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}

// AllowedFor returns the actions role may perform, sorted.
func (m *Matrix) AllowedFor(role Role) []Action {
	var actions []Action
	for a, set := range m.grants {
		if _, ok := set[role]; ok {
			actions = append(actions, a)
		}
	}
	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })
	return actions
}
