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

// Scope is an organizational boundary over which roles are defined.
// Containment order for permission inheritance: account ⊇ project ⊇ device.
type Scope string

const (
	ScopeAccount Scope = "account"
	ScopeProject Scope = "project"
	ScopeDevice  Scope = "device"
)

// Role is a named permission bundle belonging to exactly one scope.
type Role string

const (
	// Account-scope roles.
	RoleAccountOwner  Role = "account-owner"
	RoleAccountAdmin  Role = "account-admin"
	RoleAccountMember Role = "account-member"

	// Project-scope roles.
	RoleProjectAdmin     Role = "project-admin"
	RoleProjectDeveloper Role = "project-developer"
	RoleProjectViewer    Role = "project-viewer"

	// Device-scope roles.
	RoleDeviceManager Role = "device-manager"
	RoleDeviceUser    Role = "device-user"
)

// roleScopes binds every known role to its declaring scope. A role listed
// in a table for any other scope is a configuration error.
var roleScopes = map[Role]Scope{
	RoleAccountOwner:  ScopeAccount,
	RoleAccountAdmin:  ScopeAccount,
	RoleAccountMember: ScopeAccount,

	RoleProjectAdmin:     ScopeProject,
	RoleProjectDeveloper: ScopeProject,
	RoleProjectViewer:    ScopeProject,

	RoleDeviceManager: ScopeDevice,
	RoleDeviceUser:    ScopeDevice,
}

// ScopeOf returns the scope a role belongs to. ok is false for roles the
// platform does not know about.
func ScopeOf(r Role) (Scope, bool) {
	s, ok := roleScopes[r]
	return s, ok
}

// Action is a named operation whose authorization the compiled matrix
// decides. The same action name appearing in multiple scope tables denotes
// the same logical permission.
type Action string

const (
	ActionManageAccount Action = "manage_account"
	ActionViewAccount   Action = "view_account"
	ActionInviteMember  Action = "invite_member"
	ActionRemoveMember  Action = "remove_member"
	ActionManageBilling Action = "manage_billing"

	ActionCreateProject Action = "create_project"
	ActionUpdateProject Action = "update_project"
	ActionDeleteProject Action = "delete_project"
	ActionViewProject   Action = "view_project"

	ActionCreateDevice  Action = "create_device"
	ActionUpdateDevice  Action = "update_device"
	ActionDeleteDevice  Action = "delete_device"
	ActionViewDevice    Action = "view_device"
	ActionOpenWorkspace Action = "open_workspace"

	ActionManageSessions Action = "manage_sessions"
	ActionViewAudit      Action = "view_audit"
)

// Table is one scope's declarative grant list: for each action the roles
// of that scope allowed to perform it. An empty role list is a valid
// declaration meaning "this scope has no opinion", not a denial.
type Table struct {
	Scope  Scope
	Grants map[Action][]Role
}

// DefaultTables returns the platform's static grant declarations. Account
// roles cascade into project- and device-level actions purely through the
// union performed by Compile; nothing here is order-sensitive.
func DefaultTables() []Table {
	return []Table{
		{
			Scope: ScopeAccount,
			Grants: map[Action][]Role{
				ActionManageAccount: {RoleAccountOwner},
				ActionViewAccount:   {RoleAccountOwner, RoleAccountAdmin, RoleAccountMember},
				ActionInviteMember:  {RoleAccountOwner, RoleAccountAdmin},
				ActionRemoveMember:  {RoleAccountOwner, RoleAccountAdmin},
				ActionManageBilling: {RoleAccountOwner},

				ActionCreateProject: {RoleAccountOwner, RoleAccountAdmin},
				ActionUpdateProject: {RoleAccountOwner, RoleAccountAdmin},
				ActionDeleteProject: {RoleAccountOwner, RoleAccountAdmin},
				ActionViewProject:   {RoleAccountOwner, RoleAccountAdmin, RoleAccountMember},

				ActionCreateDevice: {RoleAccountOwner, RoleAccountAdmin},
				// Device mutation is intentionally delegated: the account
				// table declares the action with no grants and the device
				// table supplies them.
				ActionUpdateDevice: {},
				ActionDeleteDevice: {RoleAccountOwner},
				ActionViewDevice:   {RoleAccountOwner, RoleAccountAdmin, RoleAccountMember},

				ActionManageSessions: {RoleAccountOwner, RoleAccountAdmin, RoleAccountMember},
				ActionViewAudit:      {RoleAccountOwner, RoleAccountAdmin},
			},
		},
		{
			Scope: ScopeProject,
			Grants: map[Action][]Role{
				ActionUpdateProject: {RoleProjectAdmin},
				ActionDeleteProject: {RoleProjectAdmin},
				ActionViewProject:   {RoleProjectAdmin, RoleProjectDeveloper, RoleProjectViewer},

				ActionCreateDevice:  {RoleProjectAdmin, RoleProjectDeveloper},
				ActionViewDevice:    {RoleProjectAdmin, RoleProjectDeveloper, RoleProjectViewer},
				ActionOpenWorkspace: {RoleProjectAdmin, RoleProjectDeveloper},
			},
		},
		{
			Scope: ScopeDevice,
			Grants: map[Action][]Role{
				ActionUpdateDevice:  {RoleDeviceManager},
				ActionDeleteDevice:  {RoleDeviceManager},
				ActionViewDevice:    {RoleDeviceManager, RoleDeviceUser},
				ActionOpenWorkspace: {RoleDeviceManager, RoleDeviceUser},
			},
		},
	}
}
