// Package rbac maps dashboard roles to the actions they may perform.
package rbac

type Role string
type Action string

const (
	RoleViewer    Role = "viewer"
	RoleCommenter Role = "commenter"
	RoleEditor    Role = "editor"
	RoleAdmin     Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionWrite   Action = "write"
	ActionApprove Action = "approve"
	ActionAdmin   Action = "admin"
)

// grants lists what each role adds on top of the role before it.
var grants = []struct {
	role    Role
	actions []Action
}{
	{RoleViewer, []Action{ActionRead}},
	{RoleCommenter, []Action{ActionComment}},
	{RoleEditor, []Action{ActionWrite, ActionApprove}},
	{RoleAdmin, []Action{ActionAdmin}},
}

var permissions = buildPermissions()

func buildPermissions() map[Role]map[Action]bool {
	out := make(map[Role]map[Action]bool, len(grants))
	inherited := make([]Action, 0)
	for _, grant := range grants {
		inherited = append(inherited, grant.actions...)
		set := make(map[Action]bool, len(inherited))
		for _, action := range inherited {
			set[action] = true
		}
		out[grant.role] = set
	}
	return out
}

// Can reports whether role may perform action. Unknown roles may do nothing.
func Can(role Role, action Action) bool {
	return permissions[role][action]
}

// Roles returns every role from least to most privileged.
func Roles() []Role {
	roles := make([]Role, 0, len(grants))
	for _, grant := range grants {
		roles = append(roles, grant.role)
	}
	return roles
}

// Normalize maps unknown role names to viewer.
func Normalize(role string) Role {
	if _, ok := permissions[Role(role)]; ok {
		return Role(role)
	}
	return RoleViewer
}

func Valid(role string) bool {
	_, ok := permissions[Role(role)]
	return ok
}
