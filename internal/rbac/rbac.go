package rbac

import "strings"

type Role string
type Action string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

const (
	ActionOwn   Action = "own"
	ActionAdmin Action = "admin"
)

// AdminUsername is the one username that signs up as admin.
const AdminUsername = "admin"

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleUser:
		return action == ActionOwn
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleUser, RoleAdmin:
		return Role(role)
	default:
		return RoleUser
	}
}

// RoleForUsername assigns admin to the reserved username, ignoring case.
func RoleForUsername(username string) Role {
	if strings.EqualFold(strings.TrimSpace(username), AdminUsername) {
		return RoleAdmin
	}
	return RoleUser
}
