package domain

import "strings"

const (
	RoleAdmin        = "admin"
	RoleSocialWorker = "social_worker"
	RoleVolunteer    = "volunteer"
)

var knownRoles = map[string]bool{
	RoleAdmin:        true,
	RoleSocialWorker: true,
	RoleVolunteer:    true,
}

// privileged roles can only be granted by an admin.
var privilegedRoles = map[string]bool{
	RoleAdmin: true,
}

func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func IsKnownRole(role string) bool {
	return knownRoles[NormalizeRole(role)]
}

func IsPrivilegedRole(role string) bool {
	return privilegedRoles[NormalizeRole(role)]
}

func KnownRoles() []string {
	return []string{RoleAdmin, RoleSocialWorker, RoleVolunteer}
}
