package discord

import (
	"slices"

	"github.com/bwmarrin/discordgo"
)

// PermissionChecker decides whether a guild member administers the chat.
type PermissionChecker struct {
	adminRoleIDs []string
}

// NewPermissionChecker creates a PermissionChecker that treats members with
// any of adminRoleIDs as admins, in addition to members holding the
// Administrator permission.
func NewPermissionChecker(adminRoleIDs ...string) *PermissionChecker {
	return &PermissionChecker{adminRoleIDs: slices.Clone(adminRoleIDs)}
}

// IsAdmin reports whether member is a chat admin. Members of direct messages
// (nil) never are. The permission bit is only populated on interactions;
// plain messages rely on the configured roles.
func (p *PermissionChecker) IsAdmin(member *discordgo.Member) bool {
	if member == nil {
		return false
	}
	if member.Permissions&discordgo.PermissionAdministrator != 0 {
		return true
	}
	for _, role := range member.Roles {
		if slices.Contains(p.adminRoleIDs, role) {
			return true
		}
	}
	return false
}
