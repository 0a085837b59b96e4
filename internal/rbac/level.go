package rbac

import "strings"

// RoleLevel is the ordered privilege tier attached to a principal.
// Higher levels are granted everything a lower level can do.
type RoleLevel int

const (
	// LevelNone marks the absence of an authenticated principal.
	LevelNone RoleLevel = 0
	// LevelMember is the baseline tier for any authenticated principal.
	LevelMember RoleLevel = 1
	// LevelCellLeader grants access scoped to specific cell groups or districts.
	LevelCellLeader RoleLevel = 2
	// LevelMinistryLeader grants access scoped to specific ministries.
	LevelMinistryLeader RoleLevel = 3
	// LevelAdmin grants unrestricted access and bypasses context checks.
	LevelAdmin RoleLevel = 4
)

var roleNames = map[RoleLevel]string{
	LevelMember:         "member",
	LevelCellLeader:     "cell_leader",
	LevelMinistryLeader: "ministry_leader",
	LevelAdmin:          "admin",
}

// Valid reports whether the level is one of the four assignable tiers.
func (l RoleLevel) Valid() bool {
	return l >= LevelMember && l <= LevelAdmin
}

// AtLeast reports whether the level satisfies the required tier.
func (l RoleLevel) AtLeast(required RoleLevel) bool {
	return l >= required
}

// Scoped reports whether the level requires a context map.
func (l RoleLevel) Scoped() bool {
	return l == LevelCellLeader || l == LevelMinistryLeader
}

// String returns the canonical role name, or "none" for unassigned levels.
func (l RoleLevel) String() string {
	if name, ok := roleNames[l]; ok {
		return name
	}
	return "none"
}

// ParseRoleLevel parses a role name into a level. Matching is
// case-insensitive and ignores spaces, underscores and hyphens, so
// "Cell Leader", "cell_leader" and "CELLLEADER" all parse the same.
// The second return value is false for unrecognized input so callers
// can reject bad data instead of silently downgrading it.
func ParseRoleLevel(s string) (RoleLevel, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "member", "1":
		return LevelMember, true
	case "cellleader", "cellgroupleader", "2":
		return LevelCellLeader, true
	case "ministryleader", "3":
		return LevelMinistryLeader, true
	case "admin", "administrator", "4":
		return LevelAdmin, true
	}
	return LevelNone, false
}

// RoleLevelOrMember parses a role name, falling back to Member for
// unrecognized input. Read paths use it to tolerate legacy rows; write
// paths must use ParseRoleLevel and reject instead.
func RoleLevelOrMember(s string) RoleLevel {
	if level, ok := ParseRoleLevel(s); ok {
		return level
	}
	return LevelMember
}
