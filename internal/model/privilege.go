package model

import "strings"

// Privilege is a coarse authorization tier. Levels are totally ordered by rank.
type Privilege string

const (
	PrivilegeBasic Privilege = "BASIC"
	PrivilegeAdmin Privilege = "ADMIN"
)

var privilegeRanks = map[Privilege]int{
	PrivilegeBasic: 1,
	PrivilegeAdmin: 99,
}

// Rank returns the numeric rank of p, or 0 for an unknown level.
func (p Privilege) Rank() int { return privilegeRanks[p] }

// Valid reports whether p is one of the known levels.
func (p Privilege) Valid() bool { return p.Rank() > 0 }

// ParsePrivilege accepts a level name in any case.
func ParsePrivilege(s string) (Privilege, bool) {
	p := Privilege(strings.ToUpper(strings.TrimSpace(s)))
	return p, p.Valid()
}

// TopPrivilege is the highest known level; at least one active user must
// hold it at all times.
func TopPrivilege() Privilege {
	top := PrivilegeBasic
	for p, r := range privilegeRanks {
		if r > top.Rank() {
			top = p
		}
	}
	return top
}

// HasAtLeast reports whether subject ranks at or above required.
func HasAtLeast(subject, required Privilege) bool {
	return subject.Valid() && subject.Rank() >= required.Rank()
}

// CanManage reports whether an actor may modify or delete a target principal.
// The actor must rank strictly higher.
func CanManage(actor, target Privilege) bool {
	return actor.Valid() && actor.Rank() > target.Rank()
}

// CanAssignPrivilege reports whether actor may grant level, to itself or to
// anyone else. Nobody can grant above their own rank.
func CanAssignPrivilege(actor, level Privilege) bool {
	return actor.Valid() && level.Valid() && level.Rank() <= actor.Rank()
}

// CanSeeSoftDeleted reports whether actor may list soft-deleted records.
func CanSeeSoftDeleted(actor Privilege) bool {
	return HasAtLeast(actor, PrivilegeAdmin)
}
