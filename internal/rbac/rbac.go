// Package rbac holds the authorization policy: role definitions and the
// pure per-resource predicates every handler consults. A multi-role actor
// is granted the union of each role's individual grants.
package rbac

import (
	"fmt"
	"sort"
)

type Role string

const (
	RoleAdmin       Role = "Admin"
	RoleLeadEditor  Role = "Lead Editor"
	RoleEditor      Role = "Editor"
	RoleContributor Role = "Contributor"
)

// Visibility values a note can carry.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
	VisibilityShared  = "shared"
)

// RoleSet is a non-empty set of valid roles. Construct via ParseRoles or
// DefaultRoles; the zero value is invalid.
type RoleSet map[Role]struct{}

// ParseRoles validates a raw role list. Unknown values and empty sets are
// rejected.
func ParseRoles(names []string) (RoleSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("roles must not be empty")
	}
	set := make(RoleSet, len(names))
	for _, name := range names {
		switch role := Role(name); role {
		case RoleAdmin, RoleLeadEditor, RoleEditor, RoleContributor:
			set[role] = struct{}{}
		default:
			return nil, fmt.Errorf("invalid role: %s", name)
		}
	}
	return set, nil
}

// DefaultRoles is the role set assigned when a signup names none.
func DefaultRoles() RoleSet {
	return RoleSet{RoleContributor: {}}
}

func (s RoleSet) Has(role Role) bool {
	_, ok := s[role]
	return ok
}

// HasAny reports whether the set contains at least one of the given roles.
// This is the single shared "has any of roles" check; predicates below
// never re-derive it.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, role := range roles {
		if s.Has(role) {
			return true
		}
	}
	return false
}

// Names returns the roles in stable order for serialization.
func (s RoleSet) Names() []string {
	names := make([]string, 0, len(s))
	for role := range s {
		names = append(names, string(role))
	}
	sort.Strings(names)
	return names
}

// Decision is the result of a policy predicate. Denials always carry a
// reason surfaced to the caller; nothing is silently filtered.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(reason string) Decision {
	return Decision{Reason: reason}
}

// CanCreateNote permits any authenticated user.
func CanCreateNote(RoleSet) Decision {
	return allow()
}

// CanEditNote covers both edit and delete: Admin, Editor, or Lead Editor,
// or the note's owner.
func CanEditNote(actor RoleSet, actorID, ownerID int64) Decision {
	if actor.HasAny(RoleAdmin, RoleEditor, RoleLeadEditor) || actorID == ownerID {
		return allow()
	}
	return deny("you do not have permission to modify this note")
}

// CanViewNote permits Admin, the owner, or anyone when the note is not
// private.
func CanViewNote(actor RoleSet, actorID, ownerID int64, visibility string) Decision {
	if actor.Has(RoleAdmin) || actorID == ownerID || visibility != VisibilityPrivate {
		return allow()
	}
	return deny("access denied to this note")
}

// CanCreateGroup permits Admin or Lead Editor.
func CanCreateGroup(actor RoleSet) Decision {
	if actor.HasAny(RoleAdmin, RoleLeadEditor) {
		return allow()
	}
	return deny("only Lead Editors and Admins can create groups")
}

// CanManageGroup covers edit and delete: Admin, or a Lead Editor who is
// the group's lead editor.
func CanManageGroup(actor RoleSet, actorID, leadEditorID int64) Decision {
	if actor.Has(RoleAdmin) || (actor.Has(RoleLeadEditor) && actorID == leadEditorID) {
		return allow()
	}
	return deny("you do not have permission to modify this group")
}

// CanManageComment covers edit and delete: Admin, Editor, or Lead Editor,
// or the comment's author.
func CanManageComment(actor RoleSet, actorID, authorID int64) Decision {
	if actor.HasAny(RoleAdmin, RoleEditor, RoleLeadEditor) || actorID == authorID {
		return allow()
	}
	return deny("you do not have permission to modify this comment")
}

// CanManageTag permits Admin, Editor, or Lead Editor to delete tags from
// the shared vocabulary. Any user may still mint tags implicitly by
// tagging a note.
func CanManageTag(actor RoleSet) Decision {
	if actor.HasAny(RoleAdmin, RoleEditor, RoleLeadEditor) {
		return allow()
	}
	return deny("you do not have permission to manage tags")
}

// CanManageNotebook covers edit and delete: Admin or Lead Editor, or the
// notebook's owner.
func CanManageNotebook(actor RoleSet, actorID, ownerID int64) Decision {
	if actor.HasAny(RoleAdmin, RoleLeadEditor) || actorID == ownerID {
		return allow()
	}
	return deny("you do not have permission to modify this notebook")
}

// CanSeeAllNotes reports whether list queries skip the owner/visibility
// filter.
func CanSeeAllNotes(actor RoleSet) bool {
	return actor.Has(RoleAdmin)
}

// CanSeeAllGroups reports whether list queries skip the member-or-lead
// filter.
func CanSeeAllGroups(actor RoleSet) bool {
	return actor.HasAny(RoleAdmin, RoleLeadEditor)
}

// CanListUsers permits Admin only.
func CanListUsers(actor RoleSet) Decision {
	if actor.Has(RoleAdmin) {
		return allow()
	}
	return deny("only Admins can list users")
}
