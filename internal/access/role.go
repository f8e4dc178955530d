// Package access maps identities to roles.
package access

import "teacherbot/internal/storage"

type Role int

const (
	None Role = iota
	Teacher
	Admin
	SuperAdmin
	UrSuperAdmin
)

func (r Role) String() string {
	switch r {
	case Teacher:
		return "teacher"
	case Admin:
		return "admin"
	case SuperAdmin:
		return "super_admin"
	case UrSuperAdmin:
		return "ur_super_admin"
	}
	return "none"
}

// Label is the user-facing name shown in menus.
func (r Role) Label() string {
	switch r {
	case Teacher:
		return "👨‍🏫 Lehrer"
	case Admin:
		return "👤 Admin"
	case SuperAdmin:
		return "⭐ Super-Admin"
	case UrSuperAdmin:
		return "👑 Ur-Super-Admin"
	}
	return "❌ Keine"
}

// IsStaff reports Admin, SuperAdmin or UrSuperAdmin.
func (r Role) IsStaff() bool {
	switch r {
	case Admin, SuperAdmin, UrSuperAdmin:
		return true
	}
	return false
}

// CanManage reports whether r may add or remove grants in table.
func (r Role) CanManage(table storage.RoleTable) bool {
	switch table {
	case storage.Admins:
		return r == SuperAdmin || r == UrSuperAdmin
	case storage.SuperAdmins:
		return r == UrSuperAdmin
	}
	return false
}

// Identity is the numeric principal plus an optional handle.
type Identity struct {
	UserID   int64
	Username string
}

// Handle renders "@username" or falls back to the numeric id.
func (i Identity) Handle() string {
	if i.Username != "" {
		return "@" + i.Username
	}
	return "ID " + itoa(i.UserID)
}
