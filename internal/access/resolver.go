package access

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"

	"teacherbot/internal/storage"
	"teacherbot/pkg/logx"
)

// GrantChecker reports whether a user holds a persisted grant.
type GrantChecker interface {
	Exists(ctx context.Context, userID int64) (bool, error)
}

// TeacherLookup finds a teacher by user id and returns storage.ErrNotFound otherwise.
type TeacherLookup interface {
	ByUserID(ctx context.Context, userID int64) (storage.Teacher, error)
}

// Resolver computes roles from the allow-list and the store. It never caches.
type Resolver struct {
	mu        sync.RWMutex
	allowList []int64

	supers   GrantChecker
	admins   GrantChecker
	teachers TeacherLookup
	log      logx.Logger
}

func NewResolver(allowList []int64, supers, admins GrantChecker, teachers TeacherLookup, log logx.Logger) *Resolver {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Resolver{supers: supers, admins: admins, teachers: teachers, log: log}
	r.SetAllowList(allowList)
	return r
}

// SetAllowList replaces the UrSuperAdmin ids (config hot reload).
func (r *Resolver) SetAllowList(ids []int64) {
	cp := slices.Clone(ids)
	r.mu.Lock()
	r.allowList = cp
	r.mu.Unlock()
}

func (r *Resolver) AllowList() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.allowList)
}

func (r *Resolver) IsUrSuperAdmin(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Contains(r.allowList, userID)
}

// Resolve returns the first matching role: allow-list, super_admins, admins,
// teachers. Store failures yield None and a warning.
func (r *Resolver) Resolve(ctx context.Context, userID int64) Role {
	if r.IsUrSuperAdmin(userID) {
		return UrSuperAdmin
	}
	if ok, err := r.supers.Exists(ctx, userID); err != nil {
		return r.failClosed(userID, "super_admins", err)
	} else if ok {
		return SuperAdmin
	}
	if ok, err := r.admins.Exists(ctx, userID); err != nil {
		return r.failClosed(userID, "admins", err)
	} else if ok {
		return Admin
	}
	_, err := r.teachers.ByUserID(ctx, userID)
	switch {
	case err == nil:
		return Teacher
	case errors.Is(err, storage.ErrNotFound):
		return None
	default:
		return r.failClosed(userID, "teachers", err)
	}
}

func (r *Resolver) failClosed(userID int64, table string, err error) Role {
	r.log.Warn("role lookup failed; denying", logx.Int64("user_id", userID), logx.String("table", table), logx.Err(err))
	return None
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
