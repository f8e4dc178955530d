package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"teacherbot/internal/access"
	"teacherbot/internal/session"
	"teacherbot/internal/storage"
	"teacherbot/pkg/logx"
)

// handleMessage applies the text precedence: registration deep link, then
// /start and /menu, then an active session, then the non-staff onboarding,
// then quick commands, and finally the main menu.
func (r *Router) handleMessage(ctx context.Context, req *Request) error {
	if req.Command == "/start" && commandArg(req.Text) == "register" {
		out := r.d.Registration.Start(ctx, req.Identity)
		r.say(ctx, req, out.Text)
		return nil
	}
	if req.Command == "/start" || req.Command == "/menu" {
		if req.Role.IsStaff() {
			r.send(ctx, req, mainMenu(req.Identity, req.Role))
			return nil
		}
		return r.onboarding(ctx, req)
	}
	if s, ok := r.d.Sessions.Get(req.Identity.UserID); ok {
		return r.handleSession(ctx, req, s)
	}
	if !req.Role.IsStaff() {
		return r.onboarding(ctx, req)
	}
	switch req.Command {
	case "/help":
		r.send(ctx, req, systemMenu())
	case "/stats":
		return r.showStats(ctx, req, false)
	case "/teachers":
		r.send(ctx, req, teachersMenu())
	case "/admins":
		r.send(ctx, req, usersMenu())
	default:
		r.send(ctx, req, mainMenu(req.Identity, req.Role))
	}
	return nil
}

// onboarding greets teachers and points everyone else at registration.
func (r *Router) onboarding(ctx context.Context, req *Request) error {
	if req.Role == access.Teacher {
		t, err := r.d.Store.Teachers.ByUserID(ctx, req.Identity.UserID)
		if err == nil {
			r.say(ctx, req, fmt.Sprintf("Hallo %s!\n\nDu bist als Lehrer registriert.\nFür Admin-Funktionen wende dich an die Schulleitung.", t.Name))
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			req.Logger.Warn("teacher lookup failed", logx.Err(err))
		}
	}
	r.say(ctx, req, fmt.Sprintf("Keine Berechtigung!\n\nBist du Lehrer? Registriere dich:\n%s\n\nFür Admin-Zugang wende dich an die Schulleitung.\nUser-ID: %d",
		registrationLink(r.ad.BotUsername()), req.Identity.UserID))
	return nil
}

func isCancel(text string) bool { return strings.EqualFold(strings.TrimSpace(text), "/cancel") }

func (r *Router) handleSession(ctx context.Context, req *Request, s session.Session) error {
	if s.Kind == session.KindRegistration {
		out := r.d.Registration.Handle(ctx, req.Identity, s, req.Text)
		r.say(ctx, req, out.Text)
		return nil
	}
	// Staff flows end when the grant was revoked since the session began.
	if !req.Role.IsStaff() {
		r.d.Sessions.End(req.Identity.UserID)
		return r.onboarding(ctx, req)
	}
	switch s.Kind {
	case session.KindCompose:
		return r.composeInput(ctx, req)
	case session.KindSearch:
		return r.searchInput(ctx, req, s)
	case session.KindManageGrant:
		return r.grantInput(ctx, req, s)
	case session.KindEditTeacher:
		return r.editTeacherInput(ctx, req, s)
	case session.KindDeleteTeacher:
		return r.deleteTeacherInput(ctx, req)
	case session.KindFindTeacher:
		return r.findTeacherInput(ctx, req)
	}
	r.d.Sessions.End(req.Identity.UserID)
	r.send(ctx, req, mainMenu(req.Identity, req.Role))
	return nil
}
