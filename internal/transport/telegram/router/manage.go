package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"teacherbot/internal/access"
	"teacherbot/internal/session"
	"teacherbot/internal/storage"
	"teacherbot/pkg/logx"
	"teacherbot/pkg/tgui"
)

const (
	fieldTable     = "table"
	fieldOp        = "op"
	fieldTeacherID = "teacher_id"

	opAdd = "add"
	opDel = "del"

	teachersPerPage = 15
)

func tableLabel(t storage.RoleTable) string {
	if t == storage.SuperAdmins {
		return "Super-Admin"
	}
	return "Admin"
}

// grantTable parses the callback payload and checks the caller may manage it.
func (r *Router) grantTable(ctx context.Context, req *Request) (storage.RoleTable, bool) {
	table, ok := storage.ParseRoleTable(req.Callback.Payload)
	if !ok {
		r.replace(ctx, req, tgui.Plain("❌ Unbekannte Tabelle.", backAnd("users")))
		return 0, false
	}
	if !req.Role.CanManage(table) {
		r.replace(ctx, req, tgui.Plain(fmt.Sprintf("❌ Keine Berechtigung!\n\nNur höhere Rollen können %ss verwalten.", tableLabel(table)), backAnd("users")))
		return 0, false
	}
	return table, true
}

func (r *Router) adminAdd(ctx context.Context, req *Request) error { return r.beginGrant(ctx, req, opAdd) }

func (r *Router) adminDel(ctx context.Context, req *Request) error { return r.beginGrant(ctx, req, opDel) }

func (r *Router) beginGrant(ctx context.Context, req *Request, op string) error {
	table, ok := r.grantTable(ctx, req)
	if !ok {
		return nil
	}
	s := session.Session{Kind: session.KindManageGrant, Role: req.Role, Username: req.Identity.Username}
	s.Set(fieldTable, table.String())
	s.Set(fieldOp, op)
	r.d.Sessions.Begin(req.Identity.UserID, s)

	verb := "HINZUFÜGEN"
	if op == opDel {
		verb = "LÖSCHEN"
	}
	r.replace(ctx, req, tgui.Plain(fmt.Sprintf("👤 %s %s\n\nGib den @username oder die User-ID ein:\n\n/cancel zum Abbrechen",
		strings.ToUpper(tableLabel(table)), verb), nil))
	return nil
}

// grantTarget resolves "@username" through known teachers or parses a numeric id.
func (r *Router) grantTarget(ctx context.Context, input string) (access.Identity, string, error) {
	input = strings.TrimSpace(input)
	if name, ok := strings.CutPrefix(input, "@"); ok {
		t, err := r.d.Store.Teachers.ByUsername(ctx, name)
		if err != nil {
			return access.Identity{}, "", err
		}
		return access.Identity{UserID: t.UserID, Username: t.Username}, t.Name, nil
	}
	id, err := strconv.ParseInt(input, 10, 64)
	if err != nil || id <= 0 {
		return access.Identity{}, "", errBadTarget
	}
	if t, err := r.d.Store.Teachers.ByUserID(ctx, id); err == nil {
		return access.Identity{UserID: id, Username: t.Username}, t.Name, nil
	}
	return access.Identity{UserID: id}, "", nil
}

var errBadTarget = errors.New("router: target is neither @username nor user id")

func (r *Router) grantInput(ctx context.Context, req *Request, s session.Session) error {
	uid := req.Identity.UserID
	if isCancel(req.Text) {
		r.d.Sessions.End(uid)
		r.send(ctx, req, usersMenu())
		return nil
	}
	table, ok := storage.ParseRoleTable(s.Field(fieldTable))
	if !ok || !req.Role.CanManage(table) {
		r.d.Sessions.End(uid)
		r.say(ctx, req, noPermission)
		return nil
	}

	target, name, err := r.grantTarget(ctx, req.Text)
	switch {
	case errors.Is(err, errBadTarget):
		r.say(ctx, req, "❌ Ungültige Eingabe!\n\nBitte @username oder numerische User-ID eingeben oder /cancel.")
		return nil
	case errors.Is(err, storage.ErrNotFound):
		r.say(ctx, req, fmt.Sprintf("❌ %s ist unbekannt.\n\nBitte gib die numerische User-ID ein oder /cancel.", strings.TrimSpace(req.Text)))
		return nil
	case err != nil:
		return err
	}
	if r.d.Resolver.IsUrSuperAdmin(target.UserID) {
		r.d.Sessions.End(uid)
		r.send(ctx, req, tgui.Plain("❌ Dieser User ist Ur-Super-Admin und fest konfiguriert.", backAnd("users")))
		return nil
	}

	repo, err := r.d.Store.Grants(table)
	if err != nil {
		return err
	}
	label := tableLabel(table)
	r.d.Sessions.End(uid)

	if s.Field(fieldOp) == opDel {
		err := repo.Remove(ctx, target.UserID)
		if errors.Is(err, storage.ErrNotFound) {
			r.send(ctx, req, tgui.Plain(fmt.Sprintf("❌ %s ist kein %s.", target.Handle(), label), backAnd("users")))
			return nil
		}
		if err != nil {
			return err
		}
		req.Logger.Info("grant removed", logx.String("table", table.String()), logx.Int64("target", target.UserID))
		r.send(ctx, req, tgui.Plain(fmt.Sprintf("✅ %s als %s entfernt.", target.Handle(), label), backAnd("users")))
		return nil
	}

	err = repo.Add(ctx, storage.Grant{
		UserID:   target.UserID,
		Username: target.Username,
		Name:     name,
		AddedAt:  storage.At(time.Now()),
		AddedBy:  uid,
	})
	if errors.Is(err, storage.ErrConflict) {
		r.send(ctx, req, tgui.Plain(fmt.Sprintf("ℹ️ %s ist bereits vorhanden.", target.Handle()), backAnd("users")))
		return nil
	}
	if err != nil {
		return err
	}
	req.Logger.Info("grant added", logx.String("table", table.String()), logx.Int64("target", target.UserID))
	r.send(ctx, req, tgui.Plain(fmt.Sprintf("✅ %s als %s hinzugefügt!", target.Handle(), label), backAnd("users")))
	return nil
}

func (r *Router) adminList(ctx context.Context, req *Request) error {
	table, ok := storage.ParseRoleTable(req.Callback.Payload)
	if !ok {
		table = storage.Admins
	}
	repo, err := r.d.Store.Grants(table)
	if err != nil {
		return err
	}
	grants, err := repo.List(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📋 %s-LISTE (%d):\n\n", strings.ToUpper(tableLabel(table)), len(grants))
	if len(grants) == 0 {
		b.WriteString("Keine Einträge.")
	}
	for _, g := range grants {
		id := access.Identity{UserID: g.UserID, Username: g.Username}
		fmt.Fprintf(&b, "• %s (ID %d) seit %s\n", id.Handle(), g.UserID, tgui.DateDE(g.AddedAt.Time))
	}
	if table == storage.SuperAdmins {
		fmt.Fprintf(&b, "\n👑 Ur-Super-Admins (fest): %d", len(r.d.Resolver.AllowList()))
	}
	r.replace(ctx, req, tgui.Plain(strings.TrimRight(b.String(), "\n"), backAnd("users")))
	return nil
}

func (r *Router) teacherList(ctx context.Context, req *Request) error {
	teachers, err := r.d.Store.Teachers.List(ctx)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(req.Callback.Payload)
	p := tgui.Paginate(teachers, page, teachersPerPage)

	var b strings.Builder
	fmt.Fprintf(&b, "🎓 LEHRERLISTE (%d):\n\n", p.Total)
	if p.Total == 0 {
		b.WriteString("Noch keine Lehrer registriert.\n")
	}
	for _, t := range p.Items {
		fmt.Fprintf(&b, "• %s (%s)", t.Name, t.TeacherID)
		if t.Username != "" {
			fmt.Fprintf(&b, " @%s", t.Username)
		}
		fmt.Fprintf(&b, " - %s\n", tgui.DateDE(t.RegisteredAt.Time))
	}
	fmt.Fprintf(&b, "\n%s", p.Label())

	kb := tgui.NewInline()
	switch {
	case p.HasPrev && p.HasNext:
		kb.Row(
			tgui.Btn("⬅️", tgui.Data(nsTeacher, "list", strconv.Itoa(p.Index-1))),
			tgui.Btn("➡️", tgui.Data(nsTeacher, "list", strconv.Itoa(p.Index+1))),
		)
	case p.HasPrev:
		kb.Row(tgui.Btn("⬅️", tgui.Data(nsTeacher, "list", strconv.Itoa(p.Index-1))))
	case p.HasNext:
		kb.Row(tgui.Btn("➡️", tgui.Data(nsTeacher, "list", strconv.Itoa(p.Index+1))))
	}
	kb.Row(tgui.Btn("🔙 Zurück", tgui.Data(nsMenu, "teachers", "")))
	kb.Row(tgui.Btn("🏠 Hauptmenü", tgui.Data(nsMenu, "main", "")))
	r.replace(ctx, req, tgui.Plain(b.String(), kb))
	return nil
}

func (r *Router) beginTeacherSession(ctx context.Context, req *Request, kind session.Kind, prompt string) error {
	r.d.Sessions.Begin(req.Identity.UserID, session.Session{
		Kind:     kind,
		Step:     1,
		Role:     req.Role,
		Username: req.Identity.Username,
	})
	r.replace(ctx, req, tgui.Plain(prompt+"\n\n/cancel zum Abbrechen", nil))
	return nil
}

func (r *Router) teacherFind(ctx context.Context, req *Request) error {
	return r.beginTeacherSession(ctx, req, session.KindFindTeacher, "🔎 LEHRER SUCHEN\n\nGib Name, Lehrer-ID (z.B. ID_34) oder @username ein:")
}

func (r *Router) teacherEdit(ctx context.Context, req *Request) error {
	return r.beginTeacherSession(ctx, req, session.KindEditTeacher, "✏️ LEHRER BEARBEITEN\n\nGib die Lehrer-ID ein (z.B. ID_34 oder 34):")
}

func (r *Router) teacherDelete(ctx context.Context, req *Request) error {
	return r.beginTeacherSession(ctx, req, session.KindDeleteTeacher, "🗑️ LEHRER LÖSCHEN\n\nGib die Lehrer-ID ein (z.B. ID_34 oder 34):")
}

func (r *Router) teacherLink(ctx context.Context, req *Request) error {
	n, err := r.d.Store.Teachers.Count(ctx)
	if err != nil {
		return err
	}
	link := registrationLink(r.ad.BotUsername())
	kb := tgui.NewInline().
		Row(tgui.URLBtn("🔗 Link öffnen", link)).
		Row(tgui.Btn("🔙 Zurück", tgui.Data(nsMenu, "teachers", ""))).
		Row(tgui.Btn("🏠 Hauptmenü", tgui.Data(nsMenu, "main", "")))
	r.replace(ctx, req, tgui.Plain(fmt.Sprintf("🔗 REGISTRIERUNGSLINK\n\n%s\n\nTeile diesen Link mit den Lehrern.\n\n👥 Registrierte Lehrer: %d",
		link, n), kb))
	return nil
}

// normalizeTeacherID accepts "ID_34", "id_34" and "34".
func normalizeTeacherID(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 3 && strings.EqualFold(s[:3], "ID_") {
		s = s[3:]
	}
	if s == "" {
		return ""
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return ""
		}
	}
	return "ID_" + s
}

// lookupTeacher replies itself when the input is not a known teacher id.
func (r *Router) lookupTeacher(ctx context.Context, req *Request) (storage.Teacher, bool, error) {
	id := normalizeTeacherID(req.Text)
	if id == "" {
		r.say(ctx, req, "❌ Ungültige Lehrer-ID. Beispiel: ID_34 oder 34. Erneut eingeben oder /cancel.")
		return storage.Teacher{}, false, nil
	}
	t, err := r.d.Store.Teachers.ByTeacherID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		r.say(ctx, req, fmt.Sprintf("❌ Lehrer %s nicht gefunden. Erneut eingeben oder /cancel.", id))
		return storage.Teacher{}, false, nil
	}
	if err != nil {
		return storage.Teacher{}, false, err
	}
	return t, true, nil
}

func (r *Router) editTeacherInput(ctx context.Context, req *Request, s session.Session) error {
	uid := req.Identity.UserID
	if isCancel(req.Text) {
		r.d.Sessions.End(uid)
		r.send(ctx, req, teachersMenu())
		return nil
	}
	if s.Step <= 1 {
		t, ok, err := r.lookupTeacher(ctx, req)
		if !ok || err != nil {
			return err
		}
		r.d.Sessions.Advance(uid, func(s *session.Session) {
			s.Step = 2
			s.Set(fieldTeacherID, t.TeacherID)
		})
		r.say(ctx, req, fmt.Sprintf("Aktueller Name: %s (%s)\n\nGib den neuen Namen ein:", t.Name, t.TeacherID))
		return nil
	}

	name := strings.TrimSpace(req.Text)
	lo, hi := r.d.Registration.NameBounds()
	if n := utf8.RuneCountInString(name); n < lo || n > hi {
		r.say(ctx, req, fmt.Sprintf("❌ Name ungültig!\n\nLänge: %d-%d Zeichen\nDeine Eingabe: %d Zeichen\n\nErneut eingeben:", lo, hi, n))
		return nil
	}
	id := s.Field(fieldTeacherID)
	r.d.Sessions.End(uid)
	err := r.d.Store.Teachers.Rename(ctx, id, name)
	if errors.Is(err, storage.ErrNotFound) {
		r.send(ctx, req, tgui.Plain(fmt.Sprintf("❌ Lehrer %s existiert nicht mehr.", id), backAnd("teachers")))
		return nil
	}
	if err != nil {
		return err
	}
	req.Logger.Info("teacher renamed", logx.String("teacher_id", id))
	r.send(ctx, req, tgui.Plain(fmt.Sprintf("✅ Lehrer %s umbenannt in: %s", id, name), backAnd("teachers")))
	return nil
}

func (r *Router) deleteTeacherInput(ctx context.Context, req *Request) error {
	uid := req.Identity.UserID
	if isCancel(req.Text) {
		r.d.Sessions.End(uid)
		r.send(ctx, req, teachersMenu())
		return nil
	}
	t, ok, err := r.lookupTeacher(ctx, req)
	if !ok || err != nil {
		return err
	}
	r.d.Sessions.End(uid)
	err = r.d.Store.Teachers.Delete(ctx, t.TeacherID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	req.Logger.Info("teacher deleted", logx.String("teacher_id", t.TeacherID))
	r.send(ctx, req, tgui.Plain(fmt.Sprintf("✅ Lehrer %s (%s) gelöscht.", t.Name, t.TeacherID), backAnd("teachers")))
	return nil
}

func (r *Router) findTeacherInput(ctx context.Context, req *Request) error {
	uid := req.Identity.UserID
	if isCancel(req.Text) {
		r.d.Sessions.End(uid)
		r.send(ctx, req, teachersMenu())
		return nil
	}
	term := strings.TrimPrefix(strings.TrimSpace(req.Text), "@")
	if term == "" {
		r.say(ctx, req, "Bitte einen Suchbegriff eingeben oder /cancel.")
		return nil
	}
	found, err := r.d.Store.Teachers.Search(ctx, term)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		r.say(ctx, req, fmt.Sprintf("Keine Lehrer gefunden für \"%s\"\n\nVersuche einen anderen Begriff oder /cancel", term))
		return nil
	}
	r.d.Sessions.End(uid)
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 GEFUNDENE LEHRER (%d):\n\n", len(found))
	for _, t := range found {
		fmt.Fprintf(&b, "• %s (%s)\n  Username: %s\n  User-ID: %d\n  Seit: %s\n\n",
			t.Name, t.TeacherID, usernameOr(t.Username, "Nicht gesetzt"), t.UserID, tgui.DateDE(t.RegisteredAt.Time))
	}
	r.send(ctx, req, tgui.Plain(strings.TrimRight(b.String(), "\n"), backAnd("teachers")))
	return nil
}

func usernameOr(u, fallback string) string {
	if u == "" {
		return fallback
	}
	return "@" + u
}
