package router

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"teacherbot/internal/broadcast"
	"teacherbot/internal/session"
	"teacherbot/internal/storage"
	"teacherbot/pkg/logx"
	"teacherbot/pkg/tgui"
)

const composePrompt = "📤 NACHRICHT SENDEN\n\nSchreibe deine Nachricht und sende sie ab:"

func (r *Router) beginCompose(ctx context.Context, req *Request) {
	r.d.Sessions.Begin(req.Identity.UserID, session.Session{
		Kind:     session.KindCompose,
		Role:     req.Role,
		Username: req.Identity.Username,
	})
	r.replace(ctx, req, tgui.Plain(composePrompt+"\n\n/cancel zum Abbrechen", nil))
}

func (r *Router) composeInput(ctx context.Context, req *Request) error {
	uid := req.Identity.UserID
	if isCancel(req.Text) {
		r.d.Sessions.End(uid)
		r.send(ctx, req, mainMenu(req.Identity, req.Role))
		return nil
	}
	dr, err := r.d.Broadcast.Compose(req.Identity, req.Role, req.Text)
	switch {
	case errors.Is(err, broadcast.ErrEmpty):
		r.say(ctx, req, "❌ Die Nachricht ist leer. Bitte schreibe einen Text oder /cancel.")
		return nil
	case errors.Is(err, broadcast.ErrTooLong):
		r.say(ctx, req, fmt.Sprintf("❌ Nachricht zu lang (max. %d Zeichen). Bitte kürze sie oder /cancel.", r.d.Broadcast.Config().Max()))
		return nil
	case err != nil:
		return err
	}
	r.d.Sessions.End(uid)
	r.send(ctx, req, previewMenu(broadcast.PreviewText(dr.Text)))
	return nil
}

func (r *Router) draftSend(ctx context.Context, req *Request) error {
	m, err := r.d.Broadcast.Publish(ctx, req.Identity)
	switch {
	case errors.Is(err, broadcast.ErrNoDraft):
		r.edit(ctx, req, tgui.Plain("❌ Keine Nachricht zum Senden gefunden.", backToMain()))
		return nil
	case errors.Is(err, broadcast.ErrChannelForbidden):
		r.edit(ctx, req, tgui.Plain("❌ Senden fehlgeschlagen!\n\nBot hat keine Berechtigung im Kanal.\nFüge den Bot als Admin hinzu.", backToMain()))
		return nil
	case err != nil:
		req.Logger.Error("publish failed", logx.Err(err))
		r.edit(ctx, req, tgui.Plain(fmt.Sprintf("❌ Senden fehlgeschlagen!\n\nUser-ID: %d", req.Identity.UserID), backToMain()))
		return nil
	}
	r.edit(ctx, req, tgui.Plain(broadcast.PublishedText(m), backToMain()))
	return nil
}

func (r *Router) draftEdit(ctx context.Context, req *Request) error {
	r.beginCompose(ctx, req)
	return nil
}

func (r *Router) draftCancel(ctx context.Context, req *Request) error {
	r.d.Broadcast.Discard(req.Identity.UserID)
	r.replace(ctx, req, mainMenu(req.Identity, req.Role))
	return nil
}

func (r *Router) statusLast(ctx context.Context, req *Request) error {
	st, err := r.d.Broadcast.LastStatus(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		r.replace(ctx, req, tgui.Plain("📊 NACHRICHTENSTATUS\n\n❌ Noch keine Nachrichten gesendet.", backAnd("status")))
		return nil
	}
	if err != nil {
		return err
	}
	r.replace(ctx, req, tgui.Plain(broadcast.StatusText("📊 STATUS LETZTE NACHRICHT:", st, 10), backAnd("status")))
	return nil
}

func (r *Router) statusSearch(ctx context.Context, req *Request) error {
	r.d.Sessions.Begin(req.Identity.UserID, session.Session{
		Kind:     session.KindSearch,
		Role:     req.Role,
		Username: req.Identity.Username,
	})
	r.replace(ctx, req, tgui.Plain("🔍 NACHRICHT SUCHEN\n\nGib einen Suchbegriff ein:\n\n/cancel zum Abbrechen", nil))
	return nil
}

// searchInput treats input as a search term until results exist; after that a
// number selects one of them.
func (r *Router) searchInput(ctx context.Context, req *Request, s session.Session) error {
	uid := req.Identity.UserID
	if isCancel(req.Text) {
		r.d.Sessions.End(uid)
		r.send(ctx, req, statusMenu())
		return nil
	}
	if len(s.Results) > 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(req.Text)); err == nil {
			if n < 1 || n > len(s.Results) {
				r.say(ctx, req, fmt.Sprintf("Ungültige Nummer. Bitte wähle 1-%d oder /cancel", len(s.Results)))
				return nil
			}
			st, err := r.d.Broadcast.Status(ctx, s.Results[n-1])
			if err != nil {
				return err
			}
			r.d.Sessions.End(uid)
			r.send(ctx, req, tgui.Plain(broadcast.StatusText("📊 NACHRICHTENSTATUS:", st, 0), backAnd("status")))
			return nil
		}
	}

	term := strings.TrimSpace(req.Text)
	found, err := r.d.Broadcast.Search(ctx, term, 0)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		r.say(ctx, req, fmt.Sprintf("Keine Nachrichten gefunden für \"%s\"\n\nVersuche einen anderen Begriff oder /cancel", term))
		return nil
	}
	ids := make([]int64, len(found))
	for i, m := range found {
		ids[i] = m.MessageID
	}
	r.d.Sessions.Advance(uid, func(s *session.Session) {
		s.Results = ids
		s.Set("term", term)
	})
	r.say(ctx, req, broadcast.SearchText(term, found))
	return nil
}
