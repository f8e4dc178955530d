package router

import (
	"context"
	"errors"
	"fmt"

	"teacherbot/internal/broadcast"
	"teacherbot/internal/export"
	"teacherbot/pkg/logx"
	"teacherbot/pkg/tgui"
)

func (r *Router) callbackRoutes() map[string]callbackFunc {
	m := map[string]callbackFunc{
		nsMenu + ":main":     r.menuFunc(func(req *Request) tgui.Message { return mainMenu(req.Identity, req.Role) }),
		nsMenu + ":status":   r.menuFunc(func(*Request) tgui.Message { return statusMenu() }),
		nsMenu + ":users":    r.menuFunc(func(*Request) tgui.Message { return usersMenu() }),
		nsMenu + ":teachers": r.menuFunc(func(*Request) tgui.Message { return teachersMenu() }),
		nsMenu + ":system":   r.menuFunc(func(*Request) tgui.Message { return systemMenu() }),
		nsMenu + ":export":   r.menuFunc(func(*Request) tgui.Message { return exportMenu() }),
		nsMenu + ":compose": func(ctx context.Context, req *Request) error {
			r.beginCompose(ctx, req)
			return nil
		},

		nsStatus + ":last":   r.statusLast,
		nsStatus + ":search": r.statusSearch,

		nsDraft + ":send":   r.draftSend,
		nsDraft + ":edit":   r.draftEdit,
		nsDraft + ":cancel": r.draftCancel,

		nsAdmin + ":add":  r.adminAdd,
		nsAdmin + ":del":  r.adminDel,
		nsAdmin + ":list": r.adminList,

		nsTeacher + ":list":   r.teacherList,
		nsTeacher + ":find":   r.teacherFind,
		nsTeacher + ":edit":   r.teacherEdit,
		nsTeacher + ":delete": r.teacherDelete,
		nsTeacher + ":link":   r.teacherLink,

		nsSystem + ":setup":  r.systemSetup,
		nsSystem + ":help":   r.systemHelp,
		nsSystem + ":stats":  r.systemStats,
		nsSystem + ":backup": r.systemBackup,
	}
	for _, k := range []export.Kind{export.KindTeachers, export.KindMessages, export.KindAdmins, export.KindConfirmations, export.KindReport} {
		m[nsExport+":"+string(k)] = r.exportData
	}
	return m
}

// menuFunc navigates by deleting the old menu and sending the new one.
// Opening a menu abandons any pending text flow.
func (r *Router) menuFunc(build func(*Request) tgui.Message) callbackFunc {
	return func(ctx context.Context, req *Request) error {
		r.d.Sessions.End(req.Identity.UserID)
		r.replace(ctx, req, build(req))
		return nil
	}
}

// handleCallback answers the callback, gates on staff and dispatches. The
// acknowledgement button is open to teachers and answers itself.
func (r *Router) handleCallback(ctx context.Context, req *Request) error {
	if req.Callback.NS == nsAck && req.Callback.Action == broadcast.AckAction {
		return r.acknowledge(ctx, req)
	}

	if err := r.ad.AnswerCallback(ctx, req.CallbackID, "", false); err != nil {
		req.Logger.Debug("answer callback failed", logx.Err(err))
	}
	req.Role = r.d.Resolver.Resolve(ctx, req.Identity.UserID)
	if !req.Role.IsStaff() {
		r.edit(ctx, req, tgui.Plain(noPermission, nil))
		return nil
	}
	h, ok := r.callbacks[req.Callback.Route()]
	if !ok {
		req.Logger.Warn("unknown callback", logx.String("cb", req.Callback.Route()))
		r.replace(ctx, req, mainMenu(req.Identity, req.Role))
		return nil
	}
	if err := h(ctx, req); err != nil {
		r.failCallback(ctx, req, err)
	}
	return nil
}

// failCallback reports a handler error. The callback was already answered so
// the notice goes to the chat.
func (r *Router) failCallback(ctx context.Context, req *Request, err error) {
	req.Logger.Error("callback failed", logx.String("cb", req.Callback.Route()), logx.Err(err))
	if ctx.Err() != nil {
		return
	}
	r.send(ctx, req, tgui.Plain(fmt.Sprintf("❌ Ein Fehler ist aufgetreten.\n\nUser-ID: %d", req.Identity.UserID), backToMain()))
}

func (r *Router) acknowledge(ctx context.Context, req *Request) error {
	t, err := r.d.Broadcast.Acknowledge(ctx, int64(req.Ref.MessageID), req.Identity.UserID)
	var text string
	switch {
	case errors.Is(err, broadcast.ErrNotTeacher):
		text = "Du bist nicht als Lehrer registriert."
	case err != nil:
		req.Logger.Error("acknowledge failed", logx.Int("message_id", req.Ref.MessageID), logx.Err(err))
		text = "Fehler beim Speichern der Bestätigung."
	default:
		text = fmt.Sprintf("✅ Danke %s! Als gelesen markiert.", t.Name)
	}
	if aerr := r.ad.AnswerCallback(ctx, req.CallbackID, text, true); aerr != nil {
		req.Logger.Debug("answer callback failed", logx.Err(aerr))
	}
	return nil
}
