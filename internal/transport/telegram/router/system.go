package router

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"teacherbot/internal/export"
	"teacherbot/internal/storage"
	"teacherbot/internal/transport"
	"teacherbot/pkg/logx"
	"teacherbot/pkg/tgui"
)

func (r *Router) showStats(ctx context.Context, req *Request, inPlace bool) error {
	c, err := r.d.Store.Stats(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("📈 STATISTIKEN:\n\n"+
		"👥 Lehrer: %d\n👤 Admins: %d\n⭐ Super-Admins: %d\n👑 Ur-Super-Admins: %d\n"+
		"💬 Nachrichten: %d\n✅ Lesebestätigungen: %d\n\n📅 Stand: %s",
		c.Teachers, c.Admins, c.SuperAdmins, len(r.d.Resolver.AllowList()),
		c.Messages, c.Confirmations, tgui.DateTimeDE(time.Now()))
	m := tgui.Plain(text, backAnd("system"))
	if inPlace {
		r.replace(ctx, req, m)
		return nil
	}
	r.send(ctx, req, m)
	return nil
}

func (r *Router) systemStats(ctx context.Context, req *Request) error { return r.showStats(ctx, req, true) }

func (r *Router) systemHelp(ctx context.Context, req *Request) error {
	r.replace(ctx, req, tgui.Plain(helpText, backAnd("system")))
	return nil
}

func (r *Router) systemSetup(ctx context.Context, req *Request) error {
	err := r.d.Store.Migrate(ctx)
	if err == nil {
		err = r.d.Store.Ping(ctx)
	}
	if err != nil {
		req.Logger.Error("database setup failed", logx.Err(err))
		r.replace(ctx, req, tgui.Plain(fmt.Sprintf("❌ Datenbank-Setup fehlgeschlagen.\n\nUser-ID: %d", req.Identity.UserID), backAnd("system")))
		return nil
	}
	r.replace(ctx, req, tgui.Plain("✅ DATENBANK BEREIT\n\nAlle Tabellen sind angelegt und erreichbar.", backAnd("system")))
	return nil
}

// systemBackup snapshots into a transient file, uploads it and removes it.
func (r *Router) systemBackup(ctx context.Context, req *Request) error {
	dir := r.d.BackupDir
	if dir == "" {
		dir = os.TempDir()
	}
	name := fmt.Sprintf("teacher_bot_backup_%s.db", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, uuid.NewString()+"_"+name)

	err := r.d.Store.Backup(ctx, path)
	if errors.Is(err, storage.ErrBackupUnsupported) {
		r.replace(ctx, req, tgui.Plain("ℹ️ Backup über den Bot ist nur mit SQLite möglich.\n\nFür PostgreSQL bitte pg_dump auf dem Server verwenden.", backAnd("system")))
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			req.Logger.Warn("backup cleanup failed", logx.String("path", path), logx.Err(err))
		}
	}()
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	doc := transport.Document{
		Name:    name,
		Data:    data,
		Caption: fmt.Sprintf("💾 DATENBANK BACKUP\n\n📅 %s\n📦 %.1f KB", tgui.DateTimeDE(time.Now()), float64(len(data))/1024),
	}
	if _, err := r.ad.SendDocument(ctx, req.Chat, doc); err != nil {
		return err
	}
	req.Logger.Info("backup sent", logx.Int("bytes", len(data)))
	r.send(ctx, req, systemMenu())
	return nil
}

func (r *Router) exportData(ctx context.Context, req *Request) error {
	kind, ok := export.ParseKind(req.Callback.Action)
	if !ok {
		r.replace(ctx, req, exportMenu())
		return nil
	}
	doc, err := r.d.Export.Build(ctx, kind)
	if errors.Is(err, export.ErrNoData) {
		r.replace(ctx, req, tgui.Plain("ℹ️ Keine Daten zum Exportieren vorhanden.", backAnd("export")))
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := r.ad.SendDocument(ctx, req.Chat, doc); err != nil {
		return err
	}
	req.Logger.Info("export sent", logx.String("kind", string(kind)), logx.String("file", doc.Name))
	r.send(ctx, req, exportMenu())
	return nil
}
