package router

import (
	"fmt"

	"teacherbot/internal/access"
	"teacherbot/pkg/tgui"
)

// Callback namespaces and actions.
const (
	nsMenu    = "menu"
	nsStatus  = "status"
	nsDraft   = "draft"
	nsAck     = "ack"
	nsAdmin   = "admin"
	nsTeacher = "teacher"
	nsSystem  = "system"
	nsExport  = "export"
)

func backToMain() *tgui.Inline {
	return tgui.NewInline().Row(tgui.Btn("🔙 Zurück zum Hauptmenü", tgui.Data(nsMenu, "main", "")))
}

// backAnd renders a "Zurück" button to the given menu plus the main menu.
func backAnd(menu string) *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("🔙 Zurück", tgui.Data(nsMenu, menu, ""))).
		Row(tgui.Btn("🏠 Hauptmenü", tgui.Data(nsMenu, "main", "")))
}

func mainMenu(id access.Identity, role access.Role) tgui.Message {
	name := id.Username
	if name == "" {
		name = "Admin"
	}
	kb := tgui.NewInline().Rows(
		tgui.Btn("📤 Nachricht senden", tgui.Data(nsMenu, "compose", "")),
		tgui.Btn("📊 Nachrichtenstatus", tgui.Data(nsMenu, "status", "")),
		tgui.Btn("👤 Usermanagement", tgui.Data(nsMenu, "users", "")),
		tgui.Btn("🎓 Lehrermanagement", tgui.Data(nsMenu, "teachers", "")),
		tgui.Btn("⚙️ System", tgui.Data(nsMenu, "system", "")),
	)
	return tgui.Plain(fmt.Sprintf("🤖 TELEGRAM LEHRER-BOT\n\n👋 Willkommen, %s!\n🔐 Berechtigung: %s\n\nWähle eine Option:", name, role.Label()), kb)
}

func statusMenu() tgui.Message {
	kb := tgui.NewInline().Rows(
		tgui.Btn("📈 Status letzte Nachricht", tgui.Data(nsStatus, "last", "")),
		tgui.Btn("🔍 Suche Nachricht", tgui.Data(nsStatus, "search", "")),
		tgui.Btn("🔙 Zurück zum Hauptmenü", tgui.Data(nsMenu, "main", "")),
	)
	return tgui.Plain("📊 NACHRICHTENSTATUS\n\nWas möchtest du prüfen?", kb)
}

func usersMenu() tgui.Message {
	kb := tgui.NewInline().Rows(
		tgui.Btn("➕ Admin hinzufügen", tgui.Data(nsAdmin, "add", "admin")),
		tgui.Btn("➖ Admin löschen", tgui.Data(nsAdmin, "del", "admin")),
		tgui.Btn("📋 Admin-Liste", tgui.Data(nsAdmin, "list", "admin")),
		tgui.Btn("⭐ Super-Admin hinzufügen", tgui.Data(nsAdmin, "add", "super")),
		tgui.Btn("🗑️ Super-Admin löschen", tgui.Data(nsAdmin, "del", "super")),
		tgui.Btn("📊 Super-Admin-Liste", tgui.Data(nsAdmin, "list", "super")),
		tgui.Btn("🔙 Zurück zum Hauptmenü", tgui.Data(nsMenu, "main", "")),
	)
	return tgui.Plain("👤 USERMANAGEMENT\n\nWähle eine Aktion:", kb)
}

func teachersMenu() tgui.Message {
	kb := tgui.NewInline().Rows(
		tgui.Btn("📋 Zeige Lehrerliste", tgui.Data(nsTeacher, "list", "0")),
		tgui.Btn("🔎 Suche Lehrer", tgui.Data(nsTeacher, "find", "")),
		tgui.Btn("✏️ Bearbeite Lehrer", tgui.Data(nsTeacher, "edit", "")),
		tgui.Btn("🗑️ Lösche Lehrer", tgui.Data(nsTeacher, "delete", "")),
		tgui.Btn("🔗 Registrierungslink anfordern", tgui.Data(nsTeacher, "link", "")),
		tgui.Btn("🔙 Zurück zum Hauptmenü", tgui.Data(nsMenu, "main", "")),
	)
	return tgui.Plain("🎓 LEHRERMANAGEMENT\n\nWas möchtest du tun?", kb)
}

func systemMenu() tgui.Message {
	kb := tgui.NewInline().Rows(
		tgui.Btn("🛠️ Setup Datenbank", tgui.Data(nsSystem, "setup", "")),
		tgui.Btn("❓ Hilfe & Befehle", tgui.Data(nsSystem, "help", "")),
		tgui.Btn("📈 Statistiken", tgui.Data(nsSystem, "stats", "")),
		tgui.Btn("📊 Export Daten", tgui.Data(nsMenu, "export", "")),
		tgui.Btn("💾 Datenbank Backup", tgui.Data(nsSystem, "backup", "")),
		tgui.Btn("🔙 Zurück zum Hauptmenü", tgui.Data(nsMenu, "main", "")),
	)
	return tgui.Plain("⚙️ SYSTEM\n\nWähle eine Option:", kb)
}

func exportMenu() tgui.Message {
	kb := tgui.NewInline().Rows(
		tgui.Btn("👥 Lehrerliste", tgui.Data(nsExport, "teachers", "")),
		tgui.Btn("💬 Nachrichten-Log", tgui.Data(nsExport, "messages", "")),
		tgui.Btn("👤 Admin-Liste", tgui.Data(nsExport, "admins", "")),
		tgui.Btn("📈 Lesebestätigungen", tgui.Data(nsExport, "confirmations", "")),
		tgui.Btn("📄 PDF-Bericht letzte Nachricht", tgui.Data(nsExport, "report", "")),
		tgui.Btn("🔙 Zurück", tgui.Data(nsMenu, "system", "")),
		tgui.Btn("🏠 Hauptmenü", tgui.Data(nsMenu, "main", "")),
	)
	return tgui.Plain("📊 DATEN EXPORTIEREN\n\nWelche Daten möchtest du exportieren?", kb)
}

func previewMenu(text string) tgui.Message {
	kb := tgui.NewInline().
		Row(
			tgui.Btn("✅ Senden", tgui.Data(nsDraft, "send", "")),
			tgui.Btn("✏️ Bearbeiten", tgui.Data(nsDraft, "edit", "")),
			tgui.Btn("❌ Abbrechen", tgui.Data(nsDraft, "cancel", "")),
		).
		Row(tgui.Btn("🔙 Zurück zum Hauptmenü", tgui.Data(nsMenu, "main", "")))
	return tgui.Plain(text, kb)
}

const noPermission = "Keine Berechtigung für diese Aktion."

func registrationLink(bot string) string {
	return fmt.Sprintf("https://t.me/%s?start=register", bot)
}

const helpText = `❓ HILFE & BEFEHLE:

📤 NACHRICHTEN:
• /menu - Hauptmenü öffnen
• Hauptmenü → Nachricht senden

📊 NACHRICHTENSTATUS:
• Hauptmenü → Nachrichtenstatus

👤 USERMANAGEMENT:
• /admins - Usermanagement öffnen

🎓 LEHRERMANAGEMENT:
• /teachers - Lehrermanagement öffnen

⚙️ SYSTEM:
• /stats - Statistiken anzeigen
• /help - Diese Hilfe anzeigen
• /cancel - Aktuelle Aktion abbrechen

🔗 REGISTRIERUNG:
• /start register - Lehrer-Registrierung

🎯 SCHNELLZUGRIFF:
• /menu - Zurück zum Hauptmenü`
