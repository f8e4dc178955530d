package broadcast

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"teacherbot/internal/storage"
	"teacherbot/pkg/tgui"
)

// StatusText renders a read status. perSide <= 0 lists every teacher.
func StatusText(title string, st Status, perSide int) string {
	var b strings.Builder
	m := st.Message
	fmt.Fprintf(&b, "%s\n\n", title)
	fmt.Fprintf(&b, "📝 Nachricht: %s\n", tgui.TruncRunes(m.Text, 200))
	fmt.Fprintf(&b, "📅 Gesendet: %s\n", tgui.DateTimeDE(m.SentAt.Time))
	fmt.Fprintf(&b, "👤 Von: %s\n\n", m.SentBy)

	b.WriteString("📈 ÜBERSICHT:\n")
	fmt.Fprintf(&b, "✅ Bestätigt: %d/%d\n", st.ReadCount(), st.Total)
	fmt.Fprintf(&b, "❌ Nicht bestätigt: %d/%d\n\n", st.UnreadCount(), st.Total)

	if len(st.Read) > 0 {
		b.WriteString("✅ BESTÄTIGT:\n")
		writeTeachers(&b, st.Read, perSide)
		b.WriteString("\n")
	}
	if len(st.Unread) > 0 {
		b.WriteString("❌ NICHT BESTÄTIGT:\n")
		writeTeachers(&b, st.Unread, perSide)
	}
	return strings.TrimRight(b.String(), "\n")
}

func writeTeachers(b *strings.Builder, ts []storage.Teacher, limit int) {
	shown := ts
	if limit > 0 && len(ts) > limit {
		shown = ts[:limit]
	}
	for _, t := range shown {
		fmt.Fprintf(b, "• %s (%s)\n", t.Name, t.TeacherID)
	}
	if rest := len(ts) - len(shown); rest > 0 {
		fmt.Fprintf(b, "... und %d weitere\n", rest)
	}
}

func PreviewText(dr string) string {
	return fmt.Sprintf("📋 NACHRICHT-VORSCHAU:\n\n%s\n\nLänge: %d Zeichen\n\nWas möchtest du tun?", dr, utf8.RuneCountInString(dr))
}

func PublishedText(m storage.Message) string {
	return fmt.Sprintf("✅ NACHRICHT GESENDET!\n\n"+
		"📬 Message-ID: %d\n📅 Zeit: %s\n📊 Kanal: Lehrerinfos\n\n"+
		"Die Nachricht ist jetzt für alle Lehrer sichtbar.", m.MessageID, tgui.DateTimeDE(m.SentAt.Time))
}

// SearchText lists results 1-based for ordinal selection.
func SearchText(term string, results []storage.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 SUCHERGEBNISSE für \"%s\":\n\n", term)
	for i, m := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n\n", i+1, tgui.TruncRunes(m.Text, 80), tgui.DateDE(m.SentAt.Time))
	}
	b.WriteString("Schreibe die Nummer für Status-Details:")
	return b.String()
}
