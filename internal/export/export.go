// Package export renders store contents as CSV files and a PDF read report.
package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"teacherbot/internal/broadcast"
	"teacherbot/internal/storage"
	"teacherbot/internal/transport"
	"teacherbot/pkg/tgui"
)

type Kind string

const (
	KindTeachers      Kind = "teachers"
	KindMessages      Kind = "messages"
	KindAdmins        Kind = "admins"
	KindConfirmations Kind = "confirmations"
	KindReport        Kind = "report"
)

var (
	ErrNoData      = errors.New("export: no data")
	ErrUnknownKind = errors.New("export: unknown kind")
)

func ParseKind(s string) (Kind, bool) {
	switch k := Kind(s); k {
	case KindTeachers, KindMessages, KindAdmins, KindConfirmations, KindReport:
		return k, true
	}
	return "", false
}

// StatusFunc yields the read status of the latest broadcast.
type StatusFunc func(ctx context.Context) (broadcast.Status, error)

type Exporter struct {
	store  *storage.Store
	status StatusFunc
	now    func() time.Time
}

func New(store *storage.Store, status StatusFunc) *Exporter {
	return &Exporter{store: store, status: status, now: time.Now}
}

// Build renders kind as an upload. ErrNoData is returned for empty tables.
func (e *Exporter) Build(ctx context.Context, kind Kind) (transport.Document, error) {
	if kind == KindReport {
		return e.report(ctx)
	}
	var (
		data Dataset
		base string
		err  error
	)
	switch kind {
	case KindTeachers:
		data, err = e.teachers(ctx)
		base = "lehrerliste"
	case KindMessages:
		data, err = e.messages(ctx)
		base = "nachrichten"
	case KindAdmins:
		data, err = e.admins(ctx)
		base = "adminliste"
	case KindConfirmations:
		data, err = e.confirmations(ctx)
		base = "lesebestaetigung"
	default:
		return transport.Document{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return transport.Document{}, err
	}
	if data.Len() == 0 {
		return transport.Document{}, ErrNoData
	}
	b, err := RenderCSV(data)
	if err != nil {
		return transport.Document{}, err
	}
	name := fmt.Sprintf("%s_%s.csv", base, e.now().Format("2006-01-02"))
	return transport.Document{Name: name, Data: b, Caption: e.caption(kind, name, data.Len())}, nil
}

func (e *Exporter) caption(kind Kind, name string, n int) string {
	return fmt.Sprintf("📊 %s EXPORT\n\n📄 %s\n📊 %d Einträge\n📅 Erstellt: %s",
		strings.ToUpper(string(kind)), name, n, tgui.DateTimeDE(e.now()))
}

func (e *Exporter) teachers(ctx context.Context) (Dataset, error) {
	ts, err := e.store.Teachers.List(ctx)
	if err != nil {
		return Dataset{}, err
	}
	d := Dataset{Headers: []string{"Name", "Lehrer_ID", "Username", "User_ID", "Registriert"}}
	for _, t := range ts {
		d.Rows = append(d.Rows, map[string]string{
			"Name":        t.Name,
			"Lehrer_ID":   t.TeacherID,
			"Username":    t.Username,
			"User_ID":     strconv.FormatInt(t.UserID, 10),
			"Registriert": tgui.DateDE(t.RegisteredAt.Time),
		})
	}
	return d, nil
}

func (e *Exporter) messages(ctx context.Context) (Dataset, error) {
	ms, err := e.store.Messages.Recent(ctx, 100)
	if err != nil {
		return Dataset{}, err
	}
	d := Dataset{Headers: []string{"Text", "Gesendet_von", "User_ID", "Gesendet_am", "Message_ID"}}
	for _, m := range ms {
		d.Rows = append(d.Rows, map[string]string{
			"Text":         m.Text,
			"Gesendet_von": m.SentBy,
			"User_ID":      strconv.FormatInt(m.SentByUserID, 10),
			"Gesendet_am":  tgui.DateTimeDE(m.SentAt.Time),
			"Message_ID":   strconv.FormatInt(m.MessageID, 10),
		})
	}
	return d, nil
}

func (e *Exporter) admins(ctx context.Context) (Dataset, error) {
	d := Dataset{Headers: []string{"Name", "Username", "User_ID", "Typ", "Hinzugefuegt"}}
	for _, g := range []struct {
		repo  *storage.GrantRepo
		label string
	}{{e.store.Admins, "Admin"}, {e.store.SuperAdmins, "Super-Admin"}} {
		rows, err := g.repo.List(ctx)
		if err != nil {
			return Dataset{}, err
		}
		for _, a := range rows {
			d.Rows = append(d.Rows, map[string]string{
				"Name":         a.Name,
				"Username":     a.Username,
				"User_ID":      strconv.FormatInt(a.UserID, 10),
				"Typ":          g.label,
				"Hinzugefuegt": tgui.DateDE(a.AddedAt.Time),
			})
		}
	}
	return d, nil
}

func (e *Exporter) confirmations(ctx context.Context) (Dataset, error) {
	rows, err := e.store.Confirmations.Joined(ctx, 1000)
	if err != nil {
		return Dataset{}, err
	}
	d := Dataset{Headers: []string{"Lehrer_Name", "Lehrer_ID", "Nachricht", "Bestaetigt_am", "Message_ID"}}
	for _, c := range rows {
		name := c.TeacherName
		if name == "" {
			name = "Unbekannt"
		}
		d.Rows = append(d.Rows, map[string]string{
			"Lehrer_Name":   name,
			"Lehrer_ID":     c.TeacherID,
			"Nachricht":     firstRunes(c.Text, 100),
			"Bestaetigt_am": tgui.DateTimeDE(c.ConfirmedAt.Time),
			"Message_ID":    strconv.FormatInt(c.MessageID, 10),
		})
	}
	return d, nil
}

func (e *Exporter) report(ctx context.Context) (transport.Document, error) {
	if e.status == nil {
		return transport.Document{}, ErrNoData
	}
	st, err := e.status(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return transport.Document{}, ErrNoData
		}
		return transport.Document{}, err
	}
	summary := []string{
		"Nachricht: " + tgui.TruncRunes(st.Message.Text, 200),
		"Gesendet: " + tgui.DateTimeDE(st.Message.SentAt.Time) + " von " + st.Message.SentBy,
		fmt.Sprintf("Bestätigt: %d/%d", st.ReadCount(), st.Total),
		fmt.Sprintf("Nicht bestätigt: %d/%d", st.UnreadCount(), st.Total),
	}
	b, err := RenderPDF("Lesestatus", summary,
		Section{Title: "Bestätigt", Data: teacherTable(st.Read)},
		Section{Title: "Nicht bestätigt", Data: teacherTable(st.Unread)},
	)
	if err != nil {
		return transport.Document{}, err
	}
	name := fmt.Sprintf("lesestatus_%d_%s.pdf", st.Message.MessageID, e.now().Format("2006-01-02"))
	return transport.Document{Name: name, Data: b, Caption: e.caption(KindReport, name, st.Total)}, nil
}

func teacherTable(ts []storage.Teacher) Dataset {
	d := Dataset{Headers: []string{"Name", "Lehrer_ID", "Username"}}
	for _, t := range ts {
		d.Rows = append(d.Rows, map[string]string{"Name": t.Name, "Lehrer_ID": t.TeacherID, "Username": t.Username})
	}
	return d
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
