package tgui

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"teacherbot/internal/transport"
)

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm   *tele.ReplyMarkup
	rows []tele.Row
}

func NewInline() *Inline { return &Inline{rm: &tele.ReplyMarkup{}} }

func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rows = append(i.rows, i.rm.Row(btn...))
	i.rm.Inline(i.rows...)
	return i
}

// Rows adds one row per button.
func (i *Inline) Rows(btn ...tele.Btn) *Inline {
	for _, b := range btn {
		i.Row(b)
	}
	return i
}

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

// Btn creates a callback button. data is used verbatim.
func Btn(text, data string) tele.Btn { return tele.Btn{Text: text, Data: data} }

func URLBtn(text, url string) tele.Btn { return tele.Btn{Text: text, URL: url} }

// Message is rendered text plus send options.
type Message struct {
	Text string
	Opt  *transport.SendOptions
}

// Plain is an unformatted message with link previews off and an optional keyboard.
func Plain(text string, kb *Inline) Message {
	opt := &transport.SendOptions{DisablePreview: true}
	if kb != nil {
		opt.ReplyMarkupAdapter = kb.Markup()
	}
	return Message{Text: text, Opt: opt}
}

func (m Message) Send(ctx context.Context, ad transport.Adapter, to transport.ChatTarget) (transport.MessageRef, error) {
	return ad.SendText(ctx, to, m.Text, m.Opt)
}

func (m Message) Edit(ctx context.Context, ad transport.Adapter, ref transport.MessageRef) error {
	return ad.EditText(ctx, ref, m.Text, m.Opt)
}
