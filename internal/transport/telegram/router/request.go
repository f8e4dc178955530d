package router

import (
	"strings"

	"github.com/google/uuid"

	"teacherbot/internal/access"
	"teacherbot/internal/transport"
	"teacherbot/pkg/logx"
	"teacherbot/pkg/tgui"
)

// Request is one inbound event after dedup and role resolution.
type Request struct {
	Update   transport.Update
	Chat     transport.ChatTarget
	Identity access.Identity
	Role     access.Role

	// Message updates.
	Text    string
	Command string // lowercased first token without "@bot", e.g. "/start"

	// Callback updates.
	CallbackID string
	Callback   tgui.Callback
	Ref        transport.MessageRef

	ReqID  string
	Logger logx.Logger
}

func (r *Request) IsCallback() bool { return r.Update.Kind == transport.UpdateCallback }

func newReqID() string { return uuid.NewString()[:8] }

// commandOf returns the first token of text when it is a slash command.
func commandOf(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return ""
	}
	word := text
	if i := strings.IndexAny(word, " \n\t"); i >= 0 {
		word = word[:i]
	}
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	return strings.ToLower(word)
}

// commandArg returns the text after the command token, trimmed.
func commandArg(text string) string {
	text = strings.TrimSpace(text)
	i := strings.IndexAny(text, " \n\t")
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i:])
}
