package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats callback data as "ns:action" or "ns:action:payload".
func Data(ns, action, payload string) string {
	ns = strings.TrimSpace(ns)
	action = strings.TrimSpace(action)
	if payload == "" {
		return ns + ":" + action
	}
	return ns + ":" + action + ":" + payload
}

// CheckData returns ErrCallbackDataTooLong when data exceeds the limit.
func CheckData(data string) error {
	if len(data) > MaxCallbackDataLen {
		return ErrCallbackDataTooLong
	}
	return nil
}

// Callback is parsed callback data. Payload may contain further colons.
type Callback struct {
	NS      string
	Action  string
	Payload string
}

func (c Callback) Route() string { return c.NS + ":" + c.Action }

// Parse splits data into namespace, action and payload. Data without a colon
// yields only NS.
func Parse(data string) Callback {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	var c Callback
	c.NS = parts[0]
	if len(parts) > 1 {
		c.Action = parts[1]
	}
	if len(parts) > 2 {
		c.Payload = parts[2]
	}
	return c
}
