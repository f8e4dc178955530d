// Package tgui has small Telegram UI helpers: inline keyboards, callback
// data in "namespace:action:payload" form, rune-safe truncation, paging and
// a text+options message unit.
package tgui
