// Package logx is teacherbot's structured logging layer.
//
// A thin Logger value wraps zerolog so call sites stay terse
// (log.Info("msg", logx.String("k", "v"))) while the Service behind it can
// swap sinks at runtime on config reload. Sinks: console, JSON file, and an
// optional rate-limited Telegram chat for warnings and errors.
package logx
