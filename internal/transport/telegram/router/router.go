// Package router classifies Telegram updates and dispatches them to the
// registration, broadcast and management handlers.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"teacherbot/internal/access"
	"teacherbot/internal/broadcast"
	"teacherbot/internal/config"
	"teacherbot/internal/dedup"
	"teacherbot/internal/eventbus"
	"teacherbot/internal/export"
	"teacherbot/internal/registration"
	rtsup "teacherbot/internal/runtime/supervisor"
	"teacherbot/internal/session"
	"teacherbot/internal/storage"
	"teacherbot/internal/transport"
	"teacherbot/pkg/logx"
	"teacherbot/pkg/tgui"
)

// Resolver is the part of access.Resolver the router needs.
type Resolver interface {
	Resolve(ctx context.Context, userID int64) access.Role
	IsUrSuperAdmin(userID int64) bool
	AllowList() []int64
}

type Deps struct {
	Adapter      transport.Adapter
	Resolver     Resolver
	Sessions     *session.Sessions
	Registration *registration.Flow
	Broadcast    *broadcast.Engine
	Store        *storage.Store
	Export       *export.Exporter
	Guard        *dedup.Guard
	Bus          eventbus.Bus
	Log          logx.Logger
	Config       config.RouterConfig
	// BackupDir holds transient snapshot files. Empty means os.TempDir.
	BackupDir string
}

type callbackFunc func(ctx context.Context, req *Request) error

type Router struct {
	d   Deps
	ad  transport.Adapter
	log logx.Logger

	callbacks map[string]callbackFunc

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(d Deps) *Router {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	if d.Guard == nil {
		d.Guard = dedup.New()
	}
	q := d.Config.QueueSize
	if q <= 0 {
		q = 256
	}
	r := &Router{
		d:    d,
		ad:   d.Adapter,
		log:  d.Log.With(logx.String("comp", "telegram.router")),
		jobs: make(chan func(), q),
	}
	r.callbacks = r.callbackRoutes()
	return r
}

// Supervisor returns the worker pool supervisor (nil if not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *rtsup.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// tryEnqueue tolerates a closed jobs channel.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) workers() int {
	if n := r.d.Config.Workers; n > 0 {
		return n
	}
	return max(2, runtime.NumCPU())
}

// DispatchLoop consumes updates until ctx ends or updates closes. Duplicates
// are dropped here; everything else runs on the bounded worker pool.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := r.workers()
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	r.setSupervisor(sup, true)
	r.log.Info("dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			r.setSupervisor(sup, false)
			close(r.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("router.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if p := recover(); p != nil {
								r.log.Error("panic in router job", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setSupervisor(nil, false)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if r.duplicate(up) {
				continue
			}
			if !r.tryEnqueue(func() { r.process(ctx, up) }) {
				r.log.Warn("router queue full; update dropped", logx.String("kind", string(up.Kind)))
				if up.Kind == transport.UpdateCallback && up.Callback != nil {
					_ = r.ad.AnswerCallback(ctx, up.Callback.ID, "Bitte erneut versuchen.", false)
				}
			}
		}
	}
}

// Handle runs one update synchronously, dedup included.
func (r *Router) Handle(ctx context.Context, up transport.Update) {
	if r.duplicate(up) {
		return
	}
	r.process(ctx, up)
}

func (r *Router) duplicate(up transport.Update) bool {
	var key string
	switch {
	case up.Kind == transport.UpdateMessage && up.Message != nil:
		m := up.Message
		key = dedup.MessageKey(m.ID, m.ChatID, m.Date)
	case up.Kind == transport.UpdateCallback && up.Callback != nil:
		key = dedup.CallbackKey(up.Callback.ID, up.Callback.Data)
	default:
		return true
	}
	if !r.d.Guard.Seen(key) {
		return false
	}
	r.log.Debug("duplicate update dropped", logx.String("key", key))
	r.d.Bus.Publish(eventbus.Event{Type: eventbus.TypeUpdateDuplicate, Data: key})
	return true
}

func (r *Router) process(ctx context.Context, up transport.Update) {
	req := &Request{Update: up, ReqID: newReqID()}
	switch up.Kind {
	case transport.UpdateMessage:
		m := up.Message
		req.Chat = transport.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
		req.Identity = access.Identity{UserID: m.FromID, Username: m.FromUsername}
		req.Text = strings.TrimSpace(m.Text)
		req.Command = commandOf(req.Text)
	case transport.UpdateCallback:
		cb := up.Callback
		req.Chat = transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
		req.Identity = access.Identity{UserID: cb.FromID, Username: cb.FromUsername}
		req.CallbackID = cb.ID
		req.Callback = tgui.Parse(cb.Data)
		req.Ref = transport.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	}
	req.Logger = r.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.Identity.UserID),
	)

	h := r.handleMessage
	if req.IsCallback() {
		h = r.handleCallback
	}
	final := Chain(func(ctx context.Context, req *Request) error {
		// callbacks resolve after answering
		if !req.IsCallback() {
			req.Role = r.d.Resolver.Resolve(ctx, req.Identity.UserID)
		}
		return h(ctx, req)
	},
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(r.d.Config.Timeout()),
	)
	if err := final(ctx, req); err != nil {
		r.fail(ctx, req, err)
	}
}

// fail shows a short notice. Details stay in the log.
func (r *Router) fail(ctx context.Context, req *Request, err error) {
	if ctx.Err() != nil {
		return
	}
	if req.IsCallback() {
		_ = r.ad.AnswerCallback(ctx, req.CallbackID, "Ein Fehler ist aufgetreten.", true)
		r.send(ctx, req, tgui.Plain("❌ Ein Fehler ist aufgetreten.\n\nUser-ID: "+strconv.FormatInt(req.Identity.UserID, 10), backToMain()))
		return
	}
	r.send(ctx, req, tgui.Plain("Ein Fehler ist aufgetreten. Verwende /menu für das Hauptmenü.", nil))
}

func (r *Router) send(ctx context.Context, req *Request, m tgui.Message) {
	if _, err := m.Send(ctx, r.ad, req.Chat); err != nil {
		req.Logger.Warn("send failed", logx.Err(err))
	}
}

func (r *Router) say(ctx context.Context, req *Request, text string) {
	r.send(ctx, req, tgui.Plain(text, nil))
}

// edit rewrites the callback's message in place, falling back to a new message.
func (r *Router) edit(ctx context.Context, req *Request, m tgui.Message) {
	if req.Ref.MessageID != 0 {
		err := m.Edit(ctx, r.ad, req.Ref)
		if err == nil {
			return
		}
		req.Logger.Debug("edit failed; sending instead", logx.Err(err))
	}
	r.send(ctx, req, m)
}

// replace deletes the callback's message and sends m as a new one.
func (r *Router) replace(ctx context.Context, req *Request, m tgui.Message) {
	if req.Ref.MessageID != 0 {
		if err := r.ad.DeleteMessage(ctx, req.Ref); err != nil {
			req.Logger.Debug("delete failed", logx.Err(err))
		}
	}
	r.send(ctx, req, m)
}
