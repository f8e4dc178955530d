package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags plus the fields that need parsing
// (durations, regexps, cross-field bounds).
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag())
		}
		return err
	}

	if r := cfg.Registration; r.NameMin > 0 && r.NameMax > 0 && r.NameMax < r.NameMin {
		return fmt.Errorf("registration.name_max (%d) must be >= name_min (%d)", r.NameMax, r.NameMin)
	}
	if p := strings.TrimSpace(cfg.Registration.NumberPattern); p != "" {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("registration.number_pattern: %w", err)
		}
	}

	durations := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"session.idle_timeout", cfg.Session.IdleTimeout},
		{"session.sweep_every", cfg.Session.SweepEvery},
		{"dedup.window", cfg.Dedup.Window},
		{"router.handler_timeout", cfg.Router.HandlerTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"ops.read_timeout", cfg.Ops.ReadTimeout},
		{"ops.idle_timeout", cfg.Ops.IdleTimeout},
	}
	if n := cfg.Notifier; n != nil {
		durations = append(durations,
			struct{ path, raw string }{"notifier.retry_base", n.RetryBase},
			struct{ path, raw string }{"notifier.retry_max_delay", n.RetryMaxDelay},
		)
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	return nil
}
