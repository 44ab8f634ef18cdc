package filestore

import (
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/transport"
)

const (
	// MaxPageLimit is the largest page every provider accepts.
	MaxPageLimit = 1000

	// DefaultTTL is the validity of signed URLs when none is requested.
	DefaultTTL = 15 * time.Minute
)

// Options is the per-call adapter configuration.
type Options struct {
	// Region overrides the credential's region.
	Region string

	// Endpoint overrides the credential's endpoint.
	Endpoint string

	// PageLimit is the default listing page size, clamped to 1..MaxPageLimit.
	PageLimit int

	// TTL is the default signed URL validity.
	TTL time.Duration
}

// DefaultOptions returns the options used when a caller supplies none.
func DefaultOptions() Options {
	return Options{PageLimit: MaxPageLimit, TTL: DefaultTTL}
}

// OptionsFrom reads a raw configuration record such as the one stored next
// to a data box. Unknown keys are ignored and absent keys keep defaults.
// ttl may be a duration string ("10m") or a number of seconds.
func OptionsFrom(cfg map[string]any) Options {
	opts := DefaultOptions()
	for k, v := range cfg {
		switch strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(k)) {
		case "region":
			opts.Region = str(v)
		case "endpoint":
			opts.Endpoint = str(v)
		case "pagelimit", "maxkeys", "limit":
			if n, ok := number(v); ok {
				opts.PageLimit = int(n)
			}
		case "ttl", "expiry", "expiresin":
			if d, ok := duration(v); ok {
				opts.TTL = d
			}
		}
	}
	return opts
}

// Limit returns the page size for req under these options.
func (o Options) Limit(req ListRequest) int {
	n := req.PageLimit
	if n <= 0 {
		n = o.PageLimit
	}
	switch {
	case n <= 0:
		return MaxPageLimit
	case n > MaxPageLimit:
		return MaxPageLimit
	}
	return n
}

// Expiry returns ttl, or the configured TTL when ttl is not positive.
func (o Options) Expiry(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	if o.TTL > 0 {
		return o.TTL
	}
	return DefaultTTL
}

// Env carries the collaborators a Store needs. The zero value is not usable;
// call Defaults to fill the gaps.
type Env struct {
	// Exec sends provider requests. Tests substitute a fake.
	Exec transport.Executor

	Log *logger.Logger

	// Now is the signing clock.
	Now func() time.Time
}

// Defaults returns a copy of e with a production executor, the global
// logger and the wall clock filled in where missing.
func (e Env) Defaults() Env {
	if e.Log == nil {
		e.Log = logger.L()
	}
	if e.Exec == nil {
		e.Exec = transport.NewHTTPExecutor(transport.Options{Logger: e.Log})
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	return e
}

func str(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func duration(v any) (time.Duration, bool) {
	if s, ok := v.(string); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	if n, ok := number(v); ok {
		return time.Duration(n * float64(time.Second)), true
	}
	return 0, false
}
