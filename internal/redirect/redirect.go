// Package redirect retries an operation once against the region or endpoint
// named by a provider's redirect fault.
package redirect

import (
	"context"
	"errors"
	"strings"

	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/metrics"
)

// Target is where a redirect fault says the resource lives.
type Target struct {
	Region   string
	Endpoint string
}

// TargetOf extracts the suggested target from a redirect fault. The region
// falls back to one parsed from an S3 endpoint host such as
// "bucket.s3.eu-west-1.amazonaws.com".
func TargetOf(pe *errs.ProviderError) Target {
	t := Target{Region: pe.RedirectRegion, Endpoint: pe.RedirectTarget}
	if t.Region == "" {
		t.Region = RegionFromHost(t.Endpoint)
	}
	return t
}

// Resolve runs retry once when err is a redirect fault naming a usable
// target. Any other err is returned unchanged. A redirect from the retry is
// terminal.
func Resolve[T any](ctx context.Context, err error, retry func(context.Context, Target) (T, error)) (T, error) {
	var zero T
	var pe *errs.ProviderError
	if !errors.As(err, &pe) || pe.Kind != errs.KindRedirect {
		return zero, err
	}
	target := TargetOf(pe)
	if target.Region == "" && target.Endpoint == "" {
		return zero, err
	}

	metrics.ObserveRedirect(pe.Provider)
	out, rerr := retry(ctx, target)
	if rerr == nil {
		return out, nil
	}

	var again *errs.ProviderError
	if errors.As(rerr, &again) && again.Kind == errs.KindRedirect {
		return zero, &errs.ProviderError{
			Kind:           errs.KindRedirect,
			Provider:       again.Provider,
			Op:             again.Op,
			Code:           again.Code,
			Message:        "redirected again after retrying against " + describe(target) + ": " + again.Message,
			Status:         again.Status,
			RedirectTarget: again.RedirectTarget,
			RedirectRegion: again.RedirectRegion,
		}
	}
	return zero, rerr
}

// RegionFromHost returns the region embedded in an AWS S3 host name, or "".
// Both "s3.eu-west-1.amazonaws.com" and "s3-eu-west-1.amazonaws.com" forms
// are understood.
func RegionFromHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	host = strings.SplitN(host, "/", 2)[0]
	if !strings.HasSuffix(host, ".amazonaws.com") {
		return ""
	}
	labels := strings.Split(strings.TrimSuffix(host, ".amazonaws.com"), ".")
	for i, l := range labels {
		switch {
		case l == "s3" && i+1 < len(labels):
			next := labels[i+1]
			if next == "dualstack" && i+2 < len(labels) {
				next = labels[i+2]
			}
			return next
		case strings.HasPrefix(l, "s3-") && l != "s3-external-1" && l != "s3-accelerate":
			return strings.TrimPrefix(l, "s3-")
		}
	}
	return ""
}

func describe(t Target) string {
	if t.Endpoint != "" {
		return t.Endpoint
	}
	return t.Region
}
