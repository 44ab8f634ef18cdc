package minio

import (
	"context"
	"errors"
	"net"
	"net/url"
	"time"

	miniogo "github.com/minio/minio-go/v7"

	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/metrics"
	"github.com/koustreak/cloudbox/internal/transport"
)

// mapError translates a MinIO SDK error into the errs taxonomy.
// S3 error codes share the REST adapters' code table.
func mapError(err error, op string) error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Transport(op, "", err)
	}

	// MinIO SDK exposes a typed ErrorResponse for S3-protocol errors
	resp := miniogo.ToErrorResponse(err)
	if resp.Code != "" || resp.StatusCode != 0 {
		kind := transport.KindForCode(resp.Code, resp.StatusCode)
		msg := resp.Message
		if msg == "" {
			msg = err.Error()
		}
		metrics.ObserveFault(provider, kind.String())
		return &errs.ProviderError{
			Kind:           kind,
			Provider:       provider,
			Op:             op,
			Code:           resp.Code,
			Message:        msg,
			Status:         resp.StatusCode,
			RedirectRegion: resp.Region,
		}
	}

	var ue *url.Error
	var ne net.Error
	if errors.As(err, &ue) || errors.As(err, &ne) {
		return errs.Transport(op, "", err)
	}

	return &errs.ProviderError{Kind: errs.KindUnknown, Provider: provider, Op: op, Message: err.Error()}
}

func record(method, class string, took time.Duration) {
	metrics.ObserveRequest(provider, method, class, took)
}
