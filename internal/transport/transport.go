// Package transport issues provider HTTP requests and classifies responses.
//
// An Executor is the single place where bytes leave the process. Adapters
// build a fully signed Request and hand it over; the executor returns either
// a 2xx Response, a *errs.ProviderError decoded from the fault body, or a
// *errs.TransportError for failures below HTTP. Raw fault bodies never travel
// further than this package.
package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/metrics"
)

// Class is the coarse outcome of one exchange.
type Class string

const (
	ClassSuccess        Class = "success"
	ClassProviderFault  Class = "provider_fault"
	ClassTransportFault Class = "transport_fault"
)

// DefaultTimeout bounds every provider request.
const DefaultTimeout = 60 * time.Second

// Request is one fully signed provider request.
type Request struct {
	Provider string
	Op       string
	Method   string
	URL      string
	Header   http.Header
	Body     []byte
}

// Response is a successful provider response with its body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	Class  Class
}

// Executor sends provider requests.
type Executor interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ExecutorFunc) Execute(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Options configures an HTTPExecutor.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Logger    *logger.Logger

	// Client overrides the underlying HTTP client. Redirects are never
	// followed regardless of the client's own policy.
	Client *http.Client
}

// HTTPExecutor is the production Executor backed by net/http.
type HTTPExecutor struct {
	client    *http.Client
	userAgent string
	log       *logger.Logger
}

// NewHTTPExecutor creates an executor with pooled connections.
func NewHTTPExecutor(opts Options) *HTTPExecutor {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	} else {
		cp := *client
		client = &cp
	}
	// Redirect faults carry the corrected target in their body; following
	// the Location header would replay a signature scoped to the old host.
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	log := opts.Logger
	if log == nil {
		log = logger.L()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "cloudbox/1.0"
	}
	return &HTTPExecutor{client: client, userAgent: ua, log: log}
}

// Execute sends req and reads the whole response.
func (e *HTTPExecutor) Execute(ctx context.Context, req *Request) (*Response, error) {
	requestID := uuid.NewString()
	start := time.Now()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, errs.Transport(req.Op, redact(req.URL), err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", e.userAgent)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		e.record(req, ClassTransportFault, 0, start, requestID)
		return nil, errs.Transport(req.Op, redact(req.URL), unwrapURLError(err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e.record(req, ClassTransportFault, resp.StatusCode, start, requestID)
		return nil, errs.Transport(req.Op, redact(req.URL), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e.record(req, ClassProviderFault, resp.StatusCode, start, requestID)
		fault := DecodeFault(req.Provider, resp.StatusCode, resp.Header, data)
		fault.Op = req.Op
		metrics.ObserveFault(req.Provider, fault.Kind.String())
		e.log.WarnWith("provider fault", fault, map[string]interface{}{
			"provider":   req.Provider,
			"op":         req.Op,
			"status":     resp.StatusCode,
			"request_id": requestID,
		})
		return nil, fault
	}

	e.record(req, ClassSuccess, resp.StatusCode, start, requestID)
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
		Class:  ClassSuccess,
	}, nil
}

func (e *HTTPExecutor) record(req *Request, class Class, status int, start time.Time, requestID string) {
	took := time.Since(start)
	metrics.ObserveRequest(req.Provider, req.Method, string(class), took)
	e.log.Exchange(req.Provider, req.Method, host(req.URL), status, took, requestID)
}

func unwrapURLError(err error) error {
	if ue, ok := err.(*url.Error); ok {
		return ue.Err
	}
	return err
}

func host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}

// redact drops the query string, which may hold a SAS or presigned signature.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
