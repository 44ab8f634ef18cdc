package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/xmltag"
)

// codeKinds maps provider-native fault codes to error kinds. S3, Azure and
// GCS codes share the table; GCS reasons and OAuth errors are lower camel or
// snake case and never collide with the others.
var codeKinds = map[string]errs.Kind{
	// permission
	"AccessDenied":                    errs.KindPermission,
	"AllAccessDisabled":               errs.KindPermission,
	"AccountProblem":                  errs.KindPermission,
	"AuthorizationPermissionMismatch": errs.KindPermission,
	"AuthorizationFailure":            errs.KindPermission,
	"InsufficientAccountPermissions":  errs.KindPermission,
	"forbidden":                       errs.KindPermission,

	// not found
	"NoSuchBucket":      errs.KindNotFound,
	"NoSuchKey":         errs.KindNotFound,
	"NotFound":          errs.KindNotFound,
	"ContainerNotFound": errs.KindNotFound,
	"BlobNotFound":      errs.KindNotFound,
	"ResourceNotFound":  errs.KindNotFound,
	"notFound":          errs.KindNotFound,

	// authentication
	"SignatureDoesNotMatch":       errs.KindAuthentication,
	"AuthenticationFailed":        errs.KindAuthentication,
	"InvalidAccessKeyId":          errs.KindAuthentication,
	"InvalidToken":                errs.KindAuthentication,
	"ExpiredToken":                errs.KindAuthentication,
	"TokenRefreshRequired":        errs.KindAuthentication,
	"InvalidAuthenticationInfo":   errs.KindAuthentication,
	"NoAuthenticationInformation": errs.KindAuthentication,
	"RequestTimeTooSkewed":        errs.KindAuthentication,
	"invalid_grant":               errs.KindAuthentication,
	"invalid_client":              errs.KindAuthentication,
	"unauthorized_client":         errs.KindAuthentication,
	"authError":                   errs.KindAuthentication,
	"required":                    errs.KindAuthentication,

	// redirect
	"PermanentRedirect":                  errs.KindRedirect,
	"TemporaryRedirect":                  errs.KindRedirect,
	"Redirect":                           errs.KindRedirect,
	"IllegalLocationConstraintException": errs.KindRedirect,

	// malformed request
	"AuthorizationHeaderMalformed": errs.KindMalformedRequest,
	"InvalidArgument":              errs.KindMalformedRequest,
	"InvalidRequest":               errs.KindMalformedRequest,
	"MalformedXML":                 errs.KindMalformedRequest,
	"InvalidBucketName":            errs.KindMalformedRequest,
	"InvalidQueryParameterValue":   errs.KindMalformedRequest,
	"InvalidHeaderValue":           errs.KindMalformedRequest,
	"InvalidUri":                   errs.KindMalformedRequest,
	"MissingRequiredHeader":        errs.KindMalformedRequest,
	"InvalidResourceName":          errs.KindMalformedRequest,
	"OutOfRangeInput":              errs.KindMalformedRequest,
	"invalid_request":              errs.KindMalformedRequest,
	"invalid_scope":                errs.KindMalformedRequest,
	"unsupported_grant_type":       errs.KindMalformedRequest,
	"invalid":                      errs.KindMalformedRequest,
	"invalidArgument":              errs.KindMalformedRequest,
	"badRequest":                   errs.KindMalformedRequest,

	// throttled
	"SlowDown":             errs.KindThrottled,
	"RequestLimitExceeded": errs.KindThrottled,
	"ServerBusy":           errs.KindThrottled,
	"rateLimitExceeded":    errs.KindThrottled,
	"TooManyRequests":      errs.KindThrottled,

	// conflict
	"BucketAlreadyExists":     errs.KindConflict,
	"BucketAlreadyOwnedByYou": errs.KindConflict,
	"ContainerAlreadyExists":  errs.KindConflict,
	"conflict":                errs.KindConflict,
}

var statusKinds = map[int]errs.Kind{
	http.StatusMovedPermanently:  errs.KindRedirect,
	http.StatusTemporaryRedirect: errs.KindRedirect,
	http.StatusPermanentRedirect: errs.KindRedirect,
	http.StatusBadRequest:        errs.KindMalformedRequest,
	http.StatusUnauthorized:      errs.KindAuthentication,
	http.StatusForbidden:         errs.KindPermission,
	http.StatusNotFound:          errs.KindNotFound,
	http.StatusConflict:          errs.KindConflict,
	http.StatusTooManyRequests:   errs.KindThrottled,
}

// KindForCode maps a provider code to a kind, falling back to the HTTP
// status for codes outside the table.
func KindForCode(code string, status int) errs.Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return statusKinds[status]
}

// DecodeFault turns a non-2xx response into a ProviderError. The body may be
// an S3 or Azure XML <Error> document, a GCS JSON error envelope, or an OAuth
// token error. Bodies in none of those shapes map to KindUnknown with the
// status text kept as the message.
func DecodeFault(provider string, status int, header http.Header, body []byte) *errs.ProviderError {
	pe := &errs.ProviderError{Provider: provider, Status: status}

	switch {
	case xmltag.LooksLikeXML(body) && xmltag.Has(body, "Code"):
		pe.Code = xmltag.Text(body, "Code")
		pe.Message = xmltag.Text(body, "Message")
		pe.RedirectTarget = xmltag.Text(body, "Endpoint")
		pe.RedirectRegion = xmltag.Text(body, "Region")
	case len(body) > 0 && body[0] == '{':
		decodeJSONFault(pe, body)
	}

	if pe.Code == "" {
		pe.Code = header.Get("x-ms-error-code")
	}
	if pe.RedirectRegion == "" {
		pe.RedirectRegion = header.Get("x-amz-bucket-region")
	}

	switch {
	case pe.Code == "" && pe.RedirectRegion != "" && status >= 300 && status < 400:
		// bodiless S3 redirect (HEAD or some 301s)
		pe.Kind = errs.KindRedirect
	case pe.Code == "":
		pe.Kind = errs.KindUnknown
	case pe.Code == "AuthorizationHeaderMalformed" && pe.RedirectRegion != "":
		pe.Kind = errs.KindRedirect
	default:
		pe.Kind = KindForCode(pe.Code, status)
	}

	if pe.Message == "" {
		pe.Message = statusText(status)
	}
	return pe
}

type jsonFault struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

type jsonFaultDetail struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
	Errors  []struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"errors"`
}

func decodeJSONFault(pe *errs.ProviderError, body []byte) {
	var env jsonFault
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 {
		return
	}

	// OAuth token endpoint: {"error": "invalid_grant", "error_description": "..."}
	var code string
	if err := json.Unmarshal(env.Error, &code); err == nil {
		pe.Code = code
		pe.Message = env.ErrorDescription
		return
	}

	var detail jsonFaultDetail
	if err := json.Unmarshal(env.Error, &detail); err != nil {
		return
	}
	pe.Message = detail.Message
	for _, e := range detail.Errors {
		if e.Reason != "" {
			pe.Code = e.Reason
			return
		}
	}
	if detail.Status != "" {
		pe.Code = detail.Status
		return
	}
	var s string
	if json.Unmarshal(detail.Code, &s) == nil && s != "" {
		pe.Code = s
		return
	}
	var n int
	if json.Unmarshal(detail.Code, &n) == nil && n != 0 {
		pe.Code = strconv.Itoa(n)
	}
}

func statusText(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	return strings.TrimSpace(fmt.Sprintf("HTTP %d %s", status, text))
}
