package instrumentation

// Cardinality management helpers for metrics.
// These functions reduce label values to a closed set to prevent metrics explosion.
//
// # Warning
//
// Error messages, message ids and queries must never become label values.
// Always use these helpers when recording metrics with values derived from errors.

// Error kind label values. They mirror the kinds surfaced in tool error results.
const (
	KindAuth                 = "AuthError"
	KindProviderRateLimited  = "ProviderError.RateLimited"
	KindProviderNotFound     = "ProviderError.NotFound"
	KindProviderInvalidQuery = "ProviderError.InvalidQuery"
	KindProviderTransport    = "ProviderError.Transport"
	KindDispatchUnknownTool  = "DispatchError.UnknownTool"
	KindDispatchInvalidInput = "DispatchError.InvalidInput"
	KindInternal             = "InternalError"
)

// ErrorKinds lists the kinds a tool error result can carry, in
// documentation order.
var ErrorKinds = []string{
	KindAuth,
	KindProviderRateLimited,
	KindProviderNotFound,
	KindProviderInvalidQuery,
	KindProviderTransport,
	KindDispatchUnknownTool,
	KindDispatchInvalidInput,
}

var knownKinds = func() map[string]bool {
	m := map[string]bool{KindInternal: true}
	for _, k := range ErrorKinds {
		m[k] = true
	}
	return m
}()

// ErrorKindLabel returns kind if it is one of the known error kinds and
// StatusUnknown otherwise.
//
// Example:
//
//	ErrorKindLabel("ProviderError.NotFound")  // "ProviderError.NotFound"
//	ErrorKindLabel("boom: 18c2f0a1b2")        // "unknown"
func ErrorKindLabel(kind string) string {
	if knownKinds[kind] {
		return kind
	}
	return StatusUnknown
}

// Gmail operation types for Google API metrics and spans.
// Status, OAuth, and Service constants are defined in config.go.
const (
	OperationSearch        = "search"
	OperationGet           = "get"
	OperationAttachments   = "list_attachments"
	OperationGetAttachment = "get_attachment"
	OperationBatchGet      = "batch_get"
	OperationProfile       = "profile"
	OperationRefresh       = "token_refresh"
	OperationAuthorize     = "authorize"
)
