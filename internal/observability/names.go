// Package observability provides OpenTelemetry metrics and tracing for the embedding skill.
package observability

// Metric names (Prometheus / OpenTelemetry).
const (
	MetricNameHTTPRequests          = "skill_http_requests_total"
	MetricNameHTTPRequestDuration   = "skill_http_request_duration_seconds"
	MetricNameRequestBodyTooLarge   = "skill_request_body_too_large_total"
	MetricNameVisionRequests        = "skill_vision_requests_total"
	MetricNameVisionRequestDuration = "skill_vision_request_duration_seconds"
	MetricNameVisionRetries         = "skill_vision_retries_total"
	MetricNameBatchRecords          = "skill_batch_records_total"
	MetricNameBatchDuration         = "skill_batch_duration_seconds"
)

// Attribute keys.
const (
	AttrMethod      = "method"
	AttrRoute       = "route"
	AttrStatusClass = "status_class"
	AttrOperation   = "operation"
	AttrOutcome     = "outcome"
	AttrKind        = "kind"
)

// AllowedOperations for the vision metrics "operation" attribute.
var AllowedOperations = map[string]bool{
	"vectorize_image": true,
	"vectorize_text":  true,
}

// AllowedVisionOutcomes for skill_vision_requests_total and skill_vision_request_duration_seconds.
var AllowedVisionOutcomes = map[string]bool{
	"success":          true,
	"upstream_error":   true,
	"network_error":    true,
	"invalid_response": true,
}

// AllowedRecordOutcomes for skill_batch_records_total.
var AllowedRecordOutcomes = map[string]bool{
	"success":  true,
	"failed":   true,
	"deadline": true,
}

// AllowedKinds for the batch "kind" attribute.
var AllowedKinds = map[string]bool{
	"image": true,
	"text":  true,
}

// NormalizeOperation returns operation if allowed, otherwise "unknown".
func NormalizeOperation(operation string) string {
	if AllowedOperations[operation] {
		return operation
	}

	return "unknown"
}

// NormalizeReason returns value if in allowed, otherwise "other".
func NormalizeReason(value string, allowed map[string]bool) string {
	if allowed[value] {
		return value
	}

	return "other"
}
