package observability

// Metric names registered at startup and resolved through Telemetry.
const (
	MetricHTTPRequests        = "http_requests_total"
	MetricHTTPRequestDuration = "http_request_duration_seconds"

	MetricInventoryOps       = "inventory_ops_total"
	MetricInventoryConflicts = "inventory_version_conflicts_total"

	MetricOrdersCreated     = "orders_created_total"
	MetricOrderTransitions  = "order_transitions_total"
	MetricPaymentsCompleted = "payments_completed_total"
	MetricRefundAttempts    = "refund_attempts_total"

	MetricEventsPublished = "events_published_total"
	MetricEventsHandled   = "events_handled_total"
)
