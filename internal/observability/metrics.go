package observability

// Registered instruments. Label sets are fixed at registration time in
// prometrics.Instruments.
const (
	MUsecaseRequests     MetricKey = "usecase_requests_total"        // use_case, outcome
	MUsecaseDuration     MetricKey = "usecase_duration_seconds"      // use_case
	MHTTPRequests        MetricKey = "http_requests_total"           // method, route, status
	MHTTPRequestDuration MetricKey = "http_request_duration_seconds" // method, route, status

	// Calls leaving the process: payment gateway, outbox publish.
	MExternalRequests        MetricKey = "external_requests_total"           // peer, endpoint, outcome
	MExternalRequestDuration MetricKey = "external_request_duration_seconds" // peer, endpoint

	MStockDecrements MetricKey = "stock_decrements_total" // outcome: success or a failure reason
	MOutboxEvents    MetricKey = "outbox_events_total"    // event, outcome
)
