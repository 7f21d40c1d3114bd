package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats a snapshot in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# HELP agentmart_uptime_seconds Time since the daemon started\n")
	sb.WriteString("# TYPE agentmart_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("agentmart_uptime_seconds %d\n", snap.Uptime))
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_requests_total Total HTTP requests by route\n")
	sb.WriteString("# TYPE agentmart_requests_total counter\n")
	for _, route := range sortedKeys(snap.TotalRequests) {
		sb.WriteString(fmt.Sprintf("agentmart_requests_total{route=\"%s\"} %d\n", route, snap.TotalRequests[route]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_request_errors_total Total HTTP error responses by route\n")
	sb.WriteString("# TYPE agentmart_request_errors_total counter\n")
	for _, route := range sortedKeys(snap.RequestErrors) {
		sb.WriteString(fmt.Sprintf("agentmart_request_errors_total{route=\"%s\"} %d\n", route, snap.RequestErrors[route]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_request_duration_ms_total Cumulative request duration in milliseconds\n")
	sb.WriteString("# TYPE agentmart_request_duration_ms_total counter\n")
	for _, route := range sortedKeys(snap.TotalRequestsDur) {
		sb.WriteString(fmt.Sprintf("agentmart_request_duration_ms_total{route=\"%s\"} %d\n", route, snap.TotalRequestsDur[route]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_invocations_total Total agent invocations by agent type\n")
	sb.WriteString("# TYPE agentmart_invocations_total counter\n")
	for _, agent := range sortedKeys(snap.Invocations) {
		sb.WriteString(fmt.Sprintf("agentmart_invocations_total{agent=\"%s\"} %d\n", agent, snap.Invocations[agent]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_invocation_errors_total Failed agent invocations by agent type\n")
	sb.WriteString("# TYPE agentmart_invocation_errors_total counter\n")
	for _, agent := range sortedKeys(snap.InvocationErrors) {
		sb.WriteString(fmt.Sprintf("agentmart_invocation_errors_total{agent=\"%s\"} %d\n", agent, snap.InvocationErrors[agent]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_invocation_latency_ms_total Cumulative adapter latency in milliseconds\n")
	sb.WriteString("# TYPE agentmart_invocation_latency_ms_total counter\n")
	for _, agent := range sortedKeys(snap.InvocationLatency) {
		sb.WriteString(fmt.Sprintf("agentmart_invocation_latency_ms_total{agent=\"%s\"} %d\n", agent, snap.InvocationLatency[agent]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_tokens_settled_total Billed provider tokens by agent type\n")
	sb.WriteString("# TYPE agentmart_tokens_settled_total counter\n")
	for _, agent := range sortedKeys(snap.TokensSettled) {
		sb.WriteString(fmt.Sprintf("agentmart_tokens_settled_total{agent=\"%s\"} %d\n", agent, snap.TokensSettled[agent]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_tokens_charged_total Platform tokens charged by agent type\n")
	sb.WriteString("# TYPE agentmart_tokens_charged_total counter\n")
	for _, agent := range sortedKeys(snap.TokensCharged) {
		sb.WriteString(fmt.Sprintf("agentmart_tokens_charged_total{agent=\"%s\"} %d\n", agent, snap.TokensCharged[agent]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_purchases_total Total token package purchases\n")
	sb.WriteString("# TYPE agentmart_purchases_total counter\n")
	sb.WriteString(fmt.Sprintf("agentmart_purchases_total %d\n", snap.Purchases))
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_purchased_tokens_total Total tokens sold through purchases\n")
	sb.WriteString("# TYPE agentmart_purchased_tokens_total counter\n")
	sb.WriteString(fmt.Sprintf("agentmart_purchased_tokens_total %d\n", snap.PurchasedTokens))
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_topups_total Total balance top-ups\n")
	sb.WriteString("# TYPE agentmart_topups_total counter\n")
	sb.WriteString(fmt.Sprintf("agentmart_topups_total %d\n", snap.Topups))
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_topup_tokens_total Total tokens credited through top-ups\n")
	sb.WriteString("# TYPE agentmart_topup_tokens_total counter\n")
	sb.WriteString(fmt.Sprintf("agentmart_topup_tokens_total %d\n", snap.TopupTokens))
	sb.WriteString("\n")

	sb.WriteString("# HELP agentmart_settlement_races_total Settlements lost to a concurrent debit\n")
	sb.WriteString("# TYPE agentmart_settlement_races_total counter\n")
	sb.WriteString(fmt.Sprintf("agentmart_settlement_races_total %d\n", snap.SettlementRaces))
	sb.WriteString("\n")

	return sb.String()
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
