package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	documentsRegistered atomic.Int64
	documentsParsed     atomic.Int64
	parseFailures       atomic.Int64
	candidatesDropped   atomic.Int64
	recordsCreated      atomic.Int64
	dashboardsGenerated atomic.Int64
	dashboardsReused    atomic.Int64
	claimConflicts      atomic.Int64
)

func IncDocumentsRegistered()       { documentsRegistered.Add(1) }
func IncDocumentsParsed()           { documentsParsed.Add(1) }
func IncParseFailures()             { parseFailures.Add(1) }
func AddCandidatesDropped(n int)    { candidatesDropped.Add(int64(n)) }
func AddRecordsCreated(n int)       { recordsCreated.Add(int64(n)) }
func IncDashboardsGenerated()       { dashboardsGenerated.Add(1) }
func IncDashboardsReused()          { dashboardsReused.Add(1) }
func IncClaimConflicts()            { claimConflicts.Add(1) }

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	fmt.Fprintf(w, "# HELP medichat_documents_registered_total Documents registered after a successful blob store.\n")
	fmt.Fprintf(w, "# TYPE medichat_documents_registered_total counter\n")
	fmt.Fprintf(w, "medichat_documents_registered_total %d\n", documentsRegistered.Load())

	fmt.Fprintf(w, "# HELP medichat_documents_parsed_total Documents that completed a parse and transitioned to parsed.\n")
	fmt.Fprintf(w, "# TYPE medichat_documents_parsed_total counter\n")
	fmt.Fprintf(w, "medichat_documents_parsed_total %d\n", documentsParsed.Load())

	fmt.Fprintf(w, "# HELP medichat_parse_failures_total Parse attempts that transitioned a document to error.\n")
	fmt.Fprintf(w, "# TYPE medichat_parse_failures_total counter\n")
	fmt.Fprintf(w, "medichat_parse_failures_total %d\n", parseFailures.Load())

	fmt.Fprintf(w, "# HELP medichat_candidates_dropped_total Extraction candidates discarded during consolidation.\n")
	fmt.Fprintf(w, "# TYPE medichat_candidates_dropped_total counter\n")
	fmt.Fprintf(w, "medichat_candidates_dropped_total %d\n", candidatesDropped.Load())

	fmt.Fprintf(w, "# HELP medichat_records_created_total Clinical record rows created by consolidation.\n")
	fmt.Fprintf(w, "# TYPE medichat_records_created_total counter\n")
	fmt.Fprintf(w, "medichat_records_created_total %d\n", recordsCreated.Load())

	fmt.Fprintf(w, "# HELP medichat_dashboards_generated_total Daily dashboards generated via the summarization service.\n")
	fmt.Fprintf(w, "# TYPE medichat_dashboards_generated_total counter\n")
	fmt.Fprintf(w, "medichat_dashboards_generated_total %d\n", dashboardsGenerated.Load())

	fmt.Fprintf(w, "# HELP medichat_dashboards_reused_total Dashboard requests satisfied by the same-day idempotency short-circuit.\n")
	fmt.Fprintf(w, "# TYPE medichat_dashboards_reused_total counter\n")
	fmt.Fprintf(w, "medichat_dashboards_reused_total %d\n", dashboardsReused.Load())

	fmt.Fprintf(w, "# HELP medichat_claim_conflicts_total Requests that lost an at-most-one claim race.\n")
	fmt.Fprintf(w, "# TYPE medichat_claim_conflicts_total counter\n")
	fmt.Fprintf(w, "medichat_claim_conflicts_total %d\n", claimConflicts.Load())
}
