package controllers

import (
	"net/http"

	streamsvc "github.com/rzbill/esdb/internal/services/streams"
)

// LogController serves read-only scans of the committed transaction log.
type LogController struct {
	svc *streamsvc.Service
}

func NewLogController(svc *streamsvc.Service) *LogController {
	return &LogController{svc: svc}
}

func (c *LogController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/log", c.handleScan)
}

// handleScan lists committed batches.
//
// Query parameters: from (commit position), limit, filter (CEL) and wait_ms,
// which long-polls for the next commit when nothing matches yet.
func (c *LogController) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	res, err := c.svc.ScanLog(r.Context(), streamsvc.ScanOptions{
		From:   parseUint(q.Get("from")),
		Limit:  parseLimit(q.Get("limit")),
		Filter: q.Get("filter"),
		Wait:   parseWait(q.Get("wait_ms")),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, fromScanResult(res))
}
