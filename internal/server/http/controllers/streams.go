package controllers

import (
	"fmt"
	"net/http"

	streamsvc "github.com/rzbill/esdb/internal/services/streams"
)

// maxDeleteBody bounds delete requests, which carry no payload.
const maxDeleteBody = 64 << 10

// StreamsController handles the stream write endpoints: append, delete and
// the stream state lookup used by clients to recover from rejections.
type StreamsController struct {
	svc *streamsvc.Service
}

// NewStreamsController creates a new streams controller.
func NewStreamsController(svc *streamsvc.Service) *StreamsController {
	return &StreamsController{svc: svc}
}

// RegisterRoutes registers stream routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Appending a batch (/v1/streams/append)
// - Soft and hard deletes (/v1/streams/delete)
// - Stream state (/v1/streams/state)
func (c *StreamsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/streams/append", c.handleAppend)
	mux.HandleFunc("/v1/streams/delete", c.handleDelete)
	mux.HandleFunc("/v1/streams/state", c.handleState)
}

// handleAppend appends a batch of events under an expected version.
//
// Returns 200 with the next expected version and log position. Rejections
// map to 409 (wrong expected version) and 410 (stream deleted).
func (c *StreamsController) handleAppend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req appendReq
	if !decodeBody(w, r, c.svc.Limits().RequestBytes(), &req) {
		return
	}
	events := make([]streamsvc.EventData, 0, len(req.Events))
	for i, ev := range req.Events {
		data, err := ev.toEventData()
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("event %d: %v", i, err))
			return
		}
		events = append(events, data)
	}
	res, err := c.svc.Append(r.Context(), streamsvc.AppendRequest{
		Stream:          req.Stream,
		ExpectedVersion: req.ExpectedVersion,
		Events:          events,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, appendResp{
		NextExpectedVersion: res.NextExpectedVersion,
		PreparePosition:     res.LogPosition.PreparePosition,
		CommitPosition:      res.LogPosition.CommitPosition,
	})
}

// handleDelete soft deletes a stream, or hard deletes it when "hard" is set.
func (c *StreamsController) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req deleteReq
	if !decodeBody(w, r, maxDeleteBody, &req) {
		return
	}
	res, err := c.svc.Delete(r.Context(), streamsvc.DeleteRequest{
		Stream:          req.Stream,
		ExpectedVersion: req.ExpectedVersion,
		Hard:            req.Hard,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, deleteResp{
		PreparePosition: res.LogPosition.PreparePosition,
		CommitPosition:  res.LogPosition.CommitPosition,
	})
}

// handleState returns the current state of ?stream=.
func (c *StreamsController) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	info, err := c.svc.StreamState(r.Context(), r.URL.Query().Get("stream"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, streamStateResp{
		Stream:       info.Stream,
		Revision:     info.Revision,
		Deletion:     info.Deletion.String(),
		Incarnation:  info.Incarnation,
		LastRevision: info.LastRevision,
	})
}
