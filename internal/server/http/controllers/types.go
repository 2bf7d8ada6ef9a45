package controllers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	streamsvc "github.com/rzbill/esdb/internal/services/streams"
)

// Common request/response types for HTTP controllers

// eventJSON is one event on the wire. Data and metadata of JSON events are
// embedded verbatim; binary payloads travel as base64 strings.
type eventJSON struct {
	EventID  string          `json:"event_id,omitempty"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
	IsJSON   bool            `json:"is_json"`
}

// appendReq represents a request to append a batch of events to a stream.
type appendReq struct {
	Stream          string                    `json:"stream"`
	ExpectedVersion streamsvc.ExpectedVersion `json:"expected_version"`
	Events          []eventJSON               `json:"events"`
}

type appendResp struct {
	NextExpectedVersion int64  `json:"next_expected_version"`
	PreparePosition     uint64 `json:"prepare_position"`
	CommitPosition      uint64 `json:"commit_position"`
}

// deleteReq represents a soft or hard delete of a stream.
type deleteReq struct {
	Stream          string                    `json:"stream"`
	ExpectedVersion streamsvc.ExpectedVersion `json:"expected_version"`
	Hard            bool                      `json:"hard"`
}

type deleteResp struct {
	PreparePosition uint64 `json:"prepare_position"`
	CommitPosition  uint64 `json:"commit_position"`
}

type streamStateResp struct {
	Stream       string `json:"stream"`
	Revision     int64  `json:"revision"`
	Deletion     string `json:"deletion_state"`
	Incarnation  uint32 `json:"incarnation"`
	LastRevision int64  `json:"last_revision"`
}

type recordedEventJSON struct {
	eventJSON
	EventNumber int64  `json:"event_number"`
	Position    uint64 `json:"position"`
}

type logBatchJSON struct {
	Kind            string              `json:"kind"`
	Stream          string              `json:"stream"`
	Incarnation     uint32              `json:"incarnation"`
	PreparePosition uint64              `json:"prepare_position"`
	CommitPosition  uint64              `json:"commit_position"`
	Revision        int64               `json:"revision"`
	Deletion        string              `json:"deletion_state"`
	Events          []recordedEventJSON `json:"events"`
}

type logResp struct {
	Batches      []logBatchJSON `json:"batches"`
	Next         uint64         `json:"next"`
	LastPosition uint64         `json:"last_position"`
}

// errorResp is the body of every failed request. Rejections carry the stream
// state the client should retry against.
type errorResp struct {
	Error          string `json:"error"`
	Code           string `json:"code,omitempty"`
	Stream         string `json:"stream,omitempty"`
	Expected       string `json:"expected_version,omitempty"`
	ActualRevision *int64 `json:"actual_revision,omitempty"`
	Deletion       string `json:"deletion_state,omitempty"`
	Op             string `json:"op,omitempty"`
}

func (e eventJSON) toEventData() (streamsvc.EventData, error) {
	var out streamsvc.EventData
	if e.EventID != "" {
		id, err := uuid.Parse(e.EventID)
		if err != nil {
			return out, fmt.Errorf("event_id: %w", err)
		}
		out.EventID = id
	}
	out.Type = e.Type
	out.IsJSON = e.IsJSON
	var err error
	if out.Data, err = decodePayload(e.Data, e.IsJSON); err != nil {
		return out, fmt.Errorf("data: %w", err)
	}
	if out.Metadata, err = decodePayload(e.Metadata, e.IsJSON); err != nil {
		return out, fmt.Errorf("metadata: %w", err)
	}
	return out, nil
}

func decodePayload(raw json.RawMessage, isJSON bool) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if isJSON {
		return append([]byte(nil), raw...), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("binary payloads must be base64 strings")
	}
	return base64.StdEncoding.DecodeString(s)
}

func encodePayload(b []byte, isJSON bool) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	if isJSON && json.Valid(b) {
		return json.RawMessage(b)
	}
	out, _ := json.Marshal(base64.StdEncoding.EncodeToString(b))
	return out
}

func fromScanResult(res streamsvc.ScanResult) logResp {
	out := logResp{Batches: make([]logBatchJSON, 0, len(res.Batches)), Next: res.Next, LastPosition: res.LastPosition}
	for _, b := range res.Batches {
		lb := logBatchJSON{
			Kind:            b.Kind,
			Stream:          b.Stream,
			Incarnation:     b.Incarnation,
			PreparePosition: b.LogPosition.PreparePosition,
			CommitPosition:  b.LogPosition.CommitPosition,
			Revision:        b.Revision,
			Deletion:        b.Deletion.String(),
			Events:          make([]recordedEventJSON, 0, len(b.Events)),
		}
		for _, ev := range b.Events {
			lb.Events = append(lb.Events, recordedEventJSON{
				eventJSON: eventJSON{
					EventID:  ev.EventID.String(),
					Type:     ev.Type,
					Data:     encodePayload(ev.Data, ev.IsJSON),
					Metadata: encodePayload(ev.Metadata, ev.IsJSON),
					IsJSON:   ev.IsJSON,
				},
				EventNumber: ev.EventNumber,
				Position:    ev.Position,
			})
		}
		out.Batches = append(out.Batches, lb)
	}
	return out
}
