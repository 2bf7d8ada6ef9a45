package streamsvc

import (
	"encoding/json"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/esdb/internal/eventlog"
)

// celFilter wraps a compiled CEL program evaluated against committed log
// batches. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("stream", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("event_type", cel.StringType),
		cel.Variable("event_number", cel.IntType),
		cel.Variable("prepare_position", cel.IntType),
		cel.Variable("commit_position", cel.IntType),
		// Number of events committed by the batch
		cel.Variable("count", cel.IntType),
		// Parsed data and metadata of JSON events; empty maps otherwise
		cel.Variable("json", cel.DynType),
		cel.Variable("metadata", cel.DynType),
		cel.Variable("size", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return celFilter{}, invalidf("filter must evaluate to bool, got %s", checked.OutputType())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval reports whether any event of the batch matches. Batches without
// events (deletions) are evaluated once with an empty event_type and the
// resulting revision as event_number.
func (f celFilter) Eval(b eventlog.Batch) bool {
	if !f.enabled {
		return true
	}
	vars := map[string]any{
		"stream":           b.Commit.Stream,
		"kind":             b.Commit.Kind.String(),
		"event_type":       "",
		"event_number":     b.Commit.Revision,
		"prepare_position": int64(b.Commit.PreparePosition),
		"commit_position":  int64(b.CommitPosition),
		"count":            int64(b.Commit.EventCount),
		"json":             map[string]any{},
		"metadata":         map[string]any{},
		"size":             int64(0),
	}
	if len(b.Events) == 0 {
		return f.eval(vars)
	}
	for _, ev := range b.Events {
		vars["event_type"] = ev.EventType
		vars["event_number"] = ev.EventNumber
		vars["json"] = parseJSON(ev.Data, ev.IsJSON)
		vars["metadata"] = parseJSON(ev.Metadata, ev.IsJSON)
		vars["size"] = int64(len(ev.Data))
		if f.eval(vars) {
			return true
		}
	}
	return false
}

func (f celFilter) eval(vars map[string]any) bool {
	out, _, err := f.prog.Eval(vars)
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

func parseJSON(b []byte, isJSON bool) any {
	if !isJSON || len(b) == 0 {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return map[string]any{}
	}
	return v
}
