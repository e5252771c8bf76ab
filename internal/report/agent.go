package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"geocontext/internal/fusion"
	"geocontext/internal/geo"
	"geocontext/internal/llmclient"
	"geocontext/internal/metrics"
	"geocontext/internal/snapshot"
	"geocontext/internal/source"
)

// State names the phases of the agent's round loop. A run moves
// AWAITING_MODEL -> (TOOL_CALL_REQUESTED -> TOOL_EXECUTED)* ->
// FINAL_CANDIDATE -> ACCEPTED | REJECTED.
type State string

const (
	StateAwaitingModel     State = "AWAITING_MODEL"
	StateToolCallRequested State = "TOOL_CALL_REQUESTED"
	StateToolExecuted      State = "TOOL_EXECUTED"
	StateFinalCandidate    State = "FINAL_CANDIDATE"
	StateAccepted          State = "ACCEPTED"
	StateRejected          State = "REJECTED"
)

// ErrMaxRounds means the model used up its round budget without
// producing an accepted final answer. It is a rejection, not a failure.
var ErrMaxRounds = errors.New("report: max rounds reached")

// actionEnvelope is the per-round response protocol. A tool action may
// carry several calls; they run concurrently within the round.
type actionEnvelope struct {
	Action string     `json:"action,omitempty"`
	Calls  []toolCall `json:"calls,omitempty"`
	// Single-call shorthand, folded into Calls during parsing.
	ToolName  string          `json:"tool_name,omitempty"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
	Final     json.RawMessage `json:"final,omitempty"`
}

type toolCall struct {
	ToolName  string          `json:"tool_name"`
	ToolInput json.RawMessage `json:"tool_input,omitempty"`
}

func parseAction(raw json.RawMessage) (actionEnvelope, error) {
	var env actionEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return actionEnvelope{}, fmt.Errorf("report: bad action envelope: %w", err)
	}
	if env.ToolName != "" {
		env.Calls = append([]toolCall{{ToolName: env.ToolName, ToolInput: env.ToolInput}}, env.Calls...)
	}
	if env.Action == "" {
		switch {
		case len(env.Final) > 0:
			env.Action = "final"
		case len(env.Calls) > 0:
			env.Action = "tool"
		default:
			// No recognizable envelope fields; treat the whole payload
			// as a direct final answer.
			env.Action = "final"
			env.Final = raw
		}
	}
	switch env.Action {
	case "final", "tool":
		return env, nil
	default:
		return actionEnvelope{}, fmt.Errorf("report: invalid action %q", env.Action)
	}
}

// Agent drives the bounded tool-calling loop against the generative
// backend. A nil LLM short-circuits to the deterministic fallback.
type Agent struct {
	LLM   llmclient.LLMClient
	Tools *Registry

	MaxRounds  int           // model round-trips per attempt, default 4
	Timeout    time.Duration // aggregate budget across both attempts, default 45s
	ReduceKeep int           // POIs kept per category on the retry attempt, default 3
}

// Generate produces a report for the snapshot. Never errors: every
// failure path lands in the deterministic fallback. The bool reports
// whether the generative path produced the result.
func (a *Agent) Generate(ctx context.Context, snap *snapshot.ContextSnapshot, placeName string) (snapshot.Report, bool, []string) {
	if placeName == "" {
		placeName = snap.Place.Name
	}
	if a == nil || a.LLM == nil {
		metrics.ReportOutcomeTotal.WithLabelValues("fallback").Inc()
		return Fallback(snap, "generative backend not configured"), false, nil
	}

	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rep, err := a.attempt(ctx, snap, placeName, false)
	if err == nil {
		metrics.ReportOutcomeTotal.WithLabelValues("accepted").Inc()
		return rep, true, nil
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		// One retry, reduced snapshot, stricter instruction. Only
		// validation rejections earn it; budget exhaustion does not.
		keep := a.ReduceKeep
		if keep <= 0 {
			keep = 3
		}
		log.Printf("report: candidate rejected (%s), retrying with reduced snapshot", vErr.Reason)
		rep, retryErr := a.attempt(ctx, snap.Reduced(keep), placeName, true)
		if retryErr == nil {
			metrics.ReportOutcomeTotal.WithLabelValues("accepted").Inc()
			return rep, true, []string{"report regenerated after a rejected first draft"}
		}
		err = retryErr
	}

	metrics.ReportOutcomeTotal.WithLabelValues("fallback").Inc()
	reason := fallbackReason(err)
	log.Printf("report: generative path abandoned: %v", err)
	return Fallback(snap, reason), false, []string{"generative report unavailable: " + reason}
}

func fallbackReason(err error) string {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		return "generated output failed validation twice"
	case errors.Is(err, ErrMaxRounds):
		return "model round budget exhausted"
	case errors.Is(err, context.DeadlineExceeded):
		return "generation timed out"
	default:
		return "generative backend unavailable"
	}
}

// attempt runs one pass of the state machine to a terminal state.
func (a *Agent) attempt(ctx context.Context, snap *snapshot.ContextSnapshot, placeName string, strict bool) (snapshot.Report, error) {
	maxRounds := a.MaxRounds
	if maxRounds <= 0 {
		maxRounds = 4
	}
	spec := reportSpec(placeName, strict)
	var specs []ToolSpec
	if a.Tools != nil {
		specs = a.Tools.Specs()
	}

	var (
		history []toolExchange
		extra   []fusion.POI
	)
	for round := 0; round < maxRounds; round++ {
		prompt := renderPrompt(spec, specs, history)
		raw, err := a.LLM.GenerateJSON(ctx, prompt, snap)
		if err != nil {
			return snapshot.Report{}, fmt.Errorf("report: model call: %w", err)
		}
		env, err := parseAction(raw)
		if err != nil {
			return snapshot.Report{}, &ValidationError{Reason: err.Error()}
		}

		if env.Action == "final" {
			rep, err := Validate(env.Final, snap, extra)
			if err != nil {
				return snapshot.Report{}, err
			}
			return rep, nil
		}

		if a.Tools == nil {
			return snapshot.Report{}, &ValidationError{Reason: "tool call requested but no tools are available"}
		}
		results := a.executeCalls(ctx, env.Calls)
		history = append(history, results...)
		extra = append(extra, poisFromResults(snap, results)...)
	}
	return snapshot.Report{}, ErrMaxRounds
}

// executeCalls runs all tool calls of one round concurrently, keeping
// the model's call order in the returned slice.
func (a *Agent) executeCalls(ctx context.Context, calls []toolCall) []toolExchange {
	out := make([]toolExchange, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call toolCall) {
			defer wg.Done()
			res, err := a.Tools.Call(ctx, call.ToolName, call.ToolInput)
			ex := toolExchange{Name: call.ToolName, Input: call.ToolInput, Output: res}
			if err != nil {
				ex.Error = err.Error()
			}
			out[i] = ex
		}(i, call)
	}
	wg.Wait()
	return out
}

// poisFromResults widens the validator whitelist with places a tool
// call legitimately surfaced during this run.
func poisFromResults(snap *snapshot.ContextSnapshot, results []toolExchange) []fusion.POI {
	var out []fusion.POI
	for _, res := range results {
		if res.Name != ToolPlacesSearch || res.Error != "" || len(res.Output) == 0 {
			continue
		}
		var recs []source.PlaceRecord
		if err := json.Unmarshal(res.Output, &recs); err != nil {
			continue
		}
		for _, rec := range recs {
			if strings.TrimSpace(rec.Name) == "" {
				continue
			}
			cat, ok := fusion.Classify(rec.Provider, rec.RawKind)
			if !ok {
				continue
			}
			out = append(out, fusion.POI{
				Name:           rec.Name,
				Coordinate:     rec.Coordinate,
				DistanceMeters: geoDistance(snap, rec),
				Category:       cat,
				SourceProvider: rec.Provider,
			})
		}
	}
	return out
}

func geoDistance(snap *snapshot.ContextSnapshot, rec source.PlaceRecord) float64 {
	return geo.Haversine(snap.Center, rec.Coordinate)
}
