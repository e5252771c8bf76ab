package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"geocontext/internal/fusion"
	"geocontext/internal/llmclient"
	"geocontext/internal/snapshot"
)

// Engine answers questions against a snapshot. Generative synthesis is
// attempted first; every failure lands in the templated answer, so
// Answer never returns an error.
type Engine struct {
	LLM     llmclient.LLMClient
	Places  snapshot.PlacesAdapter
	Matcher Matcher

	// requeryCache keeps on-demand lookups so repeated questions about
	// the same narrow category don't re-hit the provider.
	requeryCache *expirable.LRU[string, []fusion.POI]
}

func NewEngine(llm llmclient.LLMClient, places snapshot.PlacesAdapter, matcher Matcher) *Engine {
	if matcher == nil {
		matcher = NewKeywords()
	}
	return &Engine{
		LLM:          llm,
		Places:       places,
		Matcher:      matcher,
		requeryCache: expirable.NewLRU[string, []fusion.POI](64, nil, 10*time.Minute),
	}
}

// Answer resolves the question's intent, gathers matching POIs (from
// the snapshot, or via a live re-query for narrow categories), and
// synthesizes a reply.
func (e *Engine) Answer(ctx context.Context, question string, snap *snapshot.ContextSnapshot, prior *snapshot.Report) (string, []string, snapshot.SourcesUsed) {
	intent := e.Matcher.Match(question)
	var limitations []string

	candidates := snap.POIsByCategory[intent.Category]
	if intent.Requery && len(candidates) == 0 && e.Places != nil {
		extra, err := e.requery(ctx, snap, intent)
		if err != nil {
			// Re-query failure means "no data", never an error.
			limitations = append(limitations,
				fmt.Sprintf("A live lookup for %s places was unavailable.", intent.Category))
		} else {
			candidates = extra
		}
	}

	if answer, ok := e.generative(ctx, question, intent, snap, candidates, prior); ok {
		return answer, limitations, snap.SourcesUsed
	}

	answer, tmplLimits := templated(intent, snap, candidates)
	return answer, append(limitations, tmplLimits...), snap.SourcesUsed
}

func (e *Engine) requery(ctx context.Context, snap *snapshot.ContextSnapshot, intent Intent) ([]fusion.POI, error) {
	key := fmt.Sprintf("%.6f:%.6f:%d:%s",
		snap.Center.Lat, snap.Center.Lon, snap.RadiusMeters, strings.Join(intent.Selectors, ","))
	if hit, ok := e.requeryCache.Get(key); ok {
		return hit, nil
	}
	recs, err := e.Places.Search(ctx, snap.Center, snap.RadiusMeters, intent.Selectors)
	if err != nil {
		return nil, err
	}
	byCat, _ := fusion.Fuse(snap.Center, snap.RadiusMeters, recs)
	pois := byCat[intent.Category]
	e.requeryCache.Add(key, pois)
	return pois, nil
}

// -------- generative path --------

type chatInput struct {
	Question   string               `json:"question"`
	Intent     string               `json:"intent"`
	Place      snapshot.Place       `json:"place"`
	Candidates []fusion.POI         `json:"candidates"`
	Prior      *snapshot.Report     `json:"prior_report,omitempty"`
	Sources    snapshot.SourcesUsed `json:"sources_used"`
}

const chatPrompt = `[PURPOSE]
Answer the user's question about the immediate surroundings of the given place, in the language of the question.

[OUTPUT]
- answer (string, required): a short conversational reply

[CONSTRAINTS]
- Return strict JSON only: {"answer":"..."}
- Mention only places listed under candidates.
- If candidates is empty, say plainly that nothing matching was found nearby.
`

// generative makes a single model call (no tool loop) and screens the
// reply with lightweight heuristics.
func (e *Engine) generative(ctx context.Context, question string, intent Intent, snap *snapshot.ContextSnapshot, candidates []fusion.POI, prior *snapshot.Report) (string, bool) {
	if e.LLM == nil {
		return "", false
	}
	raw, err := e.LLM.GenerateJSON(ctx, chatPrompt, chatInput{
		Question:   question,
		Intent:     intent.Name,
		Place:      snap.Place,
		Candidates: candidates,
		Prior:      prior,
		Sources:    snap.SourcesUsed,
	})
	if err != nil {
		log.Printf("chat: generative answer failed: %v", err)
		return "", false
	}
	var out struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", false
	}
	if !plausibleAnswer(out.Answer, len(candidates) > 0) {
		return "", false
	}
	return strings.TrimSpace(out.Answer), true
}

var refusals = []string{
	"i don't know", "i do not know", "i cannot", "no information available",
	"lo siento", "no puedo", "as an ai",
}

// plausibleAnswer rejects empty replies, raw structured payloads, and
// stock refusals when matching data actually exists.
func plausibleAnswer(answer string, haveData bool) bool {
	a := strings.TrimSpace(answer)
	if a == "" {
		return false
	}
	if strings.HasPrefix(a, "{") || strings.HasPrefix(a, "[") {
		return false
	}
	if haveData {
		low := strings.ToLower(a)
		for _, phrase := range refusals {
			if strings.Contains(low, phrase) {
				return false
			}
		}
	}
	return true
}

// -------- templated path --------

// templated renders the fixed recommendation / rationale / alternatives
// / limitations shape from the nearest matching POIs.
func templated(intent Intent, snap *snapshot.ContextSnapshot, candidates []fusion.POI) (string, []string) {
	where := snap.Place.Name
	if where == "" {
		where = fmt.Sprintf("%.4f, %.4f", snap.Center.Lat, snap.Center.Lon)
	}
	if len(candidates) == 0 {
		answer := fmt.Sprintf("No %s places were found within %d m of %s.",
			intent.Category, snap.RadiusMeters, where)
		return answer, []string{fmt.Sprintf("The snapshot holds no %s data for this area.", intent.Category)}
	}

	best := candidates[0]
	var b strings.Builder
	fmt.Fprintf(&b, "Closest match: %s, about %.0f m away.", best.Name, best.DistanceMeters)
	fmt.Fprintf(&b, " It is the nearest of %d %s option(s) mapped around %s.",
		len(candidates), best.Category, where)
	if n := len(candidates); n > 1 {
		alts := make([]string, 0, 2)
		for _, c := range candidates[1:] {
			alts = append(alts, fmt.Sprintf("%s (%.0f m)", c.Name, c.DistanceMeters))
			if len(alts) == 2 {
				break
			}
		}
		fmt.Fprintf(&b, " Alternatives: %s.", strings.Join(alts, ", "))
	}

	var limitations []string
	if !snap.SourcesUsed.Places {
		limitations = append(limitations, "The primary places index was unavailable for this snapshot; listings may be incomplete.")
	}
	return b.String(), limitations
}
