package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// PromptPreset holds reusable constraints for structured prompts.
type PromptPreset struct {
	Constraints []string
}

// PresetStrictJSON enforces strict JSON-only output.
func PresetStrictJSON() PromptPreset {
	return PromptPreset{
		Constraints: []string{
			"Return strict JSON only.",
			"Match the schema exactly; no extra fields.",
			"No markdown, comments, or trailing commas.",
		},
	}
}

// PresetNoInvent prevents fabricated place names.
func PresetNoInvent() PromptPreset {
	return PromptPreset{
		Constraints: []string{
			"Do not invent place names; name only places that appear in the snapshot or in tool results.",
			"Do not state risk levels the snapshot does not carry.",
		},
	}
}

// promptSpec defines the sections for a structured prompt.
type promptSpec struct {
	Purpose      string
	OutputFields []string
	Constraints  []string
	Rules        []string
}

func applyPresets(spec promptSpec, presets ...PromptPreset) promptSpec {
	var merged []string
	for _, p := range presets {
		merged = append(merged, p.Constraints...)
	}
	spec.Constraints = append(merged, spec.Constraints...)
	return spec
}

// toolExchange is one executed tool call, replayed into the next prompt.
type toolExchange struct {
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// renderPrompt builds the structured prompt sent each round. The input
// snapshot itself travels separately as the request's input JSON.
func renderPrompt(spec promptSpec, tools []ToolSpec, history []toolExchange) string {
	var buf bytes.Buffer
	writeSection(&buf, "PURPOSE", spec.Purpose)
	writeSection(&buf, "OUTPUT", formatList(spec.OutputFields))
	writeSection(&buf, "CONSTRAINTS", formatList(spec.Constraints))
	writeSection(&buf, "RULES", formatList(spec.Rules))
	writeSection(&buf, "TOOLS", formatToolSpecs(tools))
	writeSection(&buf, "TOOL_RESULTS", formatExchanges(history))
	writeSection(&buf, "ACTION_PROTOCOL", actionProtocol)
	return strings.TrimSpace(buf.String()) + "\n"
}

const actionProtocol = `Respond with one JSON object.
To call tools: {"action":"tool","calls":[{"tool_name":"...","tool_input":{...}}]}
To finish: {"action":"final","final":{...the report object...}}`

func reportSpec(placeName string, strict bool) promptSpec {
	spec := promptSpec{
		Purpose: fmt.Sprintf("Write a short local-context report for %q from the snapshot in the input JSON.", placeName),
		OutputFields: []string{
			"summary (string, required): two or three sentences on the area",
			"nearby_highlights (array, required): [{name, category, distance_meters}] picked from the snapshot",
			"risks (object, required): {flood, air_quality} one sentence each, grounded in the snapshot's risk layers",
			"land_use (string, required): one sentence from land cover or the land-use summary",
			"recommendation (string, required): one practical sentence for a visitor",
			"sources (array, required): the data sources actually used",
			"limitations (array, required): one entry per data axis the snapshot is missing",
			"insufficient_data (bool, required): true only when no highlights can be named",
		},
		Rules: []string{
			"Use tools only when the snapshot lacks something the report needs.",
			"Every highlight's name, category and distance must be copied from the snapshot or a tool result.",
		},
	}
	if strict {
		spec.Rules = append(spec.Rules,
			"Your previous answer was rejected for naming entities absent from the snapshot. Name ONLY places listed in the input JSON. If nothing qualifies, return empty highlights and insufficient_data=true.",
		)
	}
	return applyPresets(spec, PresetStrictJSON(), PresetNoInvent())
}

func formatList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var buf strings.Builder
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		fmt.Fprintf(&buf, "- %s\n", item)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func formatToolSpecs(tools []ToolSpec) string {
	if len(tools) == 0 {
		return ""
	}
	var buf strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&buf, "- %s: %s", t.Name, t.Description)
		if len(t.InputSchema) > 0 {
			fmt.Fprintf(&buf, " input=%s", string(t.InputSchema))
		}
		buf.WriteString("\n")
	}
	return strings.TrimRight(buf.String(), "\n")
}

func formatExchanges(history []toolExchange) string {
	if len(history) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func writeSection(buf *bytes.Buffer, title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	buf.WriteString("[")
	buf.WriteString(title)
	buf.WriteString("]\n")
	buf.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
}
