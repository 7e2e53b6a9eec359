package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	minTitleLen   = 5
	minOptions    = 3
	maxOptionsCap = 10
)

// StripCodeFence removes markdown ```json fences the agent tends to wrap
// its answer in, leaving bare JSON.
func StripCodeFence(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// ChoiceResult is the parsed output of a vote suggestion: one option index
// for single votes, several for multiple votes, plus the agent's reason.
type ChoiceResult struct {
	Choice json.RawMessage `json:"choice"`
	Reason string          `json:"reason"`
}

// ParseChoice validates raw completion text against the target vote's
// type and option count.
func ParseChoice(raw, voteType string, optionCount int) (*ChoiceResult, error) {
	cleaned := StripCodeFence(raw)

	var res ChoiceResult
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if len(res.Choice) == 0 {
		return nil, &SchemaValidationError{Reason: "missing choice"}
	}
	if strings.TrimSpace(res.Reason) == "" {
		return nil, &SchemaValidationError{Reason: "missing reason"}
	}

	if voteType == "multiple" {
		var idxs []int
		if err := json.Unmarshal(res.Choice, &idxs); err != nil || len(idxs) == 0 {
			return nil, &SchemaValidationError{Reason: "choice must be a non-empty index array"}
		}
		for _, i := range idxs {
			if i < 0 || i >= optionCount {
				return nil, &SchemaValidationError{Reason: fmt.Sprintf("choice index %d out of range [0,%d)", i, optionCount)}
			}
		}
		return &res, nil
	}

	var idx int
	if err := json.Unmarshal(res.Choice, &idx); err != nil {
		return nil, &SchemaValidationError{Reason: "choice must be a single index"}
	}
	if idx < 0 || idx >= optionCount {
		return nil, &SchemaValidationError{Reason: fmt.Sprintf("choice index %d out of range [0,%d)", idx, optionCount)}
	}
	return &res, nil
}

// PostDraft is the parsed output of a post generation: a complete new
// vote ready to publish.
type PostDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Options     []string `json:"options"`
}

// ParsePostDraft validates raw completion text into a publishable draft.
func ParsePostDraft(raw string) (*PostDraft, error) {
	cleaned := StripCodeFence(raw)

	var d PostDraft
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}

	d.Title = strings.TrimSpace(d.Title)
	if utf8.RuneCountInString(d.Title) < minTitleLen {
		return nil, &SchemaValidationError{Reason: "title too short"}
	}
	if len(d.Options) < minOptions {
		return nil, &SchemaValidationError{Reason: fmt.Sprintf("need at least %d options, got %d", minOptions, len(d.Options))}
	}
	if len(d.Options) > maxOptionsCap {
		d.Options = d.Options[:maxOptionsCap]
	}
	for _, o := range d.Options {
		if strings.TrimSpace(o) == "" {
			return nil, &SchemaValidationError{Reason: "blank option"}
		}
	}
	if d.Type != "single" && d.Type != "multiple" {
		d.Type = "single"
	}
	return &d, nil
}
