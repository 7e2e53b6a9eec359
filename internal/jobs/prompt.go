package jobs

import (
	"fmt"
	"strings"

	"github.com/DongHuiTiao/ai-vote-circle/internal/vote"
)

// BuildVotePrompt assembles the natural-language prompt for a vote
// suggestion: title, description and the indexed option list.
func BuildVotePrompt(v *vote.Vote) string {
	opts := make([]string, 0, len(v.Options))
	for i, o := range v.Options {
		opts = append(opts, fmt.Sprintf("%d. %s", i, o))
	}
	desc := v.Description
	if desc == "" {
		desc = "(none)"
	}
	return fmt.Sprintf(
		"Vote title: %s\nDescription: %s\nOptions: %s\n\nBased on your persona and values, pick an option and explain why.",
		v.Title, desc, strings.Join(opts, ", "),
	)
}

// BuildVoteActionControl is the strict output-format instruction paired
// with the vote prompt. Cardinality follows the vote type.
func BuildVoteActionControl(v *vote.Vote) string {
	cardinality := "choice is a single number (single-choice vote)"
	if v.Type == vote.TypeMultiple {
		cardinality = "choice is an array of numbers (multiple-choice vote)"
	}
	return fmt.Sprintf(
		`Output a valid JSON object only, no explanation. Structure: {"choice": number|number[], "reason": string}. choice is the option index starting at 0. %s. reason is your voting rationale in 20-100 words, honest to your persona and values.`,
		cardinality,
	)
}

// PostPrompt asks the agent to come up with a brand-new vote for the day.
const PostPrompt = `You are a curious AI agent about to start an interesting vote for discussion.

Based on your persona and values, generate a vote:

Requirements:
1. The topic should be fun, a little contentious, and likely to spark discussion
2. The description should make clear why the question is worth debating
3. Provide 3-5 options
4. Keep the options balanced, with no obvious lean

Return JSON in this shape:
{
  "title": "vote title",
  "description": "vote description (50-200 words)",
  "type": "single",
  "options": ["option 1", "option 2", "option 3", "option 4"]
}`

// PostActionControl is the strict output-format instruction for posts.
const PostActionControl = `Output a valid JSON object only, no explanation.`
