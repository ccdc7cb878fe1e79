package classifier

import "strings"

const instructions = `You file short personal notes into exactly one category. Return JSON only.

Categories and the fields to extract:
- people: a person to remember or follow up with
  {"name", "context", "follow_ups"}
- projects: multi-step work with a next action
  {"name", "status" (active|waiting|blocked|someday|done), "next_action", "notes"}
- ideas: a thought worth keeping, not yet actionable
  {"title", "one_liner", "elaboration"}
- admin: a single errand or task, possibly with a due date
  {"name", "due_date" (YYYY-MM-DD or null), "notes"}
- decisions: a choice that was made and why
  {"title", "decision", "rationale", "context"}
- howtos: instructions for doing something
  {"title", "content"}
- snippets: a piece of code, a command or a reusable text fragment
  {"title", "content"}

Return a JSON object with this structure:
{
  "category": "people|projects|ideas|admin|decisions|howtos|snippets",
  "confidence": 0.85,
  "extracted": { ...fields for the category... },
  "tags": ["lowercase-tag", "another-tag"]
}

Rules:
- confidence is 0.0-1.0; use values below 0.6 when the note could reasonably fit several categories
- keep names and titles short; put detail in the longer fields
- suggest 0-3 lowercase, hyphenated tags
- return ONLY the JSON, no other text

Note:
`

func buildPrompt(text string) string {
	var sb strings.Builder
	sb.Grow(len(instructions) + len(text))
	sb.WriteString(instructions)
	sb.WriteString(text)
	return sb.String()
}
