// Package responder renders the messages sent back to the user.
package responder

import (
	"fmt"
	"math"

	"github.com/pbaille/leaknote/internal/domain"
)

// Fixed texts
const (
	Skipped          = "👍 Skipped"
	StillUnclear     = "Still couldn't classify. Try using a prefix like `decision: your text`"
	FixNeedsReply    = "Please reply to the message you want to fix with `fix: <category>`"
	FixTargetMissing = "Couldn't find the original message to fix. Please reply directly to your message or the bot's confirmation."
)

const choices = "Reply with one of:\n" +
	"• `person:` - if about a person\n" +
	"• `project:` - if it's a project\n" +
	"• `idea:` - if it's an idea\n" +
	"• `admin:` - if it's a task/errand\n" +
	"• `decision:` - to save as a decision\n" +
	"• `howto:` - to save as a how-to\n" +
	"• `snippet:` - to save as a snippet\n" +
	"• `skip` - to ignore"

// Filed confirms a filed note
func Filed(c domain.Category, name string, confidence *float64) string {
	return fmt.Sprintf("✓ Filed as %s: %q\nConfidence: %d%%\nReply `fix: <category>` if wrong",
		domain.Display(c), name, percent(confidence))
}

// Clarify asks the user to pick a category. Without both a suggestion and a
// confidence the classifier had nothing usable.
func Clarify(suggestion domain.Category, confidence *float64) string {
	if suggestion == "" || confidence == nil || *confidence == 0 {
		return "❓ I couldn't classify this.\n\n" + choices
	}
	return fmt.Sprintf("🤔 Not sure about this one.\nBest guess: %s (%d%% confident)\n\n%s",
		domain.Display(suggestion), percent(confidence), choices)
}

// Fixed confirms a completed fix
func Fixed(from, to domain.Category, name string) string {
	return fmt.Sprintf("✓ Fixed: moved from %s → %s\nEntry: %q", domain.Display(from), domain.Display(to), name)
}

// Error renders a user-visible failure
func Error(msg string) string {
	return "⚠️ " + msg
}

func percent(confidence *float64) int {
	if confidence == nil {
		return 0
	}
	return int(math.Round(*confidence * 100))
}
