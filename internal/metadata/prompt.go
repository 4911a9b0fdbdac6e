package metadata

import (
	"fmt"
	"strings"
	"time"
)

const systemPrompt = "You are a helpful assistant specialized in YouTube metadata optimization. " +
	"Reply with a single JSON object and nothing else."

const noTranscript = "No transcript available."

// HookWords seed the opening of every generated title.
var HookWords = []string{
	"EPIC", "SHOCKING", "SECRET", "WARNING", "ULTIMATE", "BEHIND-THE-SCENES",
	"AMAZING", "INCREDIBLE", "UNBELIEVABLE", "INSANE", "CRAZY", "MIND-BLOWING",
	"LEGENDARY", "WILD", "UNSTOPPABLE", "HILARIOUS", "HEARTWARMING", "TERRIFYING",
	"INSPIRING", "BEAUTIFUL", "FUNNY", "STRANGE", "MOVING", "UNEXPECTED",
	"DRAMATIC", "IMPOSSIBLE", "EXTREME", "HARDCORE", "SAVAGE",
	"GENIUS", "NEXT-LEVEL", "REVOLUTIONARY", "UNSEEN", "RARE", "TOP-SECRET",
	"EXCLUSIVE", "BEYOND-BELIEF", "CRITICAL", "LIFE-CHANGING", "GAME-CHANGING",
	"VIRAL", "TRENDING", "HIDDEN", "LIMITED", "RIDICULOUS", "UNFILTERED",
	"RAW", "UNEDITED", "PROVEN", "BRILLIANT", "CONTROVERSIAL", "OUTRAGEOUS",
	"STUNNING", "MYSTERIOUS", "FORBIDDEN", "MASSIVE", "HUGE", "BREAKING",
	"INSIDER", "GROUNDBREAKING", "POWERFUL", "UNIMAGINABLE", "TOP-TIER",
}

// PromptInput is everything the prompt is built from.
type PromptInput struct {
	Filename   string
	Duration   time.Duration
	Resolution string
	Transcript string
	Categories []string
	Suggested  string
}

// BuildPrompt renders the user message sent to the completion service.
func BuildPrompt(in PromptInput) string {
	transcript := strings.TrimSpace(in.Transcript)
	if transcript == "" {
		transcript = noTranscript
	}

	var b strings.Builder
	b.WriteString("Generate YouTube metadata as a JSON object with exactly the keys ")
	b.WriteString(`"title", "description", "tags" (array of strings) and "category" for ANY video type. RULES:` + "\n")
	b.WriteString("1. TITLE:\n")
	fmt.Fprintf(&b, "   - Start with 1-2 CAPS hook words from: %s\n", strings.Join(HookWords, ", "))
	b.WriteString("   - Add intrigue in parentheses: (Gone Wrong?), (Here's Why), (3 AM Challenge)\n")
	b.WriteString("   - Example for 'Gardening_Tips.mp4': 'SECRET Gardening Hacks (You've NEVER Seen Before!)'\n")
	b.WriteString("2. DESCRIPTION:\n")
	b.WriteString("   - First line: Pose a question or tease drama\n")
	b.WriteString("   - Include 2-3 emojis (🎥, 🔥, ⚠️)\n")
	b.WriteString("   - Add CTA: Ask viewers to comment/subscribe\n")
	b.WriteString("3. TAGS:\n")
	b.WriteString("   - Mix niche and trending terms\n")
	b.WriteString("   - Include 2-3 misspelled versions of key terms\n")
	b.WriteString("4. CATEGORY:\n")
	fmt.Fprintf(&b, "   - Exactly one of: %s\n", strings.Join(in.Categories, ", "))
	if in.Suggested != "" {
		fmt.Fprintf(&b, "   - Keyword match suggests: %s\n", in.Suggested)
	}
	b.WriteString("---\n")
	fmt.Fprintf(&b, "Filename: %s\n", in.Filename)
	fmt.Fprintf(&b, "Duration: %ds\n", int64(in.Duration/time.Second))
	if in.Resolution != "" {
		fmt.Fprintf(&b, "Resolution: %s\n", in.Resolution)
	}
	fmt.Fprintf(&b, "Transcript: %s", transcript)
	return b.String()
}
