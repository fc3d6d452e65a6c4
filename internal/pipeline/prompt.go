package pipeline

import (
	"fmt"
	"strings"

	"parley/internal/services"
	"parley/internal/store"
)

// Prompt is the assembled system/user prompt pair handed to the analyzer.
type Prompt struct {
	System string
	User   string
}

// Mode-specific system prompts. The mode is chosen by the client when the
// conversation is created.
var modePrompts = map[string]string{
	"default": "You are a thoughtful conversation analyst. Read the conversation " +
		"and produce a concise analysis: the main topics, the tone, and any " +
		"commitments or follow-ups mentioned. Write in plain prose.",
	"interview": "You are an interview coach. Read the interview transcript and " +
		"evaluate the answers: strengths, weaknesses, and concrete suggestions " +
		"for improvement. Be specific and constructive.",
	"meeting": "You are a meeting assistant. Read the meeting transcript and " +
		"produce a summary with decisions made, action items with owners where " +
		"identifiable, and open questions.",
	"reflection": "You are a reflective journaling companion. Read the spoken " +
		"reflection and respond with an empathetic summary of its themes and " +
		"one or two gentle questions worth sitting with.",
}

const (
	pairedPartyOneLabel = "Party one"
	pairedPartyTwoLabel = "Party two"
)

// BuildPrompt assembles the analyzer prompt for a conversation's mode and
// recording type. Paired recordings label the two transcripts as distinct
// parties; single recordings present the one transcript as the whole
// conversation. An unknown mode is a permanent failure.
func BuildPrompt(mode string, recordingType store.RecordingType, transcripts []string) (Prompt, error) {
	system, ok := modePrompts[strings.ToLower(strings.TrimSpace(mode))]
	if !ok {
		return Prompt{}, services.Wrap(services.ErrPermanent, "analyze", "build prompt", fmt.Sprintf("unknown mode %q", mode), nil)
	}

	var user string
	switch recordingType {
	case store.RecordingPaired:
		if len(transcripts) != 2 {
			return Prompt{}, services.Wrap(services.ErrPermanent, "analyze", "build prompt",
				fmt.Sprintf("paired recording needs 2 transcripts, got %d", len(transcripts)), nil)
		}
		user = fmt.Sprintf(
			"This conversation was recorded as two separate tracks, one per participant.\n\n%s:\n%s\n\n%s:\n%s",
			pairedPartyOneLabel, transcripts[0],
			pairedPartyTwoLabel, transcripts[1],
		)
	case store.RecordingSingle:
		if len(transcripts) != 1 {
			return Prompt{}, services.Wrap(services.ErrPermanent, "analyze", "build prompt",
				fmt.Sprintf("single recording needs 1 transcript, got %d", len(transcripts)), nil)
		}
		user = "Conversation transcript:\n\n" + transcripts[0]
	default:
		return Prompt{}, services.Wrap(services.ErrPermanent, "analyze", "build prompt",
			fmt.Sprintf("unknown recording type %q", recordingType), nil)
	}

	return Prompt{System: system, User: user}, nil
}

// KnownModes lists the analysis modes the pipeline accepts.
func KnownModes() []string {
	modes := make([]string, 0, len(modePrompts))
	for mode := range modePrompts {
		modes = append(modes, mode)
	}
	return modes
}
