package challenge

import (
	"strings"

	"merchant-voice-auth/internal/language"
	"merchant-voice-auth/internal/textnorm"
)

// ConfirmKey selects confirmation mode instead of a stored social answer.
const ConfirmKey = "confirm_phone"

// ConfirmConfidence is reported when a confirmation word was recognised.
const ConfirmConfidence = 0.9

type wordLists struct {
	yes, no []string
}

var confirmations = map[string]wordLists{
	language.French: {
		yes: []string{"oui", "ouais", "ouai", "d'accord", "exact", "exactement", "c'est ça", "c'est bon", "voilà", "bien sûr", "affirmatif"},
		no:  []string{"non", "pas du tout", "c'est pas ça", "ce n'est pas ça", "faux", "négatif"},
	},
	language.English: {
		yes: []string{"yes", "yeah", "yep", "correct", "right", "that's right", "sure", "ok", "okay"},
		no:  []string{"no", "nope", "wrong", "incorrect", "not right"},
	},
	language.Dioula: {
		yes: []string{"ɔwɔ", "owo", "awo", "ɔn", "tiɲɛ"},
		no:  []string{"ayi", "eyi", "ayi de"},
	},
	language.Baoule: {
		yes: []string{"ɛɛn", "een", "ɛn"},
		no:  []string{"cɛcɛ", "cece", "an-an", "anan"},
	},
}

// normalizedConfirmations holds the lists above passed through textnorm.Normalize, longest
// phrase first so "c est pas ca" wins over "c est".
var normalizedConfirmations = func() map[string]wordLists {
	out := make(map[string]wordLists, len(confirmations))
	for lang, l := range confirmations {
		out[lang] = wordLists{yes: normalizeAll(l.yes), no: normalizeAll(l.no)}
	}
	return out
}()

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := textnorm.Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	// longest first
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && len(out[j]) > len(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Confirm reads a yes/no reply in lang. A list phrase counts when it appears as whole words
// anywhere in the reply ("euh oui", "well yes"). It returns nil and 0 when no phrase appears.
// Unsupported languages fall back to French.
func Confirm(transcript, lang string) (*bool, float64) {
	lists, ok := normalizedConfirmations[lang]
	if !ok {
		lists = normalizedConfirmations[language.Default]
	}
	text := textnorm.Normalize(transcript)
	if text == "" {
		return nil, 0
	}
	// A negative phrase can contain a positive one ("not right" vs "right"), so the longest
	// matching phrase across both lists wins; on a tie the positive list wins.
	yes := longestPhrase(text, lists.yes)
	no := longestPhrase(text, lists.no)
	switch {
	case yes == 0 && no == 0:
		return nil, 0
	case no > yes:
		v := false
		return &v, ConfirmConfidence
	default:
		v := true
		return &v, ConfirmConfidence
	}
}

// longestPhrase returns the length of the first (longest) phrase found in text on word
// boundaries, or 0.
func longestPhrase(text string, phrases []string) int {
	padded := " " + text + " "
	for _, p := range phrases {
		if strings.Contains(padded, " "+p+" ") {
			return len(p)
		}
	}
	return 0
}
