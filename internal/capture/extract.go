package capture

import (
	"strconv"
	"strings"

	"merchant-voice-auth/internal/textnorm"
)

// Extraction is the digit string read from a transcript.
type Extraction struct {
	Digits     string
	Confidence float64 // mapped tokens / total tokens; 0 when there are no tokens
	Tokens     int
	Mapped     int
}

type piece struct {
	digits    string // literal digits typed or transcribed as numbers
	value     int
	word      bool // value came from a numeral word or phrase
	connector bool
}

func (p piece) numeric() bool { return p.word || p.digits != "" }

func (p piece) text() string {
	if p.digits != "" {
		return p.digits
	}
	return strconv.Itoa(p.value)
}

// Extract reads the digits spoken in text. lang selects the numeral tables; English is always
// the last fallback.
func Extract(text, lang string) Extraction {
	tokens := textnorm.Tokens(text)
	pieces := merge(rewrite(tokens, lang))

	var out Extraction
	var b strings.Builder
	for _, p := range pieces {
		out.Tokens++
		if !p.numeric() {
			continue
		}
		out.Mapped++
		b.WriteString(p.text())
	}
	out.Digits = b.String()
	if out.Tokens > 0 {
		out.Confidence = float64(out.Mapped) / float64(out.Tokens)
	}
	return out
}

// rewrite replaces the longest known phrase at each position, then maps single tokens.
func rewrite(tokens []string, lang string) []piece {
	phrases := phraseTables[lang]
	var out []piece
	for i := 0; i < len(tokens); {
		matched := false
		for n := min(maxPhraseWords, len(tokens)-i); n >= 2 && phrases != nil; n-- {
			if v, ok := phrases[strings.Join(tokens[i:i+n], " ")]; ok {
				out = append(out, piece{value: v, word: true})
				i += n
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		out = append(out, single(tokens[i], lang))
		i++
	}
	return out
}

func single(tok, lang string) piece {
	if isDigits(tok) {
		return piece{digits: tok}
	}
	if v, ok := lookupNumeral(tok, lang); ok {
		return piece{value: v, word: true}
	}
	return piece{connector: connectors[tok]}
}

// merge joins a tens word with the unit word after it, optionally across a connector:
// "vingt et un" -> 21, "soixante quinze" -> 75, "ninety nine" -> 99.
func merge(in []piece) []piece {
	var out []piece
	for i := 0; i < len(in); i++ {
		p := in[i]
		if !p.word || !isTens(p.value) {
			out = append(out, p)
			continue
		}
		j := i + 1
		if j < len(in) && in[j].connector {
			j++
		}
		if j < len(in) && in[j].word && unitFits(p.value, in[j].value) {
			out = append(out, piece{value: p.value + in[j].value, word: true})
			i = j
			continue
		}
		out = append(out, p)
	}
	return out
}

func isTens(v int) bool {
	return v >= 20 && v <= 90 && v%10 == 0
}

// unitFits reports whether u can follow tens t in one numeral. French 60 and 80 take 10..19.
func unitFits(t, u int) bool {
	if u >= 1 && u <= 9 {
		return true
	}
	return (t == 60 || t == 80) && u >= 10 && u <= 19
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
