// Package persona renders the spoken prompts of the voice flows from an embedded catalog.
package persona

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"merchant-voice-auth/internal/language"
)

// Step identifies a prompt.
type Step string

const (
	StepDirect                   Step = "DIRECT"
	StepAskConfirmPhone          Step = "ASK_CONFIRM_PHONE"
	StepAskSocialQuestion        Step = "ASK_SOCIAL_Q"
	StepEscalate                 Step = "ESCALATE"
	StepRegister                 Step = "REGISTER"
	StepRetry                    Step = "RETRY"
	StepWrongAnswer              Step = "WRONG_ANSWER"
	StepTranscriptionUnavailable Step = "TRANSCRIPTION_UNAVAILABLE"
	StepApproved                 Step = "APPROVED"
	StepRejected                 Step = "REJECTED"
	StepExpired                  Step = "EXPIRED"
)

// lastResort is returned when no catalog entry matches; prompts are never empty.
const lastResort = "Un instant, s'il vous plaît."

//go:embed messages.yaml
var defaultCatalog []byte

type personaDef struct {
	DefaultLanguage string                     `yaml:"default_language"`
	Messages        map[string]map[Step]string `yaml:"messages"`
}

type catalogFile struct {
	DefaultPersona string                       `yaml:"default_persona"`
	Personas       map[string]personaDef        `yaml:"personas"`
	Questions      map[string]map[string]string `yaml:"questions"`
}

// Vars fills prompt placeholders. Zero values leave the placeholder text empty.
type Vars struct {
	Name     string
	Phone    string
	Question string
	Minutes  int
}

// Catalog looks up prompts with fallbacks.
type Catalog struct {
	file catalogFile
}

// Load parses a catalog in the embedded format.
func Load(raw []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("persona: parse catalog: %w", err)
	}
	if _, ok := f.Personas[f.DefaultPersona]; !ok {
		return nil, fmt.Errorf("persona: default persona %q is not defined", f.DefaultPersona)
	}
	return &Catalog{file: f}, nil
}

// Default returns the embedded catalog. It panics if the embedded file is invalid.
func Default() *Catalog {
	c, err := Load(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Message returns the prompt for (persona, lang, step) with vars applied. Lookup order: the
// persona in lang, the persona in its default language, the default persona in lang, the default
// persona in its default language, then French.
func (c *Catalog) Message(persona, lang string, step Step, vars Vars) string {
	tmpl := c.lookup(persona, lang, step)
	if tmpl == "" {
		return lastResort
	}
	out := strings.NewReplacer(
		"{name}", vars.Name,
		"{phone}", vars.Phone,
		"{question}", vars.Question,
		"{minutes}", strconv.Itoa(vars.Minutes),
	).Replace(tmpl)
	return strings.Join(strings.Fields(out), " ")
}

// Question returns the social question text for key in lang, falling back to French. ok is false
// when the key is unknown.
func (c *Catalog) Question(key, lang string) (string, bool) {
	for _, l := range []string{lang, language.Default} {
		if q, ok := c.file.Questions[l][key]; ok && q != "" {
			return q, true
		}
	}
	return "", false
}

func (c *Catalog) lookup(persona, lang string, step Step) string {
	type candidate struct{ persona, lang string }
	var order []candidate
	if p, ok := c.file.Personas[persona]; ok {
		order = append(order, candidate{persona, lang}, candidate{persona, p.DefaultLanguage})
	}
	def := c.file.Personas[c.file.DefaultPersona]
	order = append(order,
		candidate{c.file.DefaultPersona, lang},
		candidate{c.file.DefaultPersona, def.DefaultLanguage},
		candidate{c.file.DefaultPersona, language.Default},
	)
	for _, cand := range order {
		if msg := c.file.Personas[cand.persona].Messages[cand.lang][step]; msg != "" {
			return msg
		}
	}
	return ""
}
