package persona

import (
	"strings"
	"testing"
)

func TestDefaultCatalog_Message(t *testing.T) {
	c := Default()
	tests := []struct {
		name    string
		persona string
		lang    string
		step    Step
		vars    Vars
		want    string
	}{
		{"exact match", "awa", "fr", StepDirect, Vars{Name: "Awa"}, "Bonjour Awa, c'est bien vous. Votre espace est ouvert."},
		{"dioula entry", "awa", "dyu", StepDirect, Vars{Name: "Fanta"}, "I ni ce Fanta! I ka sira dayɛlɛla."},
		{"language falls back to persona default", "awa", "dyu", StepRegister, Vars{}, "Je ne trouve pas ce numéro. Un agent va vous aider à créer votre compte."},
		{"persona falls back to default persona", "koffi", "en", StepRegister, Vars{}, "I can't find this number. An agent will help you open an account."},
		{"persona own default language", "tantie", "en", StepDirect, Vars{Name: "Adjoua"}, "Akwaba Adjoua! Ɔ ti wɔ."},
		{"unknown persona", "nobody", "fr", StepRetry, Vars{}, "Je n'ai pas bien compris. Pouvez-vous répéter, s'il vous plaît ?"},
		{"placeholders", "awa", "en", StepAskConfirmPhone, Vars{Name: "Awa", Phone: "+2250701000001"}, "Awa, I heard the number +2250701000001. Is that right? Say yes or no."},
		{"minutes", "awa", "fr", StepEscalate, Vars{Minutes: 30}, "Je transmets votre demande à un agent. Restez en ligne, la validation peut prendre jusqu'à 30 minutes."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Message(tt.persona, tt.lang, tt.step, tt.vars); got != tt.want {
				t.Errorf("Message = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalog_NeverEmpty(t *testing.T) {
	c := Default()
	for _, step := range []Step{StepDirect, StepAskConfirmPhone, StepAskSocialQuestion, StepEscalate, StepRegister,
		StepRetry, StepWrongAnswer, StepTranscriptionUnavailable, StepApproved, StepRejected, StepExpired, Step("UNKNOWN")} {
		for _, lang := range []string{"fr", "en", "dyu", "bci", ""} {
			if c.Message("koffi", lang, step, Vars{}) == "" {
				t.Errorf("empty message for %s/%s", lang, step)
			}
		}
	}
	if got := c.Message("awa", "fr", Step("UNKNOWN"), Vars{}); got != lastResort {
		t.Errorf("unknown step = %q, want last resort", got)
	}
}

func TestCatalog_Question(t *testing.T) {
	c := Default()
	q, ok := c.Question("market_name", "en")
	if !ok || q != "what is the name of your market?" {
		t.Errorf("Question(en) = %q, %v", q, ok)
	}
	q, ok = c.Question("first_child", "bci")
	if !ok || !strings.Contains(q, "premier enfant") {
		t.Errorf("Question(bci) = %q, %v; want French fallback", q, ok)
	}
	if _, ok := c.Question("favourite_colour", "fr"); ok {
		t.Error("unknown key should not resolve")
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load([]byte("personas: [")); err == nil {
		t.Error("invalid YAML should fail")
	}
	if _, err := Load([]byte("default_persona: ghost\npersonas:\n  awa:\n    default_language: fr\n")); err == nil {
		t.Error("undefined default persona should fail")
	}
}
