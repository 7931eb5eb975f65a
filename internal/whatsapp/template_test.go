package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGreeting(t *testing.T) {
	assert.Equal(t, "Boa madrugada", Greeting(0))
	assert.Equal(t, "Boa madrugada", Greeting(5))
	assert.Equal(t, "Bom dia", Greeting(6))
	assert.Equal(t, "Bom dia", Greeting(11))
	assert.Equal(t, "Boa tarde", Greeting(12))
	assert.Equal(t, "Boa tarde", Greeting(17))
	assert.Equal(t, "Boa noite", Greeting(18))
	assert.Equal(t, "Boa noite", Greeting(23))
	assert.Equal(t, "Boa madrugada", Greeting(-1))
}

func TestFormatBody(t *testing.T) {
	now := time.Date(2024, time.March, 5, 14, 7, 9, 0, time.UTC)
	tctx := TemplateContext{
		ContactName: "Maria Souza",
		AgentName:   "Carlos",
		Now:         now,
	}

	got := FormatBody("{{ms}} {{firstName}}! {{name}}, falar com {{atendente}} as {{hora}}. Protocolo {{protocol}}", tctx)

	assert.Equal(t, "Boa tarde Maria! Maria Souza, falar com Carlos as 14:07:09. Protocolo 20240305140709", got)
}

func TestFormatBody_MisspelledGreetingVariable(t *testing.T) {
	now := time.Date(2024, time.March, 5, 8, 0, 0, 0, time.UTC)

	got := FormatBody("{{gretting}}!", TemplateContext{Now: now})

	assert.Equal(t, "Bom dia!", got)
}

func TestFormatBody_AgentAliases(t *testing.T) {
	tctx := TemplateContext{AgentName: "Ana", Now: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}

	assert.Equal(t, "Ana Ana Ana", FormatBody("{{attendant}} {{user}} {{userName}}", tctx))
}

func TestFormatBody_NoVariables(t *testing.T) {
	assert.Equal(t, "plain text", FormatBody("plain text", TemplateContext{}))
}
