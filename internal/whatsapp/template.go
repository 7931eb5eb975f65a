package whatsapp

import (
	"fmt"
	"strings"
	"time"
)

// greetings are bucketed by six-hour blocks, matching the agent-facing
// template conventions (pt-BR).
var greetings = [4]string{"Boa madrugada", "Bom dia", "Boa tarde", "Boa noite"}

// Greeting returns the time-of-day greeting for the given hour.
func Greeting(hour int) string {
	if hour < 0 || hour > 23 {
		hour = 0
	}
	return greetings[hour/6]
}

// TemplateContext feeds the outbound body substitution. Now is injected so
// the substitution stays pure and unit-testable.
type TemplateContext struct {
	ContactName string
	AgentName   string
	Now         time.Time
}

// FormatBody substitutes template variables in an outbound message body.
// Supported variables: {{firstName}}, {{name}}, {{ms}}, {{gretting}},
// {{protocol}}, {{hora}}, {{atendente}}, {{attendant}}, {{user}},
// {{userName}}. The misspelled "gretting" is part of the historical
// template contract carried by existing canned messages.
func FormatBody(body string, tctx TemplateContext) string {
	now := tctx.Now
	if now.IsZero() {
		now = time.Now()
	}

	greeting := Greeting(now.Hour())
	protocol := fmt.Sprintf("%04d%02d%02d%d%02d%02d",
		now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute(), now.Second())
	hora := fmt.Sprintf("%d:%02d:%02d", now.Hour(), now.Minute(), now.Second())

	replacer := strings.NewReplacer(
		"{{firstName}}", firstName(tctx.ContactName),
		"{{name}}", tctx.ContactName,
		"{{ms}}", greeting,
		"{{gretting}}", greeting,
		"{{protocol}}", protocol,
		"{{hora}}", hora,
		"{{atendente}}", tctx.AgentName,
		"{{attendant}}", tctx.AgentName,
		"{{user}}", tctx.AgentName,
		"{{userName}}", tctx.AgentName,
	)
	return replacer.Replace(body)
}

func firstName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	return strings.Fields(name)[0]
}
