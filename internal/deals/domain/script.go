package domain

import "strings"

// ScriptVars are the values substituted into a stage script.
type ScriptVars struct {
	BotName      string
	CustomerName string
}

// RenderScript replaces every {bot_name} and {customer_name} token. Other
// tokens are left as written.
func RenderScript(template string, vars ScriptVars) string {
	return strings.NewReplacer(
		"{bot_name}", vars.BotName,
		"{customer_name}", vars.CustomerName,
	).Replace(template)
}
