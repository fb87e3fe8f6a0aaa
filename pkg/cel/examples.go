package cel

// FilterExpressionExamples are expressions accepted by filter.expression.
// They can only narrow the compiled-in command whitelist.
var FilterExpressionExamples = map[string]string{
	"direct_only":       `!broadcast`,
	"primary_channel":   `channel == 0`,
	"single_sender":     `from == 123`,
	"sender_allowlist":  `from in [123, 456, 2882400001]`,
	"ping_only":         `message.startsWith("!ping")`,
	"short_messages":    `size(message) <= 64`,
	"no_help_broadcast": `!(broadcast && message.startsWith("!help"))`,
	"combined":          `channel == 0 && !broadcast && from != 42`,
}
