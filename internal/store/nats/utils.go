package nats

import (
	"strings"
)

// NormalizeSubject turns a configured prefix into a valid NATS subject
// prefix. MQTT style separators are accepted so the same prefix can be
// shared with the stats topic.
func NormalizeSubject(subject string) string {
	subject = strings.ReplaceAll(subject, "/", ".")

	// NATS subjects can't have spaces or wildcard characters
	replacer := strings.NewReplacer(
		" ", "_",
		"\t", "_",
		"*", "_",
		">", "_",
	)
	subject = replacer.Replace(subject)
	return strings.Trim(subject, ".")
}
