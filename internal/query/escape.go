package query

import "strings"

var keyEscaper = strings.NewReplacer(
	`\`, `\\`,
	`=`, `\=`,
	` `, `\ `,
	`,`, `\,`,
	"\n", `\n`,
)

var fieldStringEscaper = strings.NewReplacer(
	`"`, `\"`,
	"\n", `\n`,
)

// escapeKey escapes a measurement name, tag key, tag value, or field key
// per the line-protocol table in spec §6: "=", space, comma, and newline
// all become backslash-escaped.
func escapeKey(s string) string {
	return keyEscaper.Replace(s)
}

// escapeFieldString double-quotes a STRING field value, escaping inner
// quotes and newlines.
func escapeFieldString(s string) string {
	return `"` + fieldStringEscaper.Replace(s) + `"`
}
