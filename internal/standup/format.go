// Package standup implements the post lifecycle and role-reconciliation
// engine: posts are created when a correctly formatted standup lands in a
// configured room, carry their room's roles while active, and have those
// roles reversed when they expire or are invalidated by external events.
package standup

import "regexp"

// DMHelp is sent to authors whose submission fails the format gate.
const DMHelp = "Please format your standup correctly, here is a template example: ```\n" +
	"Yesterday I: [...]\n" +
	"Today I will: [...]\n" +
	"Potential hard problems: [...]\n" +
	"```\n"

// The three ordered sections, each with non-empty content, separated by
// single newlines, matched against the whole message.
var standupRegexp = regexp.MustCompile(
	`^Yesterday I:[\s\S]+\n` +
		`Today I will:[\s\S]+\n` +
		`Potential hard problems:[\s\S]+$`)

// MessageIsFormatted reports whether msg matches the standup template.
func MessageIsFormatted(msg string) bool {
	return standupRegexp.MatchString(msg)
}
