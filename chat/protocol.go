// Package chat implements the relay itself: per-client sessions, the command
// interpreter and the server that ties them to the TCP registry.
package chat

import (
	"strings"
	"unicode"
)

// Wire strings. Every line the server writes ends with "\n".
const (
	QuitToken          = "quit"
	CommandPrefix      = "/"
	InvalidCommandLine = "Invalid Command"
	GuestPrefix        = "guest"
)

// ChatLine formats a relayed message.
func ChatLine(nickname, content string) string {
	return nickname + ": " + content
}

// NicknameChanged formats the rename confirmation.
func NicknameChanged(nickname string) string {
	return "Nickname changed to " + nickname
}

// DepartureLine formats the notice sent when a client leaves.
func DepartureLine(nickname string) string {
	return nickname + " has left!"
}

// IsQuit reports whether line asks to end the session: it starts with
// "quit", followed by whitespace or nothing. Leading whitespace makes it chat.
func IsQuit(line string) bool {
	rest, ok := strings.CutPrefix(line, QuitToken)
	if !ok {
		return false
	}

	return rest == "" || strings.TrimLeftFunc(rest, unicode.IsSpace) != rest
}

func frame(line string) []byte {
	b := make([]byte, 0, len(line)+1)
	b = append(b, line...)
	return append(b, '\n')
}
