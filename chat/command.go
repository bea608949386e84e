package chat

import (
	"errors"
	"strings"
)

// ErrInvalidCommand is returned for a malformed or unknown "/" directive.
var ErrInvalidCommand = errors.New("invalid command")

// Target is what a command acts on.
type Target interface {
	SetNickname(name string)
}

// Command is a parsed directive. Apply performs its effect and returns the
// confirmation line sent back to the issuing client.
type Command interface {
	Apply(target Target) string
}

// SetNickname renames the issuing session.
type SetNickname struct {
	Name string
}

// Apply implements Command.
func (c SetNickname) Apply(target Target) string {
	target.SetNickname(c.Name)
	return NicknameChanged(c.Name)
}

// CommandHandler parses the arguments that follow a command word.
type CommandHandler func(args []string) (Command, error)

// Interpreter maps leading command words such as "/nick" to handlers.
// Register every handler before the server starts; lookups are not guarded.
type Interpreter struct {
	handlers map[string]CommandHandler
}

// NewInterpreter returns an Interpreter with the built-in commands.
func NewInterpreter() *Interpreter {
	i := &Interpreter{handlers: make(map[string]CommandHandler)}
	i.Register("/nick", parseNick)
	return i
}

// Register binds word (including its leading "/") to h, replacing any
// previous handler. Words are case-sensitive.
func (i *Interpreter) Register(word string, h CommandHandler) {
	i.handlers[word] = h
}

// Interpret parses a line that starts with "/". Trailing CR/LF are ignored and
// the line is split on whitespace; the first token selects the handler.
//
// Returns:
//   - The parsed Command
//   - ErrInvalidCommand for unknown words or bad arguments
func (i *Interpreter) Interpret(line string) (Command, error) {
	fields := strings.Fields(strings.TrimRight(line, "\r\n"))
	if len(fields) == 0 {
		return nil, ErrInvalidCommand
	}

	h, ok := i.handlers[fields[0]]
	if !ok {
		return nil, ErrInvalidCommand
	}

	return h(fields[1:])
}

func parseNick(args []string) (Command, error) {
	if len(args) != 1 {
		return nil, ErrInvalidCommand
	}

	return SetNickname{Name: args[0]}, nil
}
