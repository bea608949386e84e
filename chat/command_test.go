package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nickTarget struct {
	nickname string
}

func (n *nickTarget) SetNickname(name string) {
	n.nickname = name
}

func TestInterpreter_Interpret_nick(t *testing.T) {
	i := NewInterpreter()

	t.Run("renames with exactly one argument", func(t *testing.T) {
		cmd, err := i.Interpret("/nick Bob\r\n")
		require.NoError(t, err)
		assert.Equal(t, SetNickname{Name: "Bob"}, cmd)

		target := &nickTarget{nickname: "guest-1"}
		assert.Equal(t, "Nickname changed to Bob", cmd.Apply(target))
		assert.Equal(t, "Bob", target.nickname)
	})

	t.Run("extra whitespace between tokens is allowed", func(t *testing.T) {
		cmd, err := i.Interpret("/nick    Alice  ")
		require.NoError(t, err)
		assert.Equal(t, SetNickname{Name: "Alice"}, cmd)
	})

	invalid := []struct {
		name string
		line string
	}{
		{"no argument", "/nick"},
		{"no argument with newline", "/nick\n"},
		{"two arguments", "/nick Bob Smith"},
		{"unknown command", "/join lobby"},
		{"prefix of a longer word", "/nickname Bob"},
		{"case sensitive", "/NICK Bob"},
		{"bare slash", "/"},
		{"slash then space", "/ nick Bob"},
	}

	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := i.Interpret(tt.line)
			assert.ErrorIs(t, err, ErrInvalidCommand)
			assert.Nil(t, cmd)
		})
	}
}

type echoCommand struct {
	text string
}

func (e echoCommand) Apply(Target) string {
	return e.text
}

func TestInterpreter_Register(t *testing.T) {
	i := NewInterpreter()
	i.Register("/echo", func(args []string) (Command, error) {
		if len(args) == 0 {
			return nil, ErrInvalidCommand
		}
		return echoCommand{text: args[0]}, nil
	})

	cmd, err := i.Interpret("/echo ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", cmd.Apply(&nickTarget{}))

	_, err = i.Interpret("/echo")
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = i.Interpret("/nick Bob")
	assert.NoError(t, err, "built-in commands stay registered")
}

func TestIsQuit(t *testing.T) {
	assert.True(t, IsQuit("quit"))
	assert.True(t, IsQuit("quit now"))
	assert.True(t, IsQuit("quit\tnow"))
	assert.False(t, IsQuit("  quit"), "leading whitespace makes it chat")
	assert.False(t, IsQuit("\tquit"))
	assert.False(t, IsQuit("quite nice"))
	assert.False(t, IsQuit("QUIT"))
	assert.False(t, IsQuit("/quit"))
	assert.False(t, IsQuit(""))
}

func TestProtocolLines(t *testing.T) {
	assert.Equal(t, "Alice: hello", ChatLine("Alice", "hello"))
	assert.Equal(t, "Nickname changed to Bob", NicknameChanged("Bob"))
	assert.Equal(t, "Bob has left!", DepartureLine("Bob"))
	assert.Equal(t, []byte("quit\n"), frame(QuitToken))
}
