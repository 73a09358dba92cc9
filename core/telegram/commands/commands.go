package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is a slash command with its handler and menu metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// Args is shown after the command name in /help, e.g. "<id> [limit]".
	Args string
	// OwnerOnly commands are rejected for non-owners and left out of the public menu.
	OwnerOnly bool
	Hidden    bool
	Aliases   []string
}
