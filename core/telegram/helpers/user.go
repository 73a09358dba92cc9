package helpers

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Identity returns the sender's id and a display name: the @username when
// set, otherwise the first and last name.
func Identity(c tele.Context) (int64, string) {
	u := c.Sender()
	if u == nil {
		return 0, ""
	}
	if u.Username != "" {
		return u.ID, u.Username
	}
	return u.ID, strings.TrimSpace(u.FirstName + " " + u.LastName)
}
