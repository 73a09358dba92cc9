package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// maxReport keeps operator messages under the Bot API text limit.
const maxReport = 3500

// Operator forwards internal diagnostics to every owner.
type Operator struct {
	api    API
	disp   *sender.Dispatcher
	owners func() []int64
}

// Report implements session.Operator.
func (o *Operator) Report(ctx context.Context, userID int64, msg string) {
	text := "⚠️ Bot Error: " + msg
	if userID != 0 {
		text = fmt.Sprintf("⚠️ Bot Error (User ID: %d): %s", userID, msg)
	}
	o.Notify(ctx, "operator.report", text)
}

// Notify sends text to every owner and returns how many sends were accepted.
func (o *Operator) Notify(ctx context.Context, action, text string) int {
	if r := []rune(text); len(r) > maxReport {
		text = string(r[:maxReport]) + "…"
	}
	var owners []int64
	if o.owners != nil {
		owners = o.owners()
	}
	if len(owners) == 0 {
		logger.Warn(ctx, "app", "operator.no_owner",
			slog.String("action", action),
		)
		return 0
	}
	return broadcast(ctx, o.api, o.disp, action, owners, text)
}

// broadcast queues text for every recipient on the dispatcher, or sends it
// inline when there is none.
func broadcast(ctx context.Context, api API, disp *sender.Dispatcher, action string, to []int64, text string) int {
	if api == nil {
		return 0
	}
	send := func(chatID int64) error {
		_, err := api.Send(tele.ChatID(chatID), text)
		return err
	}
	if disp != nil {
		return disp.Broadcast(logger.Detach(ctx), action, to, send)
	}
	n := 0
	for _, id := range to {
		if err := send(id); err != nil {
			logger.Warn(ctx, "app", "broadcast.fail",
				slog.String("action", action),
				slog.Int64("chat_id", id),
				slog.String("err", err.Error()),
			)
			continue
		}
		n++
	}
	return n
}
