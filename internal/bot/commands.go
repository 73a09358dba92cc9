package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/Atoilah/vcf-confreter/core/logger"
	"github.com/Atoilah/vcf-confreter/core/telegram/commands"
	"github.com/Atoilah/vcf-confreter/core/telegram/format"
	tghelpers "github.com/Atoilah/vcf-confreter/core/telegram/helpers"
	"github.com/Atoilah/vcf-confreter/internal/access"
	"github.com/Atoilah/vcf-confreter/internal/records"

	tele "gopkg.in/telebot.v4"
)

func (a *App) registerCommands() {
	user := func(h tele.HandlerFunc, desc string) commands.Command {
		return commands.Command{Handler: h, Description: desc}
	}
	owner := func(h tele.HandlerFunc, desc, args string) commands.Command {
		return commands.Command{Handler: h, Description: desc, Args: args, OwnerOnly: true}
	}
	begin := func(s Starter) tele.HandlerFunc {
		return func(c tele.Context) error { return a.flows.Begin(c, s) }
	}

	start := user(a.start, "Show what the bot can do")
	start.Aliases = []string{"help"}
	a.reg.RegisterCommand("/start", start)
	a.reg.RegisterCommand("/getid", user(a.getID, "Show your Telegram user ID"))
	a.reg.RegisterCommand("/checklimit", user(a.checkLimit, "Show how many uses you have left"))
	a.reg.RegisterCommand("/txt_to_vcf", user(begin(Conversion(records.FormatText)), "Convert a .txt contact list to .vcf"))
	a.reg.RegisterCommand("/excel_to_vcf", user(begin(Conversion(records.FormatSheet)), "Convert an .xlsx contact list to .vcf"))
	a.reg.RegisterCommand("/merge", user(begin(Merge), "Merge several .txt or .vcf files into one"))
	a.reg.RegisterCommand("/to_txt", user(begin(TextFile), "Save a message as a .txt file"))
	a.reg.RegisterCommand("/done", user(a.flows.Done, "Finish adding files to a merge"))
	a.reg.RegisterCommand("/cancel", user(a.flows.Cancel, "Cancel the current operation"))

	a.reg.RegisterCommand("/whitelist", owner(a.whitelist, "List whitelisted users", ""))
	a.reg.RegisterCommand("/add", owner(a.add, "Whitelist a user", "<id> [limit]"))
	a.reg.RegisterCommand("/remove", owner(a.remove, "Remove a user from the whitelist", "<id>"))
	a.reg.RegisterCommand("/setlimit", owner(a.setLimit, "Set a user's remaining uses", "<id> <limit|unlimited>"))
	a.reg.RegisterCommand("/addowner", owner(a.addOwner, "Make a user an owner", "<id>"))
	a.reg.RegisterCommand("/removeowner", owner(a.removeOwner, "Revoke a user's ownership", "<id>"))
	a.reg.RegisterCommand("/usage", owner(a.usageLog, "Download the usage log", ""))
	a.reg.RegisterCommand("/broadcast", owner(a.broadcast, "Message every whitelisted user", "<text>"))
	a.reg.RegisterCommand("/restart", owner(a.restartCmd, "Restart the bot", ""))
}

func (a *App) start(c tele.Context) error {
	uid, _ := tghelpers.Identity(c)
	if !a.access.IsWhitelisted(uid) {
		return a.reply(c, msgAccessDenied)
	}
	help := a.reg.HelpText(a.access.IsOwner(uid))
	return a.sendMD(c, "*"+format.EscapeMarkdown(msgWelcome)+"*\n"+format.EscapeMarkdown(help))
}

func (a *App) getID(c tele.Context) error {
	uid, _ := tghelpers.Identity(c)
	return a.reply(c, fmt.Sprintf(msgYourID, uid))
}

func (a *App) checkLimit(c tele.Context) error {
	uid, _ := tghelpers.Identity(c)
	e, ok := a.access.Lookup(uid)
	switch {
	case !ok:
		return a.reply(c, msgNotListed)
	case e.Unlimited():
		return a.reply(c, msgNoLimit)
	default:
		return a.reply(c, fmt.Sprintf(msgLimitLeft, *e.Limit))
	}
}

func (a *App) whitelist(c tele.Context) error {
	list := a.access.List()
	if len(list) == 0 {
		return a.reply(c, msgEmptyList)
	}
	ids := make([]int64, 0, len(list))
	for id := range list {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var b strings.Builder
	b.WriteString(msgWhitelist)
	for _, id := range ids {
		var mark string
		if a.access.IsOwner(id) {
			mark = " (owner)"
		}
		b.WriteByte('\n')
		fmt.Fprintf(&b, msgWhitelistRow, id, format.Limit(list[id].Limit), mark)
	}
	return a.reply(c, b.String())
}

func (a *App) add(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 || len(args) > 2 {
		return a.reply(c, msgUsageAdd)
	}
	id, ok := parseID(args[0])
	if !ok {
		return a.reply(c, msgBadID)
	}
	var limit *int64
	if len(args) == 2 {
		n, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || n < 0 {
			return a.reply(c, msgBadLimit)
		}
		limit = &n
	}

	ctx := tghelpers.BuildContext(c)
	added, err := a.access.Add(ctx, id, limit)
	if err != nil {
		return a.storeFailed(ctx, c, "add", id, err)
	}
	switch {
	case added && limit != nil:
		return a.reply(c, fmt.Sprintf(msgAddedLimit, id, *limit))
	case added:
		return a.reply(c, fmt.Sprintf(msgAdded, id))
	case limit != nil:
		if err := a.access.SetLimit(ctx, id, *limit); err != nil {
			return a.storeFailed(ctx, c, "add", id, err)
		}
		return a.reply(c, fmt.Sprintf(msgLimitUpdated, id, *limit))
	default:
		return a.reply(c, fmt.Sprintf(msgAlreadyListed, id))
	}
}

func (a *App) remove(c tele.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return a.reply(c, msgUsageRemove)
	}
	id, ok := parseID(args[0])
	if !ok {
		return a.reply(c, msgBadID)
	}
	if a.access.IsOwner(id) {
		return a.reply(c, fmt.Sprintf(msgIsOwner, id))
	}
	ctx := tghelpers.BuildContext(c)
	removed, err := a.access.Remove(ctx, id)
	if err != nil {
		return a.storeFailed(ctx, c, "remove", id, err)
	}
	if !removed {
		return a.reply(c, fmt.Sprintf(msgNotInList, id))
	}
	return a.reply(c, fmt.Sprintf(msgRemoved, id))
}

func (a *App) setLimit(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return a.reply(c, msgUsageSetLimit)
	}
	id, ok := parseID(args[0])
	if !ok {
		return a.reply(c, msgBadID)
	}
	if a.access.IsOwner(id) {
		return a.reply(c, fmt.Sprintf(msgIsOwner, id))
	}
	ctx := tghelpers.BuildContext(c)
	if strings.EqualFold(args[1], "unlimited") {
		switch err := a.access.ClearLimit(ctx, id); {
		case errors.Is(err, access.ErrNotWhitelisted):
			return a.reply(c, fmt.Sprintf(msgNotInList, id))
		case err != nil:
			return a.storeFailed(ctx, c, "setlimit", id, err)
		}
		return a.reply(c, fmt.Sprintf(msgLimitCleared, id))
	}
	n, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || n < 0 {
		return a.reply(c, msgBadLimit)
	}
	switch err := a.access.SetLimit(ctx, id, n); {
	case errors.Is(err, access.ErrNotWhitelisted):
		return a.reply(c, fmt.Sprintf(msgNotInList, id))
	case err != nil:
		return a.storeFailed(ctx, c, "setlimit", id, err)
	}
	return a.reply(c, fmt.Sprintf(msgLimitSet, id, n))
}

func (a *App) addOwner(c tele.Context) error {
	id, ok := a.ownerArg(c)
	if !ok {
		return nil
	}
	ctx := tghelpers.BuildContext(c)
	if err := a.access.AddOwner(ctx, id); err != nil {
		return a.storeFailed(ctx, c, "addowner", id, err)
	}
	return a.reply(c, fmt.Sprintf(msgOwnerAdded, id))
}

func (a *App) removeOwner(c tele.Context) error {
	id, ok := a.ownerArg(c)
	if !ok {
		return nil
	}
	if owners := a.access.Owners(); len(owners) == 1 && owners[0] == id {
		return a.reply(c, msgLastOwner)
	}
	ctx := tghelpers.BuildContext(c)
	removed, err := a.access.RemoveOwner(ctx, id)
	if err != nil {
		return a.storeFailed(ctx, c, "removeowner", id, err)
	}
	if !removed {
		return a.reply(c, fmt.Sprintf(msgNotOwner, id))
	}
	return a.reply(c, fmt.Sprintf(msgOwnerRemoved, id))
}

// ownerArg parses the single user id argument, replying on bad input.
func (a *App) ownerArg(c tele.Context) (int64, bool) {
	args := c.Args()
	if len(args) != 1 {
		_ = a.reply(c, fmt.Sprintf(msgUsageOwner, commandOf(c)))
		return 0, false
	}
	id, ok := parseID(args[0])
	if !ok {
		_ = a.reply(c, msgBadID)
		return 0, false
	}
	return id, true
}

func (a *App) usageLog(c tele.Context) error {
	if a.usage == nil {
		return a.reply(c, msgUsageEmpty)
	}
	ctx := tghelpers.BuildContext(c)
	var buf bytes.Buffer
	if err := a.usage.Export(ctx, &buf); err != nil {
		logger.LogEvent(ctx, logger.USAGE, slog.LevelError, "usage.export",
			slog.String("err", err.Error()),
		)
		return a.reply(c, msgUsageEmpty)
	}
	return a.sendFile(c, buf.Bytes(), "usage_log.csv")
}

func (a *App) broadcast(c tele.Context) error {
	text := strings.TrimSpace(c.Message().Payload)
	if text == "" {
		return a.reply(c, msgUsageBroadcast)
	}
	list := a.access.List()
	ids := make([]int64, 0, len(list))
	for id := range list {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ctx := tghelpers.BuildContext(c)
	n := broadcast(ctx, a.flows.api, a.disp, "broadcast", ids, text)
	logger.LogEvent(ctx, logger.Component("app"), slog.LevelInfo, "broadcast",
		slog.Int("recipients", len(ids)),
		slog.Int("queued", n),
	)
	return a.reply(c, fmt.Sprintf(msgBroadcastDone, n, len(ids)))
}

func (a *App) restartCmd(c tele.Context) error {
	err := a.reply(c, msgRestarting)
	a.Restart()
	return err
}

// document starts a conversion from a contact list sent with no active flow.
func (a *App) document(c tele.Context) error {
	doc := c.Message().Document
	if doc == nil {
		return nil
	}
	kind, ok := records.FormatOf(doc.FileName)
	if !ok {
		return a.reply(c, msgUnknownDoc)
	}
	return a.flows.BeginWith(c, Conversion(kind))
}

func (a *App) storeFailed(ctx context.Context, c tele.Context, op string, id int64, err error) error {
	logger.LogEvent(ctx, logger.ACL, slog.LevelError, "acl."+op,
		slog.Int64("user_id", id),
		slog.String("err", err.Error()),
	)
	uid, _ := tghelpers.Identity(c)
	a.operator.Report(ctx, uid, fmt.Sprintf("access %s %d: %v", op, id, err))
	return a.reply(c, msgStoreFailed)
}

func parseID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id != 0
}

func commandOf(c tele.Context) string {
	text := c.Text()
	if i := strings.IndexByte(text, ' '); i >= 0 {
		text = text[:i]
	}
	if i := strings.IndexByte(text, '@'); i >= 0 {
		text = text[:i]
	}
	return text
}
