package bot

const (
	msgWelcome       = "Hello! Choose what you want to do:"
	msgAccessDenied  = "⛔ You don't have access to this bot. Send /getid and give the number to the owner."
	msgOwnerOnly     = "Only the bot owner can use this command."
	msgRateLimited   = "Too many requests, please slow down."
	msgUnknown       = "Unknown command. Send /help for the list of commands."
	msgUnknownDoc    = "Send a .txt or .xlsx file to convert it, or use /merge to merge files."
	msgHandlerFailed = "Sorry, something went wrong. The owner has been notified."

	msgFlowBusy        = "⏳ Your previous request is still running. Wait for it to finish or send /cancel."
	msgNoFlow          = "There is nothing in progress. Send /help to see what you can do."
	msgNothingToCancel = "There is nothing to cancel."

	msgYourID       = "Your ID is: %d"
	msgNoLimit      = "You have no usage limit."
	msgLimitLeft    = "Remaining uses: %d"
	msgNotListed    = "You are not on the whitelist."
	msgWhitelist    = "Whitelisted users:"
	msgWhitelistRow = "User ID: %d, limit: %s%s"
	msgEmptyList    = "The whitelist is empty."

	msgUsageAdd      = "Usage: /add <user_id> [limit]"
	msgUsageRemove   = "Usage: /remove <user_id>"
	msgUsageSetLimit = "Usage: /setlimit <user_id> <limit|unlimited>"
	msgUsageOwner    = "Usage: %s <user_id>"
	msgBadID         = "The user ID must be a number."
	msgBadLimit      = "The limit must be a whole number, zero or more."
	msgAdded         = "User ID %d was added to the whitelist."
	msgAddedLimit    = "User ID %d was added to the whitelist with a limit of %d."
	msgAlreadyListed = "User ID %d is already on the whitelist."
	msgLimitUpdated  = "User ID %d is already on the whitelist; the limit is now %d."
	msgRemoved       = "User ID %d was removed from the whitelist."
	msgNotInList     = "User ID %d is not on the whitelist."
	msgIsOwner       = "User ID %d is an owner. Use /removeowner first."
	msgLimitSet      = "The access limit for user ID %d is now %d."
	msgLimitCleared  = "User ID %d now has unlimited access."
	msgOwnerAdded    = "User ID %d is now an owner."
	msgOwnerRemoved  = "User ID %d is no longer an owner."
	msgNotOwner      = "User ID %d is not an owner."
	msgLastOwner     = "You can't remove the last owner."
	msgStoreFailed   = "Could not save the change. Please try again."

	msgUsageEmpty     = "Could not read the usage log."
	msgUsageBroadcast = "Usage: /broadcast <text>"
	msgBroadcastDone  = "Broadcast queued for %d of %d users."
	msgRestarting     = "♻️ Restarting…"
	msgOnline         = "✅ Bot is online. Version %s"
)
