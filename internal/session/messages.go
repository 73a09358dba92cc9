package session

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Atoilah/vcf-confreter/internal/transfer"
)

const (
	msgAccessDenied = "⛔ You don't have access to this bot, or your usage limit is used up. Ask the owner for access."
	msgBusy         = "⏳ Still working on your previous step, please wait."
	msgCancelled    = "Cancelled. Any uploaded files were deleted."
	msgTimeout      = "⌛ Session timed out waiting for your reply. Start again when you are ready."
	msgFailed       = "Sorry, something went wrong while processing your request. The owner has been notified."

	msgDownloading    = "Downloading file…"
	msgDownloadingPct = "Downloading file… %d%%"
	msgDownloaded     = "File downloaded."
	msgDownloadFailed = "Download failed. Please try again later, or with a smaller file."

	msgSending = "Sending files… (%d/%d)"

	msgAskTextFile  = "Send the .txt file to convert. One contact per line: name,phone"
	msgAskSheetFile = "Send the .xlsx file to convert. Column A: name, column B: phone"
	msgAskAnyFile   = "Send a .txt or .xlsx file to convert."
	msgWrongFile    = "That file type is not supported here. %s"

	msgAskPattern = "Enter the contact name pattern. Use {index} for the running number and {name} for the name from the file, e.g. \"Customer {index}\"."
	msgAskSplit   = "Split the contacts into several files?"
	msgUseButtons = "Please answer with one of the buttons."
	msgAskSize    = "How many contacts per file? Send a number."
	msgBadSize    = "Please send a whole number greater than zero."
	msgAskSeq     = "Number the files starting from 1?"
	msgAskSeqNum  = "Send the number of the first file."
	msgAskOutName = "Enter the output file name (without extension)."
	msgBadOutName = "The file name can't be empty. Enter the output file name."

	msgConverting    = "Converting…"
	msgConvertingN   = "Converting… %d contacts so far"
	msgNoContacts    = "No valid contacts were found in the file. Nothing was sent and your limit was not used."
	msgDeliverFailed = "Could not send any of the files. Your limit was not used; please try again."

	msgMergeIntro    = "Send the files to merge one at a time (.txt or .vcf, all of the same type). Press Done or send /done when finished."
	msgMergeGot      = "Received %d: %s. Send another file or press Done."
	msgMergeWrong    = "Please send %s files only."
	msgMergeNeedFile = "Send at least one file before finishing."
	msgMergeFull     = "That's the maximum of %d files. Press Done to merge them."
	msgMergeSendFile = "Send a file, or press Done when finished."
	msgMerging       = "Merging…"

	msgTextIntro   = "Send the text to save as a .txt file."
	msgTextNeedMsg = "Please send the content as a text message."
	msgTextSaving  = "Creating file…"
)

var (
	splitChoices = []Choice{{Label: "Yes, split", Value: ChoiceSplit}, {Label: "No split", Value: ChoiceNoSplit}}
	seqChoices   = []Choice{{Label: "Start from 1", Value: ChoiceSeqDefault}, {Label: "Custom start", Value: ChoiceSeqCustom}}
	doneChoice   = []Choice{{Label: "Done", Value: ChoiceDone}}
)

func tooLarge(max int64) string {
	return fmt.Sprintf("File too large. The maximum size is %s.", humanize.IBytes(uint64(max)))
}

// summary renders the delivery outcome. Partial delivery names the missing files.
func summary(man transfer.Manifest, extra string) string {
	var b strings.Builder
	if man.Partial() {
		fmt.Fprintf(&b, "⚠️ Sent %d/%d files. Failed: %s", len(man.Sent), man.Total, strings.Join(man.FailedNames(), ", "))
	} else {
		fmt.Fprintf(&b, "✅ Done! %d file(s) sent.", len(man.Sent))
	}
	if extra != "" {
		b.WriteString("\n")
		b.WriteString(extra)
	}
	return b.String()
}
