package telegram

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ytget/tg-downloader/internal/dispatch"
	"github.com/ytget/tg-downloader/internal/session"
)

// Callback data layout: <kind>:<session-id>:<action>. Telegram caps callback
// data at 64 bytes; with a 36-byte session id the action part must stay short.
const (
	kindPrefixPlaylist = "pl"
	kindPrefixQuality  = "q"

	actionNoop = "x"
)

func encodeCallback(kind session.Kind, sessionID, action string) string {
	prefix := kindPrefixQuality
	if kind == session.KindPlaylist {
		prefix = kindPrefixPlaylist
	}
	return prefix + ":" + sessionID + ":" + action
}

func encodePage(kind session.Kind, sessionID string, pageIndex int) string {
	return encodeCallback(kind, sessionID, "p"+strconv.Itoa(pageIndex))
}

// decodeCallback maps raw callback data onto a dispatcher event. ok is false
// for data this bot never produced.
func decodeCallback(data string) (ev dispatch.CallbackEvent, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) != 3 {
		return dispatch.CallbackEvent{}, false
	}
	if parts[0] != kindPrefixPlaylist && parts[0] != kindPrefixQuality {
		return dispatch.CallbackEvent{}, false
	}

	ev.SessionID = parts[1]
	action := parts[2]

	switch {
	case action == actionNoop:
		ev.Op = dispatch.OpNoop
	case strings.HasPrefix(action, "p"):
		page, err := strconv.Atoi(action[1:])
		if err != nil {
			return dispatch.CallbackEvent{}, false
		}
		ev.Op = dispatch.OpPage
		ev.Page = page
	default:
		ev.Op = dispatch.OpPick
		ev.Value = action
	}
	return ev, true
}

func selectionTitle(kind session.Kind) string {
	if kind == session.KindPlaylist {
		return "Choose a video from the playlist:"
	}
	return "Choose quality:"
}

// selectionMarkup builds one keyboard page: a button row per candidate plus a
// navigation row when the list spans several pages.
func selectionMarkup(sessionID string, kind session.Kind, page session.Page) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(page.Candidates)+1)
	for _, c := range page.Candidates {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(c.Label, encodeCallback(kind, sessionID, c.Value)),
		))
	}

	if page.Count > 1 {
		nav := make([]tgbotapi.InlineKeyboardButton, 0, 3)
		if page.HasPrev {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️", encodePage(kind, sessionID, page.Index-1)))
		}
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%d/%d", page.Index+1, page.Count),
			encodeCallback(kind, sessionID, actionNoop),
		))
		if page.HasNext {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("➡️", encodePage(kind, sessionID, page.Index+1)))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(nav...))
	}

	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
