package bot

import (
	tele "gopkg.in/telebot.v4"
)

// Inline keyboard construction for the Telegram adapter. Callback data is
// "<action>:<payload>", matching what routeCallback expects back.

func btn(text, action, payload string) tele.InlineButton {
	data := action
	if payload != "" {
		data = action + ":" + payload
	}
	return tele.InlineButton{Text: text, Data: data}
}

func row(buttons ...tele.InlineButton) []tele.InlineButton { return buttons }

func keyboard(rows ...[]tele.InlineButton) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{InlineKeyboard: rows}
}
