// Package keyboard builds inline keyboards.
package keyboard

import tele "gopkg.in/telebot.v4"

const perRow = 2

// Choices lays out one button per label, two per row, all sharing unique.
// Each value travels as its button's callback payload; labels without a
// value are dropped.
func Choices(unique string, labels, values []string) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	btns := make([]tele.Btn, min(len(labels), len(values)))
	for i := range btns {
		btns[i] = m.Data(labels[i], unique, values[i])
	}
	m.Inline(m.Split(perRow, btns)...)
	return m
}
