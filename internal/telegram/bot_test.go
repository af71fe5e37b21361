package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func TestUpdateChatID(t *testing.T) {
	cases := []struct {
		name   string
		update tgbotapi.Update
		want   int64
	}{
		{
			name:   "message",
			update: tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 42}}},
			want:   42,
		},
		{
			name: "callback",
			update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
				Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 7}},
			}},
			want: 7,
		},
		{
			name:   "callback without message",
			update: tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{}},
			want:   0,
		},
		{
			name:   "pre-checkout",
			update: tgbotapi.Update{PreCheckoutQuery: &tgbotapi.PreCheckoutQuery{}},
			want:   0,
		},
	}
	for _, tc := range cases {
		if got := updateChatID(tc.update); got != tc.want {
			t.Fatalf("%s: chat id = %d, want %d", tc.name, got, tc.want)
		}
	}
}
