package telegram

import (
	"net/url"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-photo-moderator/internal/infra/metrics"
)

// WebhookParams собирает параметры setWebhook. WebhookConfig в tgbotapi v5.5.1
// не знает про secret_token, поэтому запрос собирается вручную.
func WebhookParams(link, secret string) (tgbotapi.Params, error) {
	if _, err := url.ParseRequestURI(link); err != nil {
		return nil, err
	}
	params := make(tgbotapi.Params)
	params["url"] = link
	params.AddNonEmpty("secret_token", secret)
	params.AddBool("drop_pending_updates", true)
	return params, nil
}

// SetWebhook регистрирует вебхук; Telegram будет присылать secret в заголовке каждого апдейта.
func SetWebhook(bot *tgbotapi.BotAPI, link, secret string) error {
	params, err := WebhookParams(link, secret)
	if err != nil {
		return err
	}
	start := time.Now()
	_, err = bot.MakeRequest("setWebhook", params)
	metrics.ObserveNetworkRequest("telegram_bot", "set_webhook", "webhook", start, err)
	return err
}
