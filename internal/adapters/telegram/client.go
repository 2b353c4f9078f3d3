package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/infra/metrics"
)

// maxImageSize ограничивает размер скачиваемого файла (лимит Bot API на getFile — 20 МБ).
const maxImageSize = 20 << 20

var (
	// ErrEmptyText возвращается при попытке отправить пустое сообщение.
	ErrEmptyText = errors.New("пустой текст сообщения")
	// ErrImageTooLarge возвращается, если файл превышает лимит скачивания.
	ErrImageTooLarge = errors.New("файл слишком большой")
)

// NewBotAPI создаёт клиента Bot API, у которого каждый запрос ограничен timeout.
func NewBotAPI(token string, timeout time.Duration) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
}

// Client реализует domain.Messenger и domain.ImageSource поверх Bot API.
type Client struct {
	bot   *tgbotapi.BotAPI
	http  *resty.Client
	limit int64
}

var (
	_ domain.Messenger   = (*Client)(nil)
	_ domain.ImageSource = (*Client)(nil)
)

// NewClient создаёт клиента.
func NewClient(bot *tgbotapi.BotAPI, timeout time.Duration) *Client {
	httpClient := resty.New()
	httpClient.SetTimeout(timeout)
	return &Client{bot: bot, http: httpClient, limit: maxImageSize}
}

// SendPhoto отправляет фото по file_id.
func (c *Client) SendPhoto(ctx context.Context, chatID int64, ref, caption string, controls *domain.Controls) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(ref))
	photo.Caption = TruncateCaption(caption)
	if kb := Keyboard(controls); kb != nil {
		photo.ReplyMarkup = kb
	}
	start := time.Now()
	msg, err := c.bot.Send(photo)
	metrics.ObserveNetworkRequest("telegram_bot", "send_photo", strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return 0, err
	}
	return msg.MessageID, nil
}

// SendText отправляет текст, разбивая длинные сообщения. Кнопки прикрепляются
// к первой части; возвращается её идентификатор.
func (c *Client) SendText(ctx context.Context, chatID int64, text string, controls *domain.Controls) (int, error) {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return 0, ErrEmptyText
	}
	kb := Keyboard(controls)
	firstID := 0
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return firstID, err
		}
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && kb != nil {
			msg.ReplyMarkup = kb
		}
		start := time.Now()
		sent, err := c.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			metrics.BotSendErrors.Inc()
			return firstID, err
		}
		if i == 0 {
			firstID = sent.MessageID
		}
	}
	return firstID, nil
}

// DeleteMessage удаляет сообщение.
func (c *Client) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	_, err := c.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	metrics.ObserveNetworkRequest("telegram_bot", "delete_message", strconv.FormatInt(chatID, 10), start, err)
	return err
}

// Answer отвечает на callback всплывающим уведомлением.
func (c *Client) Answer(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	_, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", "callback", start, err)
	return err
}

// Download скачивает файл по file_id.
func (c *Client) Download(ctx context.Context, ref string) ([]byte, error) {
	start := time.Now()
	url, err := c.bot.GetFileDirectURL(ref)
	metrics.ObserveNetworkRequest("telegram_bot", "get_file", "file", start, err)
	if err != nil {
		return nil, fmt.Errorf("получение ссылки на файл: %w", err)
	}

	start = time.Now()
	data, err := c.fetch(ctx, url)
	metrics.ObserveNetworkRequest("telegram_file", "download", "file", start, err)
	if err != nil {
		return nil, fmt.Errorf("скачивание файла: %w", err)
	}
	return data, nil
}

// fetch читает тело ответа не больше лимита, не загружая в память лишнее.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).SetDoNotParseResponse(true).Get(url)
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()
	if resp.IsError() {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode())
	}
	if resp.RawResponse.ContentLength > c.limit {
		return nil, fmt.Errorf("%w: %d байт", ErrImageTooLarge, resp.RawResponse.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(body, c.limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.limit {
		return nil, fmt.Errorf("%w: больше %d байт", ErrImageTooLarge, c.limit)
	}
	return data, nil
}

// Keyboard переводит кнопки домена в inline-клавиатуру Telegram.
func Keyboard(controls *domain.Controls) *tgbotapi.InlineKeyboardMarkup {
	if controls == nil || len(controls.Rows) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(controls.Rows))
	for _, row := range controls.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, buttons)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}
