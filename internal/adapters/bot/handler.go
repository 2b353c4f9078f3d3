package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-photo-moderator/internal/domain"
	"tg-photo-moderator/internal/usecase/moderation"
	"tg-photo-moderator/internal/usecase/planning"
)

const (
	planDeletePrefix  = "plan_del:"
	planDoneData      = "plan_done"
	secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"
)

// Config — параметры доступа обработчика.
type Config struct {
	AdminID  int64
	Planners map[int64]bool
	// WebhookSecret сверяется с заголовком X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret string
}

// Handler разбирает апдейты Telegram и вызывает сценарии модерации и планирования.
type Handler struct {
	messenger  domain.Messenger
	moderation *moderation.Service
	planning   *planning.Service
	cfg        Config
	log        zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(messenger domain.Messenger, moderationUC *moderation.Service, planningUC *planning.Service, cfg Config, log zerolog.Logger) *Handler {
	if cfg.Planners == nil {
		cfg.Planners = map[int64]bool{cfg.AdminID: true}
	}
	return &Handler{messenger: messenger, moderation: moderationUC, planning: planningUC, cfg: cfg, log: log}
}

// HandleUpdate обрабатывает входящий апдейт. Паника в одном апдейте не роняет цикл.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Int("update", upd.UpdateID).Msg("паника при обработке апдейта")
		}
	}()
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

// WebhookHandler принимает апдейты, присланные Telegram на вебхук.
// Запрос без верного секрета отклоняется до разбора тела; пустой секрет закрывает вебхук целиком.
func (h *Handler) WebhookHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.webhookAuthorized(r) {
			h.log.Warn().Str("remote", r.RemoteAddr).Msg("апдейт вебхука без верного секрета отклонён")
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *Handler) webhookAuthorized(r *http.Request) bool {
	if h.cfg.WebhookSecret == "" {
		return false
	}
	got := r.Header.Get(secretTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.WebhookSecret)) == 1
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	if msg.IsCommand() {
		h.handleCommand(ctx, msg)
		return
	}
	switch {
	case msg.Chat.IsGroup() || msg.Chat.IsSuperGroup():
		if len(msg.Photo) > 0 {
			h.handleGroupPhoto(ctx, msg)
		}
	case msg.Chat.IsPrivate():
		if msg.From == nil || !h.cfg.Planners[msg.From.ID] {
			return
		}
		if len(msg.Photo) > 0 {
			h.handlePlanPhoto(ctx, msg)
			return
		}
		if text := strings.TrimSpace(msg.Text); text != "" {
			h.handleScheduleText(ctx, msg.Chat.ID, msg.From.ID, text)
		}
	}
}

func (h *Handler) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start":
		if msg.From == nil {
			h.reply(ctx, chatID, "Не удалось определить пользователя", nil)
			return
		}
		h.reply(ctx, chatID, fmt.Sprintf("Ваш ID: %d\n\n%s", msg.From.ID, h.helpText(msg.From.ID)), nil)
	case "help":
		var userID int64
		if msg.From != nil {
			userID = msg.From.ID
		}
		h.reply(ctx, chatID, h.helpText(userID), nil)
	case "plan":
		if !h.allowPlanning(ctx, msg) {
			return
		}
		h.handlePlanStart(ctx, chatID, msg.From.ID)
	case "done":
		if !h.allowPlanning(ctx, msg) {
			return
		}
		h.handlePlanDone(ctx, chatID, msg.From.ID)
	default:
		if msg.Chat.IsPrivate() {
			h.reply(ctx, chatID, "Неизвестная команда. Используйте /help", nil)
		}
	}
}

func (h *Handler) allowPlanning(ctx context.Context, msg *tgbotapi.Message) bool {
	if !msg.Chat.IsPrivate() {
		return false
	}
	if msg.From == nil || !h.cfg.Planners[msg.From.ID] {
		h.reply(ctx, msg.Chat.ID, "Планирование публикаций доступно только администраторам.", nil)
		return false
	}
	return true
}

func (h *Handler) handleGroupPhoto(ctx context.Context, msg *tgbotapi.Message) {
	sub := domain.Submission{
		SourceRef:       largestPhoto(msg.Photo),
		OriginChatID:    msg.Chat.ID,
		OriginMessageID: msg.MessageID,
		Author:          authorName(msg.From),
	}
	if _, err := h.moderation.Submit(ctx, sub); err != nil {
		h.log.Error().Err(err).Int64("chat", msg.Chat.ID).Int("message", msg.MessageID).Msg("не удалось отправить фото на модерацию")
	}
}

func (h *Handler) handlePlanStart(ctx context.Context, chatID, userID int64) {
	if err := h.planning.Start(ctx, userID); err != nil {
		h.log.Error().Err(err).Int64("user", userID).Msg("не удалось начать планирование")
		h.reply(ctx, chatID, "Ошибка: не удалось начать планирование.", nil)
		return
	}
	lines := []string{
		"Режим планирования включён.",
		"Отправьте время публикаций через пробел, например: 9 13:30 18",
		"Затем присылайте фото, они распределятся по времени по кругу, день за днём.",
		"/done завершит план.",
	}
	if sess, ok := h.planning.Status(userID); ok && (len(sess.Photos) > 0 || len(sess.Slots) > 0) {
		lines = append(lines, "", statusText(sess))
	}
	h.reply(ctx, chatID, strings.Join(lines, "\n"), nil)
}

func (h *Handler) handlePlanDone(ctx context.Context, chatID, userID int64) {
	n, ok := h.planning.Finalize(ctx, userID)
	if !ok {
		h.reply(ctx, chatID, "Нечего планировать: добавьте фото и время публикаций (/plan).", nil)
		return
	}
	h.reply(ctx, chatID, fmt.Sprintf("Готово: запланировано публикаций: %d.", n), nil)
}

func (h *Handler) handleScheduleText(ctx context.Context, chatID, userID int64, text string) {
	slots, err := h.planning.SetSchedule(ctx, userID, text)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		h.reply(ctx, chatID, "Сначала включите режим планирования: /plan", nil)
	case errors.Is(err, planning.ErrNoValidSlots):
		h.reply(ctx, chatID, "Не нашёл ни одного корректного времени. Пример: 9 13:30 18", nil)
	case err != nil:
		h.log.Error().Err(err).Int64("user", userID).Msg("не удалось сохранить расписание")
		h.reply(ctx, chatID, "Ошибка сохранения расписания.", nil)
	default:
		h.reply(ctx, chatID, "Время публикаций: "+planning.FormatSlots(slots), nil)
	}
}

func (h *Handler) handlePlanPhoto(ctx context.Context, msg *tgbotapi.Message) {
	chatID, userID := msg.Chat.ID, msg.From.ID
	added, err := h.planning.AddPhoto(ctx, userID, largestPhoto(msg.Photo))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.reply(ctx, chatID, "Сначала включите режим планирования: /plan", nil)
			return
		}
		h.log.Error().Err(err).Int64("user", userID).Msg("не удалось добавить фото в план")
		h.reply(ctx, chatID, "Ошибка обработки фото.", nil)
		return
	}
	text := fmt.Sprintf("Фото №%d добавлено.", added.Index+1)
	if added.HasFireAt {
		text += " Публикация: " + added.FireAt.Format("02.01 15:04")
	} else {
		text += " Укажите время публикаций, чтобы увидеть дату."
	}
	if added.Photo.Duplicate {
		text += "\n⚠️ Похожее фото уже встречалось"
	}
	h.reply(ctx, chatID, text, planPhotoControls(added.Index, added.Photo.ID))
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.From == nil {
		return
	}
	parsed := parseCallback(cb.Data)
	var answer string
	switch parsed.kind {
	case callbackApprove, callbackReject:
		answer = h.handleDecision(ctx, cb.From.ID, parsed)
	case callbackPlanDelete:
		answer = h.handlePlanDelete(ctx, cb, parsed)
	case callbackPlanDone:
		if !h.cfg.Planners[cb.From.ID] {
			answer = "Недостаточно прав"
			break
		}
		if n, ok := h.planning.Finalize(ctx, cb.From.ID); ok {
			answer = fmt.Sprintf("Запланировано публикаций: %d", n)
		} else {
			answer = "Нечего планировать"
		}
	}
	if err := h.messenger.Answer(ctx, cb.ID, answer); err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) handleDecision(ctx context.Context, userID int64, parsed callback) string {
	if userID != h.cfg.AdminID {
		return "Недостаточно прав"
	}
	action := domain.DecisionApprove
	if parsed.kind == callbackReject {
		action = domain.DecisionReject
	}
	_, err := h.moderation.Decide(ctx, parsed.key, action)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "Фото не найдено!"
	case err != nil:
		h.log.Error().Err(err).Str("key", parsed.key).Str("action", string(action)).Msg("ошибка обработки решения")
		return "Ошибка обработки!"
	case action == domain.DecisionApprove:
		return "Фото одобрено! ✅"
	default:
		return "Фото удалено! 🗑️"
	}
}

func (h *Handler) handlePlanDelete(ctx context.Context, cb *tgbotapi.CallbackQuery, parsed callback) string {
	if !h.cfg.Planners[cb.From.ID] {
		return "Недостаточно прав"
	}
	if _, err := h.planning.RemovePhoto(ctx, cb.From.ID, parsed.index, parsed.photoID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "Фото не найдено в плане"
		}
		h.log.Error().Err(err).Int64("user", cb.From.ID).Msg("не удалось убрать фото из плана")
		return "Ошибка обработки!"
	}
	if cb.Message != nil && cb.Message.Chat != nil {
		if err := h.messenger.DeleteMessage(ctx, cb.Message.Chat.ID, cb.Message.MessageID); err != nil {
			h.log.Warn().Err(err).Msg("не удалось удалить сообщение с кнопкой")
		}
	}
	return "Фото убрано из плана"
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string, controls *domain.Controls) {
	if _, err := h.messenger.SendText(ctx, chatID, text, controls); err != nil {
		h.log.Error().Err(err).Int64("chat", chatID).Msg("не удалось отправить сообщение")
	}
}

func (h *Handler) helpText(userID int64) string {
	lines := []string{
		"Фото из группы уходят администратору на модерацию, одобренные публикуются в канал.",
		"",
		"/start — ваш ID",
		"/help — эта подсказка",
	}
	if h.cfg.Planners[userID] {
		lines = append(lines,
			"/plan — начать или продолжить план публикаций",
			"/done — разложить фото плана по расписанию",
		)
	}
	return strings.Join(lines, "\n")
}

func statusText(sess domain.PlanningSession) string {
	slots := "не задано"
	if len(sess.Slots) > 0 {
		slots = planning.FormatSlots(sess.Slots)
	}
	return fmt.Sprintf("В плане фото: %d\nВремя публикаций: %s", len(sess.Photos), slots)
}

func planPhotoControls(index int, photoID string) *domain.Controls {
	return &domain.Controls{Rows: [][]domain.Button{
		{{Text: "🗑 Убрать из плана", Data: planDeletePrefix + strconv.Itoa(index) + ":" + photoID}},
		{{Text: "✅ Завершить план", Data: planDoneData}},
	}}
}

func largestPhoto(sizes []tgbotapi.PhotoSize) string {
	best := sizes[0]
	for _, p := range sizes[1:] {
		if p.Width*p.Height > best.Width*best.Height {
			best = p
		}
	}
	return best.FileID
}

func authorName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return "@" + u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
