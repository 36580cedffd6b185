package notify

import (
	"context"
	"fmt"
	"strings"

	"celestia/internal/config"
	"celestia/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// Sender is the part of the Telegram bot API used for notifications.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramNotifier posts assignment notices to the chat configured for the
// staff role that received them.
type TelegramNotifier struct {
	sender    Sender
	roleChats map[string]int64
	logger    *zerolog.Logger
}

// NewTelegram connects to the bot API with the configured token.
func NewTelegram(cfg config.TelegramConfig, logger *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	bot.Debug = cfg.Debug
	return NewTelegramNotifier(bot, cfg.RoleChats, logger), nil
}

func NewTelegramNotifier(sender Sender, roleChats map[string]int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{sender: sender, roleChats: roleChats, logger: logger}
}

// NotifyAssignment sends the notice. Roles without a chat are skipped.
func (n *TelegramNotifier) NotifyAssignment(_ context.Context, notice models.AssignmentNotice) error {
	chatID, ok := n.roleChats[notice.Role]
	if !ok || chatID == 0 {
		n.logger.Debug().Str("role", notice.Role).Str("booking_id", notice.BookingID).Msg("no chat configured for role")
		return nil
	}

	msg := tgbotapi.NewMessage(chatID, assignmentText(notice))
	if _, err := n.sender.Send(msg); err != nil {
		return fmt.Errorf("send assignment for booking %s: %w", notice.BookingID, err)
	}
	return nil
}

func assignmentText(n models.AssignmentNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New %s assignment\n", n.ServiceType)
	fmt.Fprintf(&b, "Booking: %s\n", n.BookingID)
	fmt.Fprintf(&b, "Assigned to: %s (%s)", n.StaffID, n.Role)
	if n.WorkItemID != "" {
		fmt.Fprintf(&b, "\nWork item: %s", n.WorkItemID)
	}
	return b.String()
}
