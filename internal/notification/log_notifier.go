package notification

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// LogNotifier пишет уведомления в лог вместо push-доставки.
type LogNotifier struct {
	logger *log.Entry
}

// NewLogNotifier создаёт notifier для локального запуска.
func NewLogNotifier(logger *log.Entry) *LogNotifier {
	if logger == nil {
		logger = log.New().WithField("component", "log-notifier")
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(ctx context.Context, msg domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.logger.WithFields(log.Fields{
		"order_id":   msg.OrderID,
		"party":      msg.Recipient.Party,
		"account_id": msg.Recipient.AccountID,
		"shop_id":    msg.Recipient.ShopID,
		"title":      msg.Title,
	}).Info(msg.Body)
	return nil
}

var _ domain.Notifier = (*LogNotifier)(nil)
