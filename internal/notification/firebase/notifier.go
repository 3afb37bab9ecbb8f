package firebase

import (
	"context"
	"errors"
	"fmt"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// Config: параметры подключения к Firebase Cloud Messaging.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// Sender: часть messaging.Client, нужная для отправки.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// Notifier доставляет уведомления через FCM по токену устройства получателя.
type Notifier struct {
	sender    Sender
	directory domain.AccountDirectory
	logger    *log.Entry
}

// NewClient инициализирует Firebase app и возвращает клиент FCM.
func NewClient(ctx context.Context, cfg Config) (*messaging.Client, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := fb.NewApp(ctx, &fb.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase messaging client: %w", err)
	}
	return client, nil
}

// NewNotifier создаёт notifier поверх sender и справочника аккаунтов.
func NewNotifier(sender Sender, directory domain.AccountDirectory, logger *log.Entry) *Notifier {
	if logger == nil {
		logger = log.New().WithField("component", "firebase-notifier")
	}
	return &Notifier{sender: sender, directory: directory, logger: logger}
}

// Send находит токен устройства получателя и отправляет push.
func (n *Notifier) Send(ctx context.Context, msg domain.Notification) error {
	token, err := n.directory.DeviceToken(ctx, msg.Recipient)
	if err != nil {
		return fmt.Errorf("resolve device token: %w", err)
	}

	id, err := n.sender.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
	})
	if err != nil {
		return fmt.Errorf("send fcm message: %w", err)
	}

	n.logger.WithFields(log.Fields{
		"order_id":   msg.OrderID,
		"message_id": id,
	}).Debug("push notification sent")
	return nil
}

var _ domain.Notifier = (*Notifier)(nil)
