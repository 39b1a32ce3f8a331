package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campus-adp/records-api/internal/models"
	"github.com/campus-adp/records-api/pkg/config"
	"github.com/campus-adp/records-api/pkg/jobs"
)

// Sender delivers one rendered message to its transport.
type Sender interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type notificationTemplate struct {
	subject string
	body    string
}

// Plain-text templates with {{token}} placeholders. Wording is presentation;
// the trigger points and recipients are the contract.
var notificationTemplates = map[models.NotificationTemplate]notificationTemplate{
	models.TemplateRecordSubmitted: {
		subject: "New {{kind}} submission from {{student}}",
		body: "Dear {{tutor}},\n\n{{student}} has submitted a new {{kind}} record " +
			"\"{{title}}\" for your review.\n\nRegards,\nRecords Portal",
	},
	models.TemplateRecordResubmitted: {
		subject: "Updated {{kind}} record from {{student}} requires review",
		body: "Dear {{tutor}},\n\n{{student}} has updated the {{kind}} record " +
			"\"{{title}}\". The record has returned to pending and requires your review.\n\nRegards,\nRecords Portal",
	},
	models.TemplateRecordApproved: {
		subject: "Your {{kind}} record has been approved",
		body: "Dear {{student}},\n\nYour {{kind}} record \"{{title}}\" was approved by {{tutor}}." +
			"{{comment_block}}\n\nRegards,\nRecords Portal",
	},
	models.TemplateRecordRejected: {
		subject: "Your {{kind}} record has been rejected",
		body: "Dear {{student}},\n\nYour {{kind}} record \"{{title}}\" was rejected by {{tutor}}." +
			"{{comment_block}}\n\nYou may correct and resubmit the record.\n\nRegards,\nRecords Portal",
	},
	models.TemplateRecordDeleted: {
		subject: "{{kind}} record \"{{title}}\" was deleted",
		body: "Dear {{recipient_name}},\n\nThe {{kind}} record \"{{title}}\" of {{student}} " +
			"was deleted by {{actor}}.\n\nRegards,\nRecords Portal",
	},
}

type renderedMessage struct {
	To      string
	Subject string
	Body    string
}

// NotificationService renders notification intents and delivers them through
// an in-process worker queue. Dispatch is fire-and-forget: the originating
// operation has already committed by the time an intent reaches this service,
// and no delivery failure propagates back.
type NotificationService struct {
	sender      Sender
	queue       *jobs.Queue
	from        string
	sendTimeout time.Duration
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewNotificationService wires the dispatcher worker pool.
func NewNotificationService(sender Sender, cfg config.NotificationsConfig, metrics *MetricsService, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		sender:      sender,
		from:        cfg.FromAddress,
		sendTimeout: cfg.SendTimeout,
		metrics:     metrics,
		logger:      logger,
	}
	if s.sendTimeout <= 0 {
		s.sendTimeout = 10 * time.Second
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return s
}

// Start launches the dispatcher workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the dispatcher workers.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Dispatch renders the intent and enqueues it for delivery. Failures are
// logged and swallowed.
func (s *NotificationService) Dispatch(intent models.Notification) {
	if intent.Recipient == "" {
		s.logger.Warn("notification intent without recipient", zap.String("template", string(intent.Template)))
		s.metrics.RecordNotification(string(intent.Template), "dropped")
		return
	}
	msg, err := renderNotification(intent)
	if err != nil {
		s.logger.Warn("failed to render notification", zap.String("template", string(intent.Template)), zap.Error(err))
		s.metrics.RecordNotification(string(intent.Template), "dropped")
		return
	}
	task := jobs.Task{
		ID:      uuid.NewString(),
		Kind:    string(intent.Template),
		Payload: msg,
	}
	if err := s.queue.Enqueue(task); err != nil {
		s.logger.Warn("failed to enqueue notification", zap.String("to", msg.To), zap.Error(err))
		s.metrics.RecordNotification(string(intent.Template), "dropped")
	}
}

func (s *NotificationService) deliver(ctx context.Context, task jobs.Task) error {
	msg, ok := task.Payload.(renderedMessage)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("task_id", task.ID))
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if err := s.sender.Send(sendCtx, s.from, msg.To, msg.Subject, msg.Body); err != nil {
		s.metrics.RecordNotification(task.Kind, "failed")
		return err
	}
	s.metrics.RecordNotification(task.Kind, "delivered")
	return nil
}

func renderNotification(intent models.Notification) (renderedMessage, error) {
	tmpl, ok := notificationTemplates[intent.Template]
	if !ok {
		return renderedMessage{}, fmt.Errorf("unknown template: %s", intent.Template)
	}

	// copied so the derived comment_block never leaks into the caller's intent
	data := make(map[string]string, len(intent.Data)+1)
	for key, value := range intent.Data {
		data[key] = value
	}
	if comment := data["comment"]; comment != "" {
		data["comment_block"] = "\n\nReviewer comment: " + comment
	} else {
		data["comment_block"] = ""
	}

	pairs := make([]string, 0, len(data)*2)
	for key, value := range data {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	replacer := strings.NewReplacer(pairs...)

	return renderedMessage{
		To:      intent.Recipient,
		Subject: replacer.Replace(tmpl.subject),
		Body:    replacer.Replace(tmpl.body),
	}, nil
}
