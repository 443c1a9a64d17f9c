package email

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/wenbo68/tonytonyshopper/internal/domain"
	"github.com/wenbo68/tonytonyshopper/pkg/mylogger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Sender interface {
	SendOrderPaidEmail(ctx context.Context, to string, event *domain.OrderPaidEvent) error
	SendOrderShippedEmail(ctx context.Context, to string, event *domain.OrderShippedEvent) error
	SendOrderCancelledEmail(ctx context.Context, to string, event *domain.OrderCancelledEvent) error
}

type smtpSender struct {
	from     string
	password string
	host     string
	port     string
	logger   *zap.Logger
	tracer   trace.Tracer
}

func NewSMTPSender(from, password, host, port string, logger *zap.Logger) Sender {
	return &smtpSender{
		from:     from,
		password: password,
		host:     host,
		port:     port,
		logger:   logger,
		tracer:   otel.Tracer("notification/email"),
	}
}

func (s *smtpSender) SendOrderPaidEmail(ctx context.Context, to string, event *domain.OrderPaidEvent) error {
	ctx, span := s.tracer.Start(ctx, "smtp.SendOrderPaidEmail")
	defer span.End()

	span.SetAttributes(
		attribute.String("to.email", to),
		attribute.String("order_id", event.OrderID),
	)

	items := ""
	for _, item := range event.Items {
		items += fmt.Sprintf("<li>%s × %d</li>", item.Name, item.Quantity)
	}

	subject := "Subject: Your order is confirmed! 🎉\n"
	body := fmt.Sprintf(`
		<h1>Thanks for your order!</h1>
		<p>Order <b>%s</b> is paid. Total: %s.</p>
		<ul>%s</ul>
		<p>We will email you again once it ships.</p>
	`, event.OrderID, formatAmount(event.TotalAmount), items)

	return s.send(ctx, to, subject, body)
}

func (s *smtpSender) SendOrderShippedEmail(ctx context.Context, to string, event *domain.OrderShippedEvent) error {
	ctx, span := s.tracer.Start(ctx, "smtp.SendOrderShippedEmail")
	defer span.End()

	span.SetAttributes(
		attribute.String("to.email", to),
		attribute.String("order_id", event.OrderID),
	)

	subject := "Subject: Your order is on the way! 📦\n"
	body := fmt.Sprintf(`
		<h1>Order %s has shipped</h1>
		<p>Carrier: %s</p>
		<p>Tracking number: <b>%s</b></p>
	`, event.OrderID, event.Carrier, event.TrackingNumber)

	return s.send(ctx, to, subject, body)
}

func (s *smtpSender) SendOrderCancelledEmail(ctx context.Context, to string, event *domain.OrderCancelledEvent) error {
	ctx, span := s.tracer.Start(ctx, "smtp.SendOrderCancelledEmail")
	defer span.End()

	span.SetAttributes(
		attribute.String("to.email", to),
		attribute.String("order_id", event.OrderID),
	)

	subject := "Subject: Your order was cancelled\n"
	body := fmt.Sprintf(`
		<h1>Order %s was cancelled</h1>
		<p>Reason: %s</p>
		<p>If you were charged, the payment will be refunded. Contact support with any questions.</p>
	`, event.OrderID, event.Reason)

	return s.send(ctx, to, subject, body)
}

func (s *smtpSender) send(ctx context.Context, to, subject, body string) error {
	mime := "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
	msg := []byte(subject + mime + body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	auth := smtp.PlainAuth("", s.from, s.password, s.host)

	mylogger.Info(
		ctx,
		s.logger,
		"Sending email",
		zap.String("to", to),
	)

	if err := smtp.SendMail(addr, auth, s.from, []string{to}, msg); err != nil {
		mylogger.Error(
			ctx,
			s.logger,
			"Error sending email",
			zap.String("to", to),
			zap.Error(err),
		)

		return fmt.Errorf("failed to send mail: %v", err)
	}

	mylogger.Info(
		ctx,
		s.logger,
		"Email sent successfully",
		zap.String("to", to),
	)

	return nil
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
