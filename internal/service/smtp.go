package service

import (
	"context"
	"errors"
	"fmt"

	mail "github.com/wneessen/go-mail"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/model"
)

// ErrPermanent 标记不可重试的投递失败（测试与内部分类用）
var ErrPermanent = errors.New("email: permanent delivery failure")

// Sender SMTP 传输抽象
type Sender interface {
	Send(ctx context.Context, msg *model.EmailMessage) error
}

// permanentFailure 失败分类：收件地址非法、SMTP 5xx 为永久；
// 连接拒绝、超时、4xx 为瞬时。
func permanentFailure(err error) bool {
	if errors.Is(err, ErrPermanent) {
		return true
	}
	var se *mail.SendError
	if errors.As(err, &se) {
		return !se.IsTemp()
	}
	// 网络层错误一律按瞬时处理
	return false
}

// disabledSender SMTP 未配置时的兜底：按永久失败落错误日志，不静默丢弃
type disabledSender struct{}

func NewDisabledSender() Sender { return disabledSender{} }

func (disabledSender) Send(context.Context, *model.EmailMessage) error {
	return fmt.Errorf("%w: smtp not configured", ErrPermanent)
}

// smtpSender go-mail 实现（STARTTLS + PLAIN 认证）
type smtpSender struct {
	client *mail.Client
	from   string
}

func NewSMTPSender(cfg config.EmailConfig) (Sender, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, err
	}
	return &smtpSender{client: client, from: cfg.From}, nil
}

func (s *smtpSender) Send(ctx context.Context, msg *model.EmailMessage) error {
	m := mail.NewMsg()
	from := msg.From
	if from == "" {
		from = s.from
	}
	if err := m.From(from); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	m.Subject(msg.Subject)
	if msg.HTML {
		m.SetBodyString(mail.TypeTextHTML, msg.Body)
	} else {
		m.SetBodyString(mail.TypeTextPlain, msg.Body)
	}
	return s.client.DialAndSendWithContext(ctx, m)
}
