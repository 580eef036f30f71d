package sendgrid

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	sg "github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kirillkom/grading-assistant/internal/core/domain"
	"github.com/kirillkom/grading-assistant/internal/infrastructure/resilience"
)

const (
	DefaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

type Config struct {
	APIKey    string
	Host      string
	FromName  string
	FromEmail string
}

// Mailer sends report emails through the SendGrid v3 API.
type Mailer struct {
	key      string
	host     string
	from     *sgmail.Email
	executor *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Mailer {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = DefaultHost
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Mailer{
		key:      cfg.APIKey,
		host:     host,
		from:     sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
		executor: executor,
	}
}

func (m *Mailer) Send(ctx context.Context, msg domain.EmailMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	body := sgmail.GetRequestBody(m.prepare(msg))

	err := m.executor.Execute(ctx, "sendgrid.send", func(ctx context.Context) error {
		req := sg.GetRequest(m.key, endpoint, m.host)
		req.Method = rest.Post
		req.Body = body
		res, err := sg.MakeRequestWithContext(ctx, req)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "sendgrid send", err)
		}
		return statusError(res)
	}, resilience.DomainClassifier)
	if err != nil {
		if domain.IsKind(err, domain.ErrDelivery) {
			return err
		}
		return domain.WrapError(domain.ErrDelivery, "sendgrid send", err)
	}
	return nil
}

func (m *Mailer) prepare(msg domain.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail("", msg.To))

	out := sgmail.NewV3Mail()
	out.SetFrom(m.from)
	out.AddPersonalizations(p)
	out.AddContent(sgmail.NewContent("text/plain", msg.Body))

	if a := msg.Attachment; a != nil {
		out.AddAttachment(sgmail.NewAttachment().
			SetContent(base64.StdEncoding.EncodeToString(a.Data)).
			SetType(a.ContentType).
			SetFilename(a.Name).
			SetDisposition("attachment"))
	}
	return out
}

func statusError(res *rest.Response) error {
	if res == nil {
		return domain.WrapError(domain.ErrTemporary, "sendgrid send", errors.New("empty response"))
	}
	if res.StatusCode < http.StatusBadRequest {
		return nil
	}
	err := fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(res.Body))
	if res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= http.StatusInternalServerError {
		return domain.WrapError(domain.ErrTemporary, "sendgrid send", err)
	}
	return domain.WrapError(domain.ErrDelivery, "sendgrid send", err)
}
