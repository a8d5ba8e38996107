package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
)

// Target holds a fully resolved notification target ready to send.
type Target struct {
	ServiceName string
	URL         string
	Params      map[string]string // merged into the URL query
	SubjectKey  string            // send-time param carrying the subject; "title" if empty
}

// SendError is returned when a target rejects or fails to deliver a message.
type SendError struct {
	Service string
	Err     error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("sending to %s: %v", e.Service, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// SMTP describes an authenticated mail relay.
type SMTP struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	FromName   string
	To         []string
	Encryption string // shoutrrr encryption mode; empty lets shoutrrr pick
}

// SMTPTarget converts relay settings into a Shoutrrr smtp:// target.
func SMTPTarget(s SMTP) (Target, error) {
	if s.Host == "" {
		return Target{}, errors.New("smtp host is required")
	}
	if len(s.To) == 0 {
		return Target{}, errors.New("smtp needs at least one recipient")
	}

	u := url.URL{
		Scheme: "smtp",
		Host:   net.JoinHostPort(s.Host, strconv.Itoa(s.Port)),
		Path:   "/",
	}
	if s.Username != "" {
		u.User = url.UserPassword(s.Username, s.Password)
	}

	params := map[string]string{
		"from": s.From,
		"to":   strings.Join(s.To, ","),
	}
	if s.FromName != "" {
		params["fromname"] = s.FromName
	}
	if s.Encryption != "" {
		params["encryption"] = s.Encryption
	}

	return Target{
		ServiceName: "smtp",
		URL:         u.String(),
		Params:      params,
		SubjectKey:  "subject",
	}, nil
}

// Send delivers a notification to a single target via Shoutrrr.
func Send(t Target, subject, message string) error {
	rawURL, err := applyParams(t.URL, t.Params)
	if err != nil {
		return &SendError{Service: t.ServiceName, Err: err}
	}

	sender, err := shoutrrr.CreateSender(rawURL)
	if err != nil {
		return &SendError{Service: t.ServiceName, Err: fmt.Errorf("creating sender: %w", err)}
	}

	key := t.SubjectKey
	if key == "" {
		key = "title"
	}
	params := types.Params{key: subject}
	errs := sender.Send(message, &params)
	for _, e := range errs {
		if e != nil {
			return &SendError{Service: t.ServiceName, Err: e}
		}
	}

	return nil
}

// Validate checks that a sender can be created for the target without
// sending anything.
func Validate(t Target) error {
	rawURL, err := applyParams(t.URL, t.Params)
	if err != nil {
		return fmt.Errorf("validating %s: %w", t.ServiceName, err)
	}
	if _, err := shoutrrr.CreateSender(rawURL); err != nil {
		return fmt.Errorf("validating %s: %w", t.ServiceName, err)
	}
	return nil
}

// applyParams merges params into the URL query string.
func applyParams(rawURL string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Notifier delivers the run report to every configured target.
type Notifier struct {
	targets []Target
	dryRun  bool
	logger  *slog.Logger
}

// New creates a Notifier. In dry-run mode targets are only validated.
func New(targets []Target, dryRun bool, logger *slog.Logger) *Notifier {
	return &Notifier{targets: targets, dryRun: dryRun, logger: logger}
}

// Send delivers subject and body to all targets. Every target is attempted;
// failures are joined into the returned error.
func (n *Notifier) Send(ctx context.Context, subject, body string) error {
	var errs []error
	for _, t := range n.targets {
		if err := ctx.Err(); err != nil {
			errs = append(errs, &SendError{Service: t.ServiceName, Err: err})
			continue
		}

		if n.dryRun {
			if err := Validate(t); err != nil {
				errs = append(errs, err)
				continue
			}
			n.logger.Info("would notify (dry-run)", "service", t.ServiceName, "subject", subject)
			continue
		}

		n.logger.Info("sending notification", "service", t.ServiceName)
		if err := Send(t, subject, body); err != nil {
			errs = append(errs, err)
			continue
		}
		n.logger.Debug("notification sent", "service", t.ServiceName)
	}
	return errors.Join(errs...)
}
