package tools

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	gomail "github.com/wneessen/go-mail"
)

// SendEmailSMTP sends an email with optional HTML alternative and file
// attachments through the configured SMTP server. Recipients are CSV strings;
// attachment paths arrive as a JSON array of strings.
func SendEmailSMTP(ctx context.Context, rc *RuntimeContext, toEmails, subject, bodyText, bodyHTML, ccEmails, bccEmails, attachmentPathsJSON string) (map[string]any, error) {
	smtp := rc.Comm.SMTP
	if !smtp.Configured() {
		return map[string]any{
			"status": "not_configured",
			"reason": "smtp_config_incomplete",
		}, nil
	}

	toList := parseCSVEmails(toEmails)
	ccList := parseCSVEmails(ccEmails)
	bccList := parseCSVEmails(bccEmails)
	if len(toList)+len(ccList)+len(bccList) == 0 {
		return map[string]any{
			"status": "failed",
			"reason": "no_recipients",
		}, nil
	}

	var attachments []string
	if attachmentPathsJSON != "" {
		parsed, ok := parseStringListJSON(attachmentPathsJSON)
		if !ok {
			return map[string]any{
				"status": "failed",
				"reason": "invalid_attachment_paths_json",
			}, nil
		}
		attachments = parsed
	}
	for _, path := range attachments {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return map[string]any{
				"status": "failed",
				"reason": "attachment_not_found",
				"path":   path,
			}, nil
		}
	}

	msg := gomail.NewMsg()
	var err error
	if smtp.FromName != "" {
		err = msg.FromFormat(smtp.FromName, smtp.FromEmail)
	} else {
		err = msg.From(smtp.FromEmail)
	}
	if err == nil {
		err = msg.To(toList...)
	}
	if err == nil && len(ccList) > 0 {
		err = msg.Cc(ccList...)
	}
	if err == nil && len(bccList) > 0 {
		err = msg.Bcc(bccList...)
	}
	if err != nil {
		return map[string]any{
			"status": "failed",
			"reason": "smtp_send_failed:" + err.Error(),
		}, nil
	}
	msg.Subject(subject)
	if bodyText != "" {
		msg.SetBodyString(gomail.TypeTextPlain, bodyText)
	} else {
		msg.SetBodyString(gomail.TypeTextPlain, "See HTML body.")
	}
	if bodyHTML != "" {
		msg.AddAlternativeString(gomail.TypeTextHTML, bodyHTML)
	}
	for _, path := range attachments {
		msg.AttachFile(path)
	}

	client, err := buildSMTPClient(rc)
	if err != nil {
		return map[string]any{
			"status": "failed",
			"reason": "smtp_send_failed:" + err.Error(),
		}, nil
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return map[string]any{
			"status": "failed",
			"reason": "smtp_send_failed:" + err.Error(),
		}, nil
	}
	return map[string]any{
		"status":           "ok",
		"subject":          subject,
		"recipient_count":  len(toList) + len(ccList) + len(bccList),
		"attachment_count": len(attachments),
	}, nil
}

func buildSMTPClient(rc *RuntimeContext) (*gomail.Client, error) {
	smtp := rc.Comm.SMTP
	opts := []gomail.Option{gomail.WithPort(smtp.Port)}

	switch {
	case smtp.UseSSL:
		opts = append(opts, gomail.WithSSLPort(false))
	case smtp.UseTLS:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	}
	if smtp.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(smtp.Username),
			gomail.WithPassword(smtp.ResolvedPassword()),
		)
	}
	return gomail.NewClient(smtp.Host, opts...)
}

func parseCSVEmails(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseStringListJSON(raw string) ([]string, bool) {
	var parsed []any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(parsed))
	for _, item := range parsed {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
