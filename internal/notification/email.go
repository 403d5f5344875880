package notification

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
	"time"

	"github.com/smukkama/rfi-pipeline/internal/batch"
	"github.com/smukkama/rfi-pipeline/internal/protocol"
	"github.com/smukkama/rfi-pipeline/pkg/config"
)

var triggeredTemplate = template.Must(template.New("triggered").Parse(`
RFI Alarm Triggered
===================

Device: {{.DeviceID}}
Metric: {{.Metric}}
Current Value: {{printf "%.4f" .Value}}
Threshold: {{.Operator}} {{.Threshold}}
Duration: {{.DurationDays}} day(s)
Breach Start: {{.StartDate}}
Triggered On: {{.Date}}
Alarm ID: {{.AlarmID}}

Description:
The {{.Metric}} rollup of device {{.DeviceID}} has breached the threshold
({{.Operator}} {{.Threshold}}) on {{.DurationDays}} consecutive day(s) since
{{.StartDate}}. The value for {{.Date}} is {{printf "%.4f" .Value}}.

Please review the day summaries for interference.

---
RFI Pipeline Notification System
`))

var clearedTemplate = template.Must(template.New("cleared").Parse(`
RFI Alarm Cleared
=================

Device: {{.DeviceID}}
Metric: {{.Metric}}
Breach Start: {{.StartDate}}
Cleared On: {{.Date}}
Alarm ID: {{.AlarmID}}

Description:
The alarm for {{.Metric}} on device {{.DeviceID}} has been cleared.
The rollup for {{.Date}} is back within {{.Operator}} {{.Threshold}}.

---
RFI Pipeline Notification System
`))

var runReportTemplate = template.Must(template.New("run").Parse(`
RFI Batch Run Report
====================

Run ID: {{.RunID}}
Started: {{.Started.Format "2006-01-02 15:04:05"}}
Finished: {{.Finished.Format "2006-01-02 15:04:05"}}
Processed: {{.Processed}}
Skipped: {{.Skipped}}
Failed: {{.Failed}}
{{range .Days}}{{if eq .Status "FAILED"}}
FAILED {{.DeviceID}}/{{.Date}}: {{.Err}}{{end}}{{end}}

---
RFI Pipeline Notification System
`))

// EmailNotifier sends email notifications
type EmailNotifier struct {
	config   *config.SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier creates a new email notifier
func NewEmailNotifier(cfg *config.SMTPConfig) *EmailNotifier {
	return &EmailNotifier{config: cfg, sendMail: smtp.SendMail}
}

// RenderAlarm renders the subject and body of an alarm email
func RenderAlarm(notification *protocol.AlarmNotification) (subject, body string, err error) {
	var tmpl *template.Template
	switch notification.Type {
	case protocol.AlarmTypeTriggered:
		subject = fmt.Sprintf("🚨 RFI Alarm TRIGGERED - %s %s", notification.DeviceID, notification.Metric)
		tmpl = triggeredTemplate
	case protocol.AlarmTypeCleared:
		subject = fmt.Sprintf("✅ RFI Alarm CLEARED - %s %s", notification.DeviceID, notification.Metric)
		tmpl = clearedTemplate
	default:
		return "", "", fmt.Errorf("unknown notification type: %s", notification.Type)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, notification); err != nil {
		return "", "", fmt.Errorf("failed to render email template: %w", err)
	}
	return subject, buf.String(), nil
}

// RenderRunReport renders the subject and body of a batch run email
func RenderRunReport(report *batch.Report) (subject, body string, err error) {
	status := "OK"
	if report.HasFailures() {
		status = fmt.Sprintf("%d FAILED", report.Failed)
	}
	subject = fmt.Sprintf("RFI batch run %s - %s", report.Started.Format("2006-01-02"), status)

	var buf bytes.Buffer
	if err := runReportTemplate.Execute(&buf, report); err != nil {
		return "", "", fmt.Errorf("failed to render run report: %w", err)
	}
	return subject, buf.String(), nil
}

// SendAlarmNotification sends an email for an alarm notification
func (e *EmailNotifier) SendAlarmNotification(notification *protocol.AlarmNotification) error {
	subject, body, err := RenderAlarm(notification)
	if err != nil {
		return err
	}
	return e.sendEmail(subject, body)
}

// SendRunReport emails the outcome of a batch run
func (e *EmailNotifier) SendRunReport(report *batch.Report) error {
	subject, body, err := RenderRunReport(report)
	if err != nil {
		return err
	}
	return e.sendEmail(subject, body)
}

func (e *EmailNotifier) sendEmail(subject, body string) error {
	// Skip sending if SMTP is not configured
	if e.config.Username == "" || e.config.Password == "" {
		fmt.Printf("SMTP not configured, skipping email:\nSubject: %s\n%s\n", subject, body)
		return nil
	}

	recipients := strings.Split(e.config.To, ",")
	for i := range recipients {
		recipients[i] = strings.TrimSpace(recipients[i])
	}

	message := fmt.Sprintf("From: %s\r\n", e.config.From)
	message += fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", "))
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += fmt.Sprintf("Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message += "\r\n"
	message += body

	auth := smtp.PlainAuth("", e.config.Username, e.config.Password, e.config.Host)

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	if err := e.sendMail(addr, auth, e.config.From, recipients, []byte(message)); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	fmt.Printf("Email sent successfully: %s\n", subject)
	return nil
}

// TestConnection tests the SMTP connection
func (e *EmailNotifier) TestConnection() error {
	if e.config.Username == "" {
		return fmt.Errorf("SMTP not configured")
	}

	addr := fmt.Sprintf("%s:%d", e.config.Host, e.config.Port)
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	fmt.Println("SMTP connection test successful")
	return nil
}
