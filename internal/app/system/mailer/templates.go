// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// SubscriptionEmailData holds data for subscription lifecycle emails.
type SubscriptionEmailData struct {
	SiteName       string
	Name           string
	Plan           string
	SubscriptionID string
}

// BuildSubscriptionActivatedEmail confirms a verified payment.
func BuildSubscriptionActivatedEmail(data SubscriptionEmailData) Email {
	return Email{
		Subject: fmt.Sprintf("Your %s %s plan is active", data.SiteName, data.Plan),
		TextBody: fmt.Sprintf("Hi %s,\n\nYour payment was verified and your %s plan is now active.\nSubscription: %s\n",
			data.Name, data.Plan, data.SubscriptionID),
		HTMLBody: render(activatedHTML, data),
	}
}

// BuildSubscriptionCancelledEmail confirms a cancellation.
func BuildSubscriptionCancelledEmail(data SubscriptionEmailData) Email {
	return Email{
		Subject: fmt.Sprintf("Your %s subscription was cancelled", data.SiteName),
		TextBody: fmt.Sprintf("Hi %s,\n\nYour %s subscription (%s) has been cancelled.\n",
			data.Name, data.Plan, data.SubscriptionID),
		HTMLBody: render(cancelledHTML, data),
	}
}

var (
	activatedHTML = template.Must(template.New("activated").Parse(layout(
		`<p>Hi {{.Name}},</p><p>Your payment was verified and your <strong>{{.Plan}}</strong> plan is now active.</p><p style="color:#6b7280;font-size:13px;">Subscription {{.SubscriptionID}}</p>`)))
	cancelledHTML = template.Must(template.New("cancelled").Parse(layout(
		`<p>Hi {{.Name}},</p><p>Your <strong>{{.Plan}}</strong> subscription has been cancelled.</p><p style="color:#6b7280;font-size:13px;">Subscription {{.SubscriptionID}}</p>`)))
)

func render(t *template.Template, data any) string {
	var buf bytes.Buffer
	_ = t.Execute(&buf, data)
	return buf.String()
}

func layout(content string) string {
	return `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="margin:0;padding:0;font-family:-apple-system,BlinkMacSystemFont,'Segoe UI',Roboto,Arial,sans-serif;background-color:#f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0">
    <tr>
      <td align="center" style="padding:40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width:480px;background-color:#ffffff;border-radius:8px;">
          <tr><td style="padding:24px 32px;border-bottom:1px solid #e5e7eb;"><h1 style="margin:0;font-size:22px;color:#4f46e5;">{{.SiteName}}</h1></td></tr>
          <tr><td style="padding:32px;font-size:15px;color:#374151;line-height:1.5;">` + content + `</td></tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
}
