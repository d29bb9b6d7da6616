package mailer

import (
	htmltemplate "html/template"
	texttemplate "text/template"
)

const wrapperOpen = `<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #0f172a;">`

const verificationHTML = wrapperOpen + `
  <h2 style="margin-bottom: 12px;">Verify your ListHit email</h2>
  <p>Hi {{.Name}},</p>
  <p>Thanks for creating a ListHit account. Confirm your email to finish setting up your workspace.</p>
  <p style="margin: 18px 0;">
    <a href="{{.ActionLink}}" style="background-color: #0ea5e9; color: #ffffff; padding: 10px 16px; text-decoration: none; border-radius: 6px; display: inline-block;">Verify email</a>
  </p>
  <p>If the button doesn't work, copy and paste this link into your browser:<br /><a href="{{.ActionLink}}">{{.ActionLink}}</a></p>
  <p style="margin-top: 18px;">If you didn't request this, you can ignore this email.</p>
  <p>The ListHit team</p>
</div>`

const verificationText = `Hi {{.Name}},

Thanks for creating a ListHit account. Confirm your email to finish setting up your workspace.

Verify email: {{.ActionLink}}

If you didn't request this, you can ignore this email.

The ListHit team`

const requestAccessConfirmationHTML = wrapperOpen + `
  <h2 style="margin-bottom: 12px;">We received your ListHit request</h2>
  <p>Hi {{.Name}},</p>
  <p>Thanks for reaching out. We've received your request for access to ListHit and will follow up shortly.</p>
  <p style="margin: 18px 0; padding: 12px 16px; background-color: #f8fafc; border-radius: 8px;">
    Company: {{if .Company}}{{.Company}}{{else}}(not provided){{end}}
  </p>
  <p>If you have additional context to share, reply to this email.</p>
  <p>The ListHit team</p>
</div>`

const requestAccessConfirmationText = `Hi {{.Name}},

Thanks for reaching out. We've received your request for access to ListHit and will follow up shortly.

Company: {{if .Company}}{{.Company}}{{else}}(not provided){{end}}

If you have additional context to share, reply to this email.

The ListHit team`

const requestAccessNotificationHTML = wrapperOpen + `
  <h2 style="margin-bottom: 12px;">New request access submission</h2>
  <ul style="padding-left: 18px;">
    <li><strong>Name:</strong> {{.FullName}}</li>
    <li><strong>Email:</strong> {{.Email}}</li>
    <li><strong>Company:</strong> {{.Company}}</li>
    <li><strong>Role:</strong> {{.Role}}</li>
    <li><strong>Marketing opt-in:</strong> {{yesNo .MarketingOptIn}}</li>
    <li><strong>Agreed to terms:</strong> {{yesNo .AgreeToTerms}}</li>
    <li><strong>IP:</strong> {{.IP}}</li>
    <li><strong>User agent:</strong> {{.UserAgent}}</li>
    <li><strong>Source:</strong> {{.Source}}</li>
    <li><strong>Submitted at:</strong> {{timestamp .CreatedAt}}</li>
  </ul>
  <p style="margin-top: 12px;"><strong>Message:</strong></p>
  <p style="white-space: pre-wrap;">{{or .Message "-"}}</p>
</div>`

const requestAccessNotificationText = `New request access submission

Name: {{.FullName}}
Email: {{.Email}}
Company: {{.Company}}
Role: {{.Role}}
Marketing opt-in: {{yesNo .MarketingOptIn}}
Agreed to terms: {{yesNo .AgreeToTerms}}
IP: {{.IP}}
User agent: {{.UserAgent}}
Source: {{.Source}}
Submitted at: {{timestamp .CreatedAt}}

Message:
{{or .Message "-"}}`

const contactReceiptHTML = wrapperOpen + `
  <h2 style="margin-bottom: 12px;">We received your message</h2>
  <p>Hi {{.Name}},</p>
  <p>Thanks for contacting ListHit. We received your message about <strong>{{.Subject}}</strong> and will respond shortly.</p>
  <p>If you need to add anything, reply to this email.</p>
  <p>The ListHit team</p>
</div>`

const contactReceiptText = `Hi {{.Name}},

Thanks for contacting ListHit. We received your message about "{{.Subject}}" and will respond shortly.

If you need to add anything, reply to this email.

The ListHit team`

const contactNotificationHTML = wrapperOpen + `
  <h2 style="margin-bottom: 12px;">New contact form submission</h2>
  <ul style="padding-left: 18px;">
    <li><strong>Name:</strong> {{.Name}}</li>
    <li><strong>Email:</strong> {{.Email}}</li>
    <li><strong>Phone:</strong> {{or .Phone "-"}}</li>
    <li><strong>Subject:</strong> {{.Subject}}</li>
    <li><strong>Verification pending:</strong> {{yesNo .VerificationPending}}</li>
    <li><strong>IP:</strong> {{or .IP "-"}}</li>
    <li><strong>User agent:</strong> {{or .UserAgent "-"}}</li>
    <li><strong>Source:</strong> {{.Source}}</li>
    <li><strong>Received at:</strong> {{timestamp .ReceivedAt}}</li>
  </ul>
  <p style="margin-top: 12px;"><strong>Message:</strong></p>
  <p style="white-space: pre-wrap;">{{.Message}}</p>
</div>`

const contactNotificationText = `New contact form submission

Name: {{.Name}}
Email: {{.Email}}
Phone: {{or .Phone "-"}}
Subject: {{.Subject}}
Verification pending: {{yesNo .VerificationPending}}
IP: {{or .IP "-"}}
User agent: {{or .UserAgent "-"}}
Source: {{.Source}}
Received at: {{timestamp .ReceivedAt}}

Message:
{{.Message}}`

// pair is one message's HTML and plain-text bodies.
type pair struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func mustPair(name, html, text string) pair {
	return pair{
		html: htmltemplate.Must(htmltemplate.New(name).Funcs(htmltemplate.FuncMap(funcs)).Parse(html)),
		text: texttemplate.Must(texttemplate.New(name).Funcs(texttemplate.FuncMap(funcs)).Parse(text)),
	}
}

var (
	verificationTpl              = mustPair("verification", verificationHTML, verificationText)
	requestAccessConfirmationTpl = mustPair("request_access_confirmation", requestAccessConfirmationHTML, requestAccessConfirmationText)
	requestAccessNotificationTpl = mustPair("request_access_notification", requestAccessNotificationHTML, requestAccessNotificationText)
	contactReceiptTpl            = mustPair("contact_receipt", contactReceiptHTML, contactReceiptText)
	contactNotificationTpl       = mustPair("contact_notification", contactNotificationHTML, contactNotificationText)
)
