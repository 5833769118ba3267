package email

import "html/template"

type templateData struct {
	RecipientName string
	Title         string
	AgreementID   string
	Content       string
	Amount        float64
	Currency      string
	DueDate       string
	PaymentDate   string
	PaymentType   string
	DaysRemaining int
	ViewLink      string
	AppName       string
}

const baseLayout = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
.container { max-width: 600px; margin: 0 auto; padding: 20px; }
.header { background: #4f46e5; color: white; padding: 20px; text-align: center; }
.content { padding: 20px; background: #f9fafb; }
.details { background: white; padding: 15px; border-radius: 8px; margin: 15px 0; }
.btn { display: inline-block; padding: 12px 24px; background: #4f46e5; color: white; text-decoration: none; border-radius: 6px; margin: 10px 0; }
.footer { text-align: center; padding: 20px; font-size: 12px; color: #666; }
</style>
</head>
<body>
<div class="container">
<div class="header"><h1>{{template "heading" .}}</h1></div>
<div class="content">{{template "body" .}}
<div style="text-align: center;"><a href="{{.ViewLink}}" class="btn">View Agreement</a></div>
</div>
<div class="footer"><p>This is an automated message from {{.AppName}}.</p></div>
</div>
</body>
</html>`

var confirmedTmpl = template.Must(template.Must(template.New("confirmed").Parse(baseLayout)).Parse(`
{{define "heading"}}Agreement Confirmed{{end}}
{{define "body"}}
<p>Hi {{.RecipientName}},</p>
<p>The following agreement has been confirmed and is now locked against changes:</p>
<div class="details">
<h3>{{.Title}}</h3>
<p><strong>Agreement ID:</strong> {{.AgreementID}}</p>
<p>{{.Content}}</p>
</div>
{{end}}`))

var paymentReceivedTmpl = template.Must(template.Must(template.New("paymentReceived").Parse(baseLayout)).Parse(`
{{define "heading"}}Payment Received{{end}}
{{define "body"}}
<p>Hi {{.RecipientName}},</p>
<p>A payment has been recorded for the agreement below:</p>
<div class="details">
<h3>{{.Title}}</h3>
<p><strong>Agreement ID:</strong> {{.AgreementID}}</p>
<p><strong>Amount:</strong> {{.Currency}} {{printf "%.2f" .Amount}}</p>
<p><strong>Payment Date:</strong> {{.PaymentDate}}</p>
</div>
{{end}}`))

var reminderTmpl = template.Must(template.Must(template.New("reminder").Parse(baseLayout)).Parse(`
{{define "heading"}}Payment Reminder{{end}}
{{define "body"}}
<p>Hi {{.RecipientName}},</p>
<p>This is a friendly reminder that a payment on the agreement below is due soon:</p>
<div class="details">
<h3>{{.Title}}</h3>
<p><strong>Agreement ID:</strong> {{.AgreementID}}</p>
<p><strong>Amount:</strong> {{.Currency}} {{printf "%.2f" .Amount}}</p>
<p><strong>Due Date:</strong> {{.DueDate}}</p>
<p><strong>Payment Type:</strong> {{.PaymentType}}</p>
<p><strong>Days Remaining:</strong> {{.DaysRemaining}}</p>
</div>
<p>If you have already made the payment, please ignore this message.</p>
{{end}}`))

var overdueTmpl = template.Must(template.Must(template.New("overdue").Parse(baseLayout)).Parse(`
{{define "heading"}}Payment Overdue{{end}}
{{define "body"}}
<p>Hi {{.RecipientName}},</p>
<p>The payment on the agreement below is now overdue:</p>
<div class="details">
<h3>{{.Title}}</h3>
<p><strong>Agreement ID:</strong> {{.AgreementID}}</p>
<p><strong>Amount:</strong> {{.Currency}} {{printf "%.2f" .Amount}}</p>
<p><strong>Due Date:</strong> {{.DueDate}}</p>
</div>
<p>Please settle the payment as soon as possible.</p>
{{end}}`))
