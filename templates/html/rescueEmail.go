package templates

import (
	"bytes"
	"html/template"
	"strings"
)

// RescueEmail is a notification rendered into the branded layout. CaseID,
// Status and Link are optional; account emails leave them empty.
type RescueEmail struct {
	Subject string
	Body    string
	CaseID  string
	Status  string
	Link    string
}

type rescueEmailView struct {
	RescueEmail
	Lines []string
}

var rescueEmail = template.Must(template.New("rescue").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta http-equiv="Content-Type" content="text/html; charset=utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Subject}}</title>
  <style type="text/css">
    body { font-family: 'Segoe UI', Tahoma, sans-serif; margin: 0; padding: 0; background-color: #f4f1ea; }
    .container { max-width: 600px; margin: 0 auto; background-color: #ffffff; }
    .header { background-color: #b45309; padding: 32px 30px; text-align: center; }
    .header h1 { color: #fff; margin: 0; font-size: 22px; }
    .status { margin: 0; padding: 12px 30px; background-color: #fef3c7; color: #92400e; font-size: 14px; }
    .content { padding: 32px 30px; color: #1f2937; line-height: 1.6; font-size: 15px; }
    .button { display: inline-block; margin-top: 20px; padding: 10px 22px; background-color: #b45309; color: #fff; border-radius: 6px; text-decoration: none; }
    .footer { padding: 24px 30px; text-align: center; color: #6b7280; font-size: 12px; border-top: 1px solid #e5e7eb; }
  </style>
</head>
<body>
  <div class="container">
    <div class="header"><h1>{{.Subject}}</h1></div>
    {{- if .Status}}
    <p class="status">Rescue {{if .CaseID}}#{{.CaseID}} {{end}}is now <strong>{{.Status}}</strong></p>
    {{- end}}
    <div class="content">
      {{- range $i, $line := .Lines}}{{if $i}}<br>{{end}}{{$line}}{{end}}
      {{- if .Link}}
      <p><a class="button" href="{{.Link}}">View rescue</a></p>
      {{- end}}
    </div>
    <div class="footer">
      <p>PawSaarthi | Every rescue counts</p>
      <p>You are receiving this email because you reported or are handling a rescue.</p>
    </div>
  </div>
</body>
</html>`))

// RenderRescueEmail returns the HTML body for e. Every field is escaped and
// newlines in Body become line breaks.
func RenderRescueEmail(e RescueEmail) (string, error) {
	var buf bytes.Buffer
	view := rescueEmailView{RescueEmail: e, Lines: strings.Split(e.Body, "\n")}
	if err := rescueEmail.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}
