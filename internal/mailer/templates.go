package mailer

import (
	"bytes"
	"fmt"
	"text/template"
)

const (
	TemplateOneTimeCode     = "one_time_code"
	TemplatePasswordChanged = "password_changed"
)

type message struct {
	subject *template.Template
	body    *template.Template
}

var templates = map[string]message{
	TemplateOneTimeCode: {
		subject: template.Must(template.New("subject").Parse(`Your Scribe verification code: {{.code}}`)),
		body: template.Must(template.New("body").Parse(`Hello {{if .name}}{{.name}}{{else}}there{{end}},

Your verification code{{if .action}} to {{.action}}{{end}} is:

    {{.code}}

It expires in {{.expires_in}}. If you did not request it, you can ignore
this email; nobody can sign in without your password.
`)),
	},
	TemplatePasswordChanged: {
		subject: template.Must(template.New("subject").Parse(`Your Scribe password was changed`)),
		body: template.Must(template.New("body").Parse(`Hello {{if .name}}{{.name}}{{else}}there{{end}},

The password of your Scribe account was changed and every other session
was signed out. If this was not you, reset your password immediately.
`)),
	},
}

func render(name string, params map[string]string) (subject, body string, err error) {
	tmpl, ok := templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	var buf bytes.Buffer
	if err := tmpl.subject.Execute(&buf, params); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}
	subject = buf.String()

	buf.Reset()
	if err := tmpl.body.Execute(&buf, params); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}

	return subject, buf.String(), nil
}
