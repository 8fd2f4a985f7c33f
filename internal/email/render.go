// Package email renders the localized bodies of newsletter mails. Rendering
// is pure: the same input always yields the same output.
package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/zelenivrt/storefront-backend/internal/models"
)

// Content is a rendered mail
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// ConfirmationData feeds the double opt-in mail
type ConfirmationData struct {
	FirstName       string
	ConfirmationURL string
	Language        models.Language
}

// WelcomeData feeds the mail sent after confirmation
type WelcomeData struct {
	FirstName      string
	DiscountCode   string
	UnsubscribeURL string
	Language       models.Language
}

type view struct {
	Copy      copyText
	Brand     string
	Lang      models.Language
	FirstName string
	URL       string
	Code      string
}

// RenderConfirmation builds the confirmation mail
func RenderConfirmation(d ConfirmationData) (Content, error) {
	v := view{
		Copy:      copyFor(d.Language),
		Brand:     Brand,
		Lang:      resolved(d.Language),
		FirstName: d.FirstName,
		URL:       d.ConfirmationURL,
	}
	return render(v, v.Copy.ConfirmSubject, confirmationHTML, confirmationText)
}

// RenderWelcome builds the welcome mail carrying the discount code
func RenderWelcome(d WelcomeData) (Content, error) {
	v := view{
		Copy:      copyFor(d.Language),
		Brand:     Brand,
		Lang:      resolved(d.Language),
		FirstName: d.FirstName,
		URL:       d.UnsubscribeURL,
		Code:      d.DiscountCode,
	}
	return render(v, v.Copy.WelcomeSubject, welcomeHTML, welcomeText)
}

func resolved(lang models.Language) models.Language {
	if _, ok := catalog[lang]; ok {
		return lang
	}
	return models.LangEnglish
}

func render(v view, subject string, h *htmltemplate.Template, t *texttemplate.Template) (Content, error) {
	var hb, tb bytes.Buffer
	if err := h.Execute(&hb, v); err != nil {
		return Content{}, fmt.Errorf("render %s html: %w", h.Name(), err)
	}
	if err := t.Execute(&tb, v); err != nil {
		return Content{}, fmt.Errorf("render %s text: %w", t.Name(), err)
	}
	return Content{Subject: subject, HTML: hb.String(), Text: tb.String()}, nil
}

const greeting = `{{define "greeting"}}{{if .FirstName}}{{.Copy.Hello}} {{.FirstName}},{{else}}{{.Copy.HelloAnon}},{{end}}{{end}}`

var confirmationHTML = htmltemplate.Must(htmltemplate.New("confirmation").Parse(greeting + `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head><meta charset="utf-8"><title>{{.Copy.ConfirmSubject}}</title></head>
<body style="font-family: Georgia, serif; color: #2f3b2f; background: #f6f3ea; padding: 24px;">
  <div style="max-width: 560px; margin: 0 auto; background: #ffffff; padding: 32px; border-radius: 8px;">
    <h1 style="color: #4a7a3a; font-size: 22px;">{{.Brand}}</h1>
    <p>{{template "greeting" .}}</p>
    <p>{{.Copy.ConfirmIntro}}</p>
    <p style="text-align: center; margin: 32px 0;">
      <a href="{{.URL}}" style="background: #4a7a3a; color: #ffffff; padding: 12px 24px; border-radius: 4px; text-decoration: none;">{{.Copy.ConfirmButton}}</a>
    </p>
    <p style="font-size: 13px;">{{.Copy.ConfirmFallback}}<br>{{.URL}}</p>
    <p style="font-size: 13px; color: #777777;">{{.Copy.ConfirmIgnore}}</p>
    <p>{{.Copy.Regards}}<br>{{.Brand}}</p>
  </div>
</body>
</html>
`))

var confirmationText = texttemplate.Must(texttemplate.New("confirmation").Parse(greeting + `{{template "greeting" .}}

{{.Copy.ConfirmIntro}}

{{.URL}}

{{.Copy.ConfirmIgnore}}

{{.Copy.Regards}}
{{.Brand}}
`))

var welcomeHTML = htmltemplate.Must(htmltemplate.New("welcome").Parse(greeting + `<!DOCTYPE html>
<html lang="{{.Lang}}">
<head><meta charset="utf-8"><title>{{.Copy.WelcomeSubject}}</title></head>
<body style="font-family: Georgia, serif; color: #2f3b2f; background: #f6f3ea; padding: 24px;">
  <div style="max-width: 560px; margin: 0 auto; background: #ffffff; padding: 32px; border-radius: 8px;">
    <h1 style="color: #4a7a3a; font-size: 22px;">{{.Brand}}</h1>
    <p>{{template "greeting" .}}</p>
    <p>{{.Copy.WelcomeIntro}}</p>
{{- if .Code}}
    <p>{{.Copy.DiscountIntro}}</p>
    <p style="text-align: center; margin: 24px 0;">
      <span style="display: inline-block; border: 2px dashed #4a7a3a; padding: 12px 24px; font-size: 20px; letter-spacing: 2px;">{{.Code}}</span>
    </p>
    <p>{{.Copy.DiscountHint}}</p>
{{- end}}
    <p>{{.Copy.WelcomeOutro}}</p>
    <p>{{.Copy.Regards}}<br>{{.Brand}}</p>
    <hr style="border: none; border-top: 1px solid #e0ddd2;">
    <p style="font-size: 12px; color: #777777;">{{.Copy.UnsubscribeLead}} <a href="{{.URL}}">{{.Copy.Unsubscribe}}</a></p>
  </div>
</body>
</html>
`))

var welcomeText = texttemplate.Must(texttemplate.New("welcome").Parse(greeting + `{{template "greeting" .}}

{{.Copy.WelcomeIntro}}
{{if .Code}}
{{.Copy.DiscountIntro}}

    {{.Code}}

{{.Copy.DiscountHint}}
{{end}}
{{.Copy.WelcomeOutro}}

{{.Copy.Regards}}
{{.Brand}}

--
{{.Copy.UnsubscribeLead}}
{{.URL}}
`))
