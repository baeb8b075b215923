package smtp

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
)

var registerHelpers sync.Once

// Compiled is a rendered message.
type Compiled struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Compiler renders handlebars subjects and bodies.
type Compiler struct{}

// NewCompiler creates a compiler. Helpers are registered once per process.
func NewCompiler() *Compiler {
	registerHelpers.Do(func() {
		raymond.RegisterHelper("uppercase", func(s string) string {
			return strings.ToUpper(s)
		})
		raymond.RegisterHelper("formatDate", func(value string, layout string) string {
			t, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return value
			}
			return t.Format(layout)
		})
		raymond.RegisterHelper("eq", func(a, b any, options *raymond.Options) any {
			if fmt.Sprint(a) == fmt.Sprint(b) {
				return options.Fn()
			}
			return options.Inverse()
		})
	})
	return &Compiler{}
}

// Compile renders subject and body with payload as context.
func (c *Compiler) Compile(subject, body string, payload any) (*Compiled, error) {
	renderedSubject, err := render(subject, payload)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	renderedBody, err := render(body, payload)
	if err != nil {
		return nil, fmt.Errorf("body: %w", err)
	}
	return &Compiled{
		Subject: strings.TrimSpace(renderedSubject),
		HTML:    renderedBody,
	}, nil
}

func render(source string, payload any) (string, error) {
	tpl, err := raymond.Parse(source)
	if err != nil {
		return "", err
	}
	return tpl.Exec(payload)
}
