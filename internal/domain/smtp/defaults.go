package smtp

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type defaultTemplate struct {
	Subject  string `yaml:"subject"`
	Template string `yaml:"template"`
}

var (
	defaultsOnce sync.Once
	defaults     map[string]EventConfig
	defaultsErr  error
)

// DefaultEventConfigs returns the built-in subject and template of every
// event, all active.
func DefaultEventConfigs() (map[string]EventConfig, error) {
	defaultsOnce.Do(func() {
		defaults, defaultsErr = parseDefaults(defaultsYAML)
	})
	if defaultsErr != nil {
		return nil, defaultsErr
	}
	out := make(map[string]EventConfig, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	return out, nil
}

func parseDefaults(raw []byte) (map[string]EventConfig, error) {
	var doc struct {
		Events map[string]defaultTemplate `yaml:"events"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("smtp: parse default templates: %w", err)
	}
	out := make(map[string]EventConfig, len(doc.Events))
	for event, tpl := range doc.Events {
		if !IsSupportedEvent(event) {
			return nil, fmt.Errorf("smtp: default template for unsupported event %q", event)
		}
		out[event] = EventConfig{Active: true, Subject: tpl.Subject, Template: tpl.Template}
	}
	for _, event := range Events {
		if _, ok := out[event]; !ok {
			return nil, fmt.Errorf("smtp: missing default template for %s", event)
		}
	}
	return out, nil
}
