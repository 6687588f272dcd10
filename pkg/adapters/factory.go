package adapters

import (
	"encoding/json"
	"fmt"
)

// New creates an adapter from its kind and a flat configuration map.
//
// Supported kinds:
//   - "http":            url, method, body, valuePath, timestampPath, timestampFormat, headers (JSON), templateVars (JSON)
//   - "slots":           url, statusPath
//   - "prometheus":      url (default http://localhost:9090), query
//   - "victoriametrics": url (default http://localhost:8428), query
func New(kind string, config map[string]string, stepSeconds int) (Adapter, error) {
	switch kind {
	case "http":
		return newHTTP(config, stepSeconds)
	case "slots":
		return newSlots(config)
	case "prometheus":
		return newRange(config, stepSeconds, "prometheus", "http://localhost:9090")
	case "victoriametrics":
		return newRange(config, stepSeconds, "victoriametrics", "http://localhost:8428")
	default:
		return nil, fmt.Errorf("unknown adapter kind: %s (must be http, slots, prometheus, or victoriametrics)", kind)
	}
}

func newRange(config map[string]string, stepSeconds int, flavor, defaultURL string) (Adapter, error) {
	query := config["query"]
	if query == "" {
		return nil, fmt.Errorf("%s adapter requires 'query' config", flavor)
	}

	return &PrometheusAdapter{
		ServerURL:   orDefault(config["url"], defaultURL),
		Query:       query,
		StepSeconds: stepSeconds,
		Flavor:      flavor,
	}, nil
}

func newSlots(config map[string]string) (Adapter, error) {
	if config["url"] == "" {
		return nil, fmt.Errorf("slots adapter requires 'url' config")
	}
	return &SlotStatusAdapter{
		URL:        config["url"],
		StatusPath: config["statusPath"],
	}, nil
}

func newHTTP(config map[string]string, stepSeconds int) (Adapter, error) {
	if config["url"] == "" {
		return nil, fmt.Errorf("http adapter requires 'url' config")
	}

	var headers map[string]string
	if raw := config["headers"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			return nil, fmt.Errorf("invalid 'headers' JSON: %w", err)
		}
	}

	var templateVars map[string]string
	if raw := config["templateVars"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &templateVars); err != nil {
			return nil, fmt.Errorf("invalid 'templateVars' JSON: %w", err)
		}
	}

	a := &HTTPAdapter{
		URL:             config["url"],
		Method:          config["method"],
		Headers:         headers,
		Body:            config["body"],
		ValuePath:       config["valuePath"],
		TimestampPath:   config["timestampPath"],
		TimestampFormat: config["timestampFormat"],
		StepSeconds:     stepSeconds,
		TemplateVars:    templateVars,
	}
	if err := a.ValidateConfig(); err != nil {
		return nil, fmt.Errorf("http adapter: %w", err)
	}
	return a, nil
}
