package llm

import "fmt"

// NewProvider builds a provider by config name.
func NewProvider(name, apiKey, model, baseURL string) (Provider, error) {
	switch name {
	case "anthropic", "":
		return NewAnthropicProvider(apiKey, model)
	case "openai":
		return NewOpenAIProvider(apiKey, model)
	case "ollama":
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return NewOpenAICompatProvider(baseURL, apiKey, model, "Ollama"), nil
	case "compat":
		if baseURL == "" {
			return nil, fmt.Errorf("provider %q requires base_url", name)
		}
		return NewOpenAICompatProvider(baseURL, apiKey, model, "Compat"), nil
	case "mock":
		return NewMockProvider("mock"), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}
