package providers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/arogyasahayak/sahayak/internal/config"
)

// Stack is the fixed-priority provider set the assistant works through:
// one primary tried first, then the fallback models strictly in order.
type Stack struct {
	Primary   Provider
	Fallbacks []Provider
}

// FromConfig builds the provider stack. Order of the fallback slice mirrors
// the config's model list and must not be rearranged afterwards.
func FromConfig(cfg *config.Config, logger *slog.Logger) (Stack, error) {
	timeout := config.Duration(cfg.Assistant.RequestTimeout, 120*time.Second)

	var stack Stack

	if c := cfg.Provider.Primary; c != nil && c.APIKey != "" {
		p := NewOpenAICompat(c.BaseURL, c.APIKey, c.Model, timeout)
		if p.Available() {
			stack.Primary = p
			logger.Info("primary provider enabled", "model", c.Model)
		} else {
			logger.Warn("primary provider configured but incomplete", "base_url", c.BaseURL)
		}
	}

	if c := cfg.Provider.Fallback; c != nil && c.APIKey != "" {
		for _, model := range c.Models {
			p := NewOpenAICompat(c.BaseURL, c.APIKey, model, timeout)
			if !p.Available() {
				continue
			}
			stack.Fallbacks = append(stack.Fallbacks, p)
			logger.Info("fallback model enabled", "model", model, "position", len(stack.Fallbacks))
		}
	}

	if stack.Primary == nil && len(stack.Fallbacks) == 0 {
		return Stack{}, fmt.Errorf("no providers available. Configure at least one in config.json")
	}

	return stack, nil
}
