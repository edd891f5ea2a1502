package backend

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestionPrompt(t *testing.T) {
	prompt := SuggestionPrompt(CurrentWeather{Time: "2024-05-01T10:00", Temperature: 18.5, Condition: "Partly cloudy"})

	assert.Contains(t, prompt, "18.5°C")
	assert.Contains(t, prompt, "Partly cloudy weather")
	assert.Contains(t, prompt, "at 2024-05-01T10:00")
	assert.Contains(t, prompt, "extract keywords")

	assert.Contains(t, SuggestionPrompt(CurrentWeather{Temperature: 20}), "20°C")
}
