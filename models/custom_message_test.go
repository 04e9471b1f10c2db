package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPlaceholders(t *testing.T) {
	body := "Hi {{name}}, your {{ order.id }} ships {{name}} on {{ship-date}}."

	names := ExtractPlaceholders(body)
	// Distinct names, in order of first appearance; inner whitespace tolerated.
	assert.Equal(t, []string{"name", "order.id", "ship-date"}, names)
}

func TestExtractPlaceholdersNone(t *testing.T) {
	assert.Empty(t, ExtractPlaceholders("plain text"))
	assert.Empty(t, ExtractPlaceholders("half open {{name"))
	assert.Empty(t, ExtractPlaceholders("{{bad token}}"))
}
