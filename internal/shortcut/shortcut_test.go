package shortcut

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWorkspaceMime(t *testing.T) {
	assert.True(t, IsWorkspaceMime("application/vnd.google-apps.document"))
	assert.True(t, IsWorkspaceMime("application/vnd.google-apps.spreadsheet"))
	assert.False(t, IsWorkspaceMime("text/plain"))
	assert.False(t, IsWorkspaceMime("application/vnd.google-apps"))
}

func TestURLForKnownAndFallback(t *testing.T) {
	url := URLFor("abc123", "application/vnd.google-apps.document")
	assert.Equal(t, "https://docs.google.com/document/d/abc123/edit", url)

	fallback := URLFor("abc123", "application/vnd.google-apps.map")
	assert.Equal(t, "https://drive.google.com/file/d/abc123/view", fallback)
}

func TestGenerateContainsTitleAndURL(t *testing.T) {
	doc := Generate("y", "notes.gdoc", "application/vnd.google-apps.document")
	s := string(doc)
	assert.Contains(t, s, "notes.gdoc")
	assert.Contains(t, s, "https://docs.google.com/document/d/y/edit")
	assert.True(t, strings.HasPrefix(s, "<!DOCTYPE html>"))
}

func TestGenerateEscapesName(t *testing.T) {
	doc := Generate("y", `<script>evil</script>`, "application/vnd.google-apps.document")
	s := string(doc)
	assert.NotContains(t, s, "<script>evil</script>")
}
