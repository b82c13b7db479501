// Package shortcut synthesizes small inline HTML documents for workspace
// mime types - remote "native" documents that have no downloadable bytes.
// See spec.md §4.5.
package shortcut

import (
	"fmt"
	"html"
	"strings"

	"github.com/jstaf/driveflux/internal/remote"
)

// urlTemplates maps a workspace mime sub-type to the canonical web URL used
// to open it. fileView is the fallback for anything unrecognized.
var urlTemplates = map[string]string{
	"application/vnd.google-apps.document":     "https://docs.google.com/document/d/%s/edit",
	"application/vnd.google-apps.spreadsheet":  "https://docs.google.com/spreadsheets/d/%s/edit",
	"application/vnd.google-apps.presentation": "https://docs.google.com/presentation/d/%s/edit",
	"application/vnd.google-apps.form":         "https://docs.google.com/forms/d/%s/edit",
	"application/vnd.google-apps.drawing":      "https://docs.google.com/drawings/d/%s/edit",
}

const fileViewTemplate = "https://drive.google.com/file/d/%s/view"

// IsWorkspaceMime reports whether mimeType names a workspace document with
// no downloadable bytes.
func IsWorkspaceMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, remote.WorkspaceMimePrefix)
}

// URLFor returns the canonical web URL for opening remoteID with the given
// workspace mime type, falling back to the generic file-view URL for
// unrecognized sub-types.
func URLFor(remoteID, mimeType string) string {
	if tmpl, ok := urlTemplates[mimeType]; ok {
		return fmt.Sprintf(tmpl, remoteID)
	}
	return fmt.Sprintf(fileViewTemplate, remoteID)
}

// Generate returns the bytes of the shortcut document for a workspace file.
// getattr reports this document's length as the file's size, and read
// serves it directly - the remote is never contacted for these inodes.
func Generate(remoteID, name, mimeType string) []byte {
	url := URLFor(remoteID, mimeType)
	title := html.EscapeString(name)
	escapedURL := html.EscapeString(url)
	doc := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<meta http-equiv="refresh" content="0; url=%s">
</head>
<body>
<p>Opening <a href="%s">%s</a>...</p>
<script>window.location.replace(%q);</script>
</body>
</html>
`, title, escapedURL, escapedURL, title, url)
	return []byte(doc)
}
