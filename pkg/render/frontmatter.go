package render

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// document is a template file split into YAML frontmatter and markdown body.
type document struct {
	Metadata map[string]any
	Body     string
}

// parseDocument extracts the frontmatter between the leading "---" lines.
// Content without a leading delimiter is all body.
func parseDocument(content []byte) (*document, error) {
	delimiter := []byte("---")

	if !bytes.HasPrefix(content, delimiter) {
		return &document{Metadata: map[string]any{}, Body: string(content)}, nil
	}

	rest := bytes.TrimLeft(bytes.TrimPrefix(content, delimiter), "\r\n")
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: no content after opening delimiter", ErrInvalidFrontmatter)
	}

	end := bytes.Index(rest, delimiter)
	if end == -1 {
		return nil, fmt.Errorf("%w: closing delimiter not found", ErrInvalidFrontmatter)
	}

	front := rest[:end]
	bodyStart := end + len(delimiter)
	// One line break after the closing delimiter belongs to it.
	switch {
	case bytes.HasPrefix(rest[bodyStart:], []byte("\r\n")):
		bodyStart += 2
	case bytes.HasPrefix(rest[bodyStart:], []byte("\n")):
		bodyStart++
	}

	metadata := map[string]any{}
	if len(bytes.TrimSpace(front)) > 0 {
		if err := yaml.Unmarshal(front, &metadata); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFrontmatter, err)
		}
	}

	return &document{Metadata: metadata, Body: string(rest[bodyStart:])}, nil
}

// stringField returns metadata[key] when it is a string.
func (d *document) stringField(key string) (string, bool) {
	v, ok := d.Metadata[key].(string)
	return v, ok
}
