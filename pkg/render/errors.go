package render

import "errors"

var (
	ErrTemplateNotFound   = errors.New("render: template not found")
	ErrLayoutNotFound     = errors.New("render: layout not found")
	ErrInvalidFrontmatter = errors.New("render: invalid frontmatter")
	ErrNoSubject          = errors.New("render: template has no subject")
	ErrRenderFailed       = errors.New("render: failed to render template")
)
