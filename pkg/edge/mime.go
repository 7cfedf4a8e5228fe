package edge

// MimeType maps a content type to the file extensions served with it.
type MimeType struct {
	Type       string
	Extensions []string
}

// MimeTypes is the body of a types block.
type MimeTypes []MimeType

// Fields implements Node.
func (m MimeTypes) Fields() []Field {
	fields := make([]Field, 0, len(m))
	for _, t := range m {
		fields = append(fields, Param(t.Type, t.Extensions...))
	}
	return fields
}

// DefaultMimeTypes returns the types a static camouflage site needs, in the
// order nginx ships them in mime.types.
func DefaultMimeTypes() MimeTypes {
	return MimeTypes{
		{"text/html", []string{"html", "htm", "shtml"}},
		{"text/css", []string{"css"}},
		{"text/xml", []string{"xml"}},
		{"image/gif", []string{"gif"}},
		{"image/jpeg", []string{"jpeg", "jpg"}},
		{"application/javascript", []string{"js"}},
		{"application/atom+xml", []string{"atom"}},
		{"application/rss+xml", []string{"rss"}},
		{"text/plain", []string{"txt"}},
		{"image/png", []string{"png"}},
		{"image/svg+xml", []string{"svg", "svgz"}},
		{"image/webp", []string{"webp"}},
		{"image/x-icon", []string{"ico"}},
		{"font/woff", []string{"woff"}},
		{"font/woff2", []string{"woff2"}},
		{"application/json", []string{"json"}},
		{"application/pdf", []string{"pdf"}},
		{"application/zip", []string{"zip"}},
		{"application/octet-stream", []string{"bin", "exe", "dll", "iso", "img"}},
		{"audio/mpeg", []string{"mp3"}},
		{"video/mp4", []string{"mp4"}},
		{"video/webm", []string{"webm"}},
	}
}
