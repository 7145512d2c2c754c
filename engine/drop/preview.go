package drop

// Symbolic icon names understood by the presentation layer.
const (
	IconLink    = "chain-link-symbolic"
	IconText    = "font-generic-symbolic"
	IconNotepad = "notepad-symbolic"
)

// Preview is what the presentation layer renders for an item. It is one of
// PreviewSymbolic, PreviewGenericIcon or PreviewThumbnail.
type Preview interface {
	isPreview()
}

// PreviewSymbolic names a themed symbolic icon.
type PreviewSymbolic struct {
	Name string
}

// PreviewGenericIcon asks for the system icon of a content type.
type PreviewGenericIcon struct {
	ContentType string
}

// PreviewThumbnail points at an image file to display.
type PreviewThumbnail struct {
	Path string
}

func (PreviewSymbolic) isPreview()    {}
func (PreviewGenericIcon) isPreview() {}
func (PreviewThumbnail) isPreview()   {}
