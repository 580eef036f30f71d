package domain

import "fmt"

// Format tags a document encoding understood by the converter.
type Format string

const (
	FormatDocx     Format = "docx"
	FormatODT      Format = "odt"
	FormatPDF      Format = "pdf"
	FormatMarkdown Format = "markdown"
	FormatText     Format = "txt"
)

var formatByExt = map[string]Format{
	"docx":     FormatDocx,
	"odt":      FormatODT,
	"pdf":      FormatPDF,
	"md":       FormatMarkdown,
	"markdown": FormatMarkdown,
	"txt":      FormatText,
}

var mimeByFormat = map[Format]string{
	FormatDocx:     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	FormatODT:      "application/vnd.oasis.opendocument.text",
	FormatPDF:      "application/pdf",
	FormatMarkdown: "text/markdown",
	FormatText:     "text/plain",
}

const (
	MimeJSON = "application/json"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FormatFromFileName detects the format from the file extension.
func FormatFromFileName(name string) (Format, error) {
	ext := Ext(name)
	if f, ok := formatByExt[ext]; ok {
		return f, nil
	}
	return "", WrapError(ErrInvalidInput, "detect format", fmt.Errorf("unsupported extension %q in %q", ext, name))
}

func (f Format) MimeType() string {
	if mime, ok := mimeByFormat[f]; ok {
		return mime
	}
	return "application/octet-stream"
}

// Uploadable reports whether students may submit files in this format.
func (f Format) Uploadable() bool {
	return f == FormatDocx || f == FormatODT || f == FormatPDF
}
