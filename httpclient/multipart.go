package httpclient

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"

	"github.com/kbukum/httpreq/util"
)

// FileField is one file of a multipart upload. The form field name is the
// key under which it is registered with Builder.SetFiles.
type FileField struct {
	// FileName is the file name sent to the server. Defaults to the field name.
	FileName string
	// ContentType is the part's MIME type. Defaults to application/octet-stream.
	ContentType string
	// Data is the file content. Used if Reader is nil.
	Data []byte
	// Reader is read once, when the request is prepared.
	Reader io.Reader
}

// encodeMultipart renders files as a multipart/form-data body. Parts are
// written in field-name order so that the body is deterministic.
func encodeMultipart(files map[string]FileField) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range util.SortedKeys(files) {
		f := files[field]
		name := util.Coalesce(f.FileName, field)

		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			`form-data; name="`+escapeQuotes(field)+`"; filename="`+escapeQuotes(name)+`"`)
		header.Set("Content-Type", util.Coalesce(f.ContentType, "application/octet-stream"))

		part, err := w.CreatePart(header)
		if err != nil {
			return nil, "", err
		}

		switch {
		case f.Data != nil:
			if _, err := part.Write(f.Data); err != nil {
				return nil, "", err
			}
		case f.Reader != nil:
			if _, err := io.Copy(part, f.Reader); err != nil {
				return nil, "", err
			}
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
