package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

// File is one part of a multipart upload
type File struct {
	Field       string
	Name        string
	ContentType string
	Content     io.Reader
}

// Upload POSTs fields and files as multipart/form-data and decodes the
// envelope data into out.
func (c *Client) Upload(ctx context.Context, path string, fields map[string]string, files []File, out any, opts ...CallOption) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("writing field %s: %w", k, err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", multipart.FileContentDisposition(f.Field, f.Name))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := w.CreatePart(h)
		if err != nil {
			return fmt.Errorf("creating part %s: %w", f.Field, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return fmt.Errorf("copying %s: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req := build(http.MethodPost, path, nil, opts)
	req.body = &buf
	req.contentType = w.FormDataContentType()
	return c.Do(ctx, req, out)
}
