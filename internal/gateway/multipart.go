package gateway

import (
	"bytes"
	"io"
	"mime/multipart"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// FilePart is an attachment for a multipart request.
type FilePart struct {
	Field    string
	Name     string
	Contents io.Reader
}

// MultipartRequest builds a request whose body is a multipart form. Field
// order is deterministic so replays send identical bytes.
func MultipartRequest(method, path string, fields map[string]string, file *FilePart) (Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := w.WriteField(key, fields[key]); err != nil {
			return Request{}, errors.Wrapf(err, "write field %s", key)
		}
	}
	if file != nil && file.Contents != nil {
		field := file.Field
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, filepath.Base(file.Name))
		if err != nil {
			return Request{}, errors.Wrap(err, "create file part")
		}
		if _, err := io.Copy(part, file.Contents); err != nil {
			return Request{}, errors.Wrap(err, "copy file")
		}
	}
	if err := w.Close(); err != nil {
		return Request{}, errors.Wrap(err, "close multipart")
	}
	return Request{Method: method, Path: path, Raw: buf.Bytes(), ContentType: w.FormDataContentType()}, nil
}
