package intercept

import (
	"bytes"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
)

// Form holds decoded form fields.
// A value is a string, a []string for repeated fields, a *FormFile, or a
// []*FormFile for repeated file fields.
type Form map[string]any

// FormFile is an uploaded file part of a multipart body.
type FormFile struct {
	Field       string
	Filename    string
	ContentType string
	Header      textproto.MIMEHeader
	Content     []byte
}

// Value returns the first string value for key, or an empty string.
func (f Form) Value(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

// Values returns every string value for key.
func (f Form) Values(key string) []string {
	switch v := f[key].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	}
	return nil
}

// File returns the first file uploaded under key, or nil.
func (f Form) File(key string) *FormFile {
	switch v := f[key].(type) {
	case *FormFile:
		return v
	case []*FormFile:
		if len(v) > 0 {
			return v[0]
		}
	}
	return nil
}

func (f Form) addValue(key, value string) {
	switch cur := f[key].(type) {
	case nil:
		f[key] = value
	case string:
		f[key] = []string{cur, value}
	case []string:
		f[key] = append(cur, value)
	}
}

func (f Form) addFile(key string, file *FormFile) {
	switch cur := f[key].(type) {
	case nil:
		f[key] = file
	case *FormFile:
		f[key] = []*FormFile{cur, file}
	case []*FormFile:
		f[key] = append(cur, file)
	}
}

// parseForm dispatches on the media type of contentType.
// Unknown, absent or malformed content types yield an empty form.
func parseForm(contentType string, body []byte) (Form, error) {
	form := Form{}
	if contentType == "" {
		return form, nil
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return form, nil
	}

	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, &ParseError{Format: "form", Err: err}
		}
		for key, vs := range values {
			for _, v := range vs {
				form.addValue(key, v)
			}
		}
		return form, nil

	case "multipart/form-data":
		boundary, ok := params["boundary"]
		if !ok {
			return nil, &ParseError{Format: "multipart", Err: errors.New("missing boundary")}
		}
		if err := parseMultipart(form, body, boundary); err != nil {
			return nil, &ParseError{Format: "multipart", Err: err}
		}
		return form, nil
	}

	return form, nil
}

func parseMultipart(form Form, body []byte, boundary string) error {
	mr := multipart.NewReader(bytes.NewReader(body), boundary)
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		name := p.FormName()
		if name == "" {
			continue
		}

		content, err := io.ReadAll(p)
		if err != nil {
			return err
		}

		if filename := p.FileName(); filename != "" {
			form.addFile(name, &FormFile{
				Field:       name,
				Filename:    filename,
				ContentType: p.Header.Get("Content-Type"),
				Header:      p.Header,
				Content:     content,
			})
			continue
		}
		form.addValue(name, string(content))
	}
}
