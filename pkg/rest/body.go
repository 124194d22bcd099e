package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"strconv"
)

const (
	defaultFileField  = "files[]"
	defaultParamField = "params[]"
)

// File is an in-memory upload. Any body argument holding a File, *File,
// []File or []*File turns the body into multipart/form-data.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

// BodyKind tells how a Body is encoded.
type BodyKind int

const (
	BodyNone BodyKind = iota
	// BodyRaw passes a single value through unchanged.
	BodyRaw
	// BodyJSON is an object keyed by binding name.
	BodyJSON
	// BodyMultipart is a multipart/form-data form.
	BodyMultipart
)

// Part is one field of a multipart body; exactly one of File and Value is set.
type Part struct {
	Name  string
	File  *File
	Value string
}

// Body is the assembled request payload.
type Body struct {
	Kind   BodyKind
	Raw    any
	Fields map[string]any
	Parts  []Part
}

// Encode renders the body for the wire and returns its content type.
func (b Body) Encode() (io.Reader, string, error) {
	switch b.Kind {
	case BodyRaw:
		return encodeRaw(b.Raw)
	case BodyJSON:
		data, err := json.Marshal(b.Fields)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	case BodyMultipart:
		return encodeMultipart(b.Parts)
	}
	return nil, "", nil
}

func encodeRaw(v any) (io.Reader, string, error) {
	switch raw := v.(type) {
	case string:
		return bytes.NewReader([]byte(raw)), "text/plain; charset=utf-8", nil
	case []byte:
		return bytes.NewReader(raw), "application/octet-stream", nil
	case io.Reader:
		return raw, "application/octet-stream", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("encode raw body: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}

func encodeMultipart(parts []Part) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, p := range parts {
		if p.File == nil {
			if err := w.WriteField(p.Name, p.Value); err != nil {
				return nil, "", fmt.Errorf("write field %s: %w", p.Name, err)
			}
			continue
		}

		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Name, p.File.Name))
		contentType := p.File.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h.Set("Content-Type", contentType)

		fw, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("create part %s: %w", p.Name, err)
		}
		if _, err := fw.Write(p.File.Content); err != nil {
			return nil, "", fmt.Errorf("write file %s: %w", p.File.Name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// boundArg is a body argument with its binding name, nil arguments removed.
type boundArg struct {
	index int
	name  string
	value any
}

// buildBody shapes the body from its bindings: any file makes it multipart,
// a single unnamed binding passes through raw, and anything else becomes an
// object keyed by binding name, unnamed bindings under "arg<index>".
func buildBody(args []boundArg) (Body, error) {
	if len(args) == 0 {
		return Body{}, nil
	}

	for _, a := range args {
		if isFileValue(a.value) {
			return multipartBody(args)
		}
	}

	if len(args) == 1 && args[0].name == "" {
		return Body{Kind: BodyRaw, Raw: args[0].value}, nil
	}

	fields := make(map[string]any, len(args))
	for _, a := range args {
		if a.name != "" {
			fields[a.name] = a.value
			continue
		}
		fields["arg"+strconv.Itoa(a.index)] = a.value
	}
	return Body{Kind: BodyJSON, Fields: fields}, nil
}

func multipartBody(args []boundArg) (Body, error) {
	var parts []Part
	for _, a := range args {
		fileName := a.name
		if fileName == "" {
			fileName = defaultFileField
		}

		switch v := a.value.(type) {
		case File:
			parts = append(parts, Part{Name: fileName, File: &v})
		case *File:
			parts = append(parts, Part{Name: fileName, File: v})
		case []File:
			for i := range v {
				parts = append(parts, Part{Name: fileName, File: &v[i]})
			}
		case []*File:
			for _, f := range v {
				if f != nil {
					parts = append(parts, Part{Name: fileName, File: f})
				}
			}
		default:
			name := a.name
			if name == "" {
				name = defaultParamField
			}
			value, err := formValue(v)
			if err != nil {
				return Body{}, fmt.Errorf("body field %s: %w", name, err)
			}
			parts = append(parts, Part{Name: name, Value: value})
		}
	}
	return Body{Kind: BodyMultipart, Parts: parts}, nil
}

func isFileValue(v any) bool {
	switch f := v.(type) {
	case File, []File, []*File:
		return true
	case *File:
		return f != nil
	}
	return false
}

func formValue(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	case fmt.Stringer:
		return s.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
