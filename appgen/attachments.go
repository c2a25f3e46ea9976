package appgen

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"github.com/programme-lv/pagesforge/course"
	"github.com/wailsapp/mimetype"
)

type Decoded struct {
	Name    string
	Mime    string
	Content []byte
}

// DecodeAttachment parses a data URI. The media type is sniffed from the
// content when the URI does not name one.
func DecodeAttachment(a course.Attachment) (Decoded, error) {
	rest, ok := strings.CutPrefix(a.URL, "data:")
	if !ok {
		return Decoded{}, fmt.Errorf("attachment %q: not a data URI", a.Name)
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return Decoded{}, fmt.Errorf("attachment %q: data URI without payload", a.Name)
	}

	params := strings.Split(meta, ";")
	mime := params[0]
	isBase64 := false
	for _, p := range params[1:] {
		if p == "base64" {
			isBase64 = true
		}
	}

	var content []byte
	if isBase64 {
		var err error
		content, err = base64.StdEncoding.DecodeString(data)
		if err != nil {
			return Decoded{}, fmt.Errorf("attachment %q: %w", a.Name, err)
		}
	} else {
		unescaped, err := url.PathUnescape(data)
		if err != nil {
			unescaped = data
		}
		content = []byte(unescaped)
	}

	if mime == "" {
		mime = mimetype.Detect(content).String()
	}

	name := a.Name
	if name == "" {
		name = "file"
	}
	return Decoded{Name: name, Mime: mime, Content: content}, nil
}

func DecodeAttachments(as []course.Attachment) ([]Decoded, error) {
	res := make([]Decoded, 0, len(as))
	for _, a := range as {
		d, err := DecodeAttachment(a)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}
