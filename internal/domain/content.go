package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Content is the typed payload of a block. Each block type has exactly one
// implementation.
type Content interface {
	Type() BlockType
	Validate() error
	Clone() Content
}

type TextContent struct {
	HTML string `json:"html"`
}

type HeadingContent struct {
	Text  string `json:"text"`
	Level int    `json:"level"`
}

type ImageContent struct {
	Src  string `json:"src"`
	Alt  string `json:"alt,omitempty"`
	Href string `json:"href,omitempty"`
}

type ButtonContent struct {
	Label string `json:"label"`
	Href  string `json:"href,omitempty"`
}

type FormField struct {
	Name     string   `json:"name"`
	Label    string   `json:"label,omitempty"`
	Kind     string   `json:"kind"` // text | email | textarea | number | checkbox | select
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
}

type FormContent struct {
	Action string      `json:"action,omitempty"`
	Method string      `json:"method,omitempty"` // GET | POST
	Fields []FormField `json:"fields"`
}

type ContainerContent struct {
	Layout string `json:"layout,omitempty"` // block | flex | grid
	Gap    int    `json:"gap,omitempty"`
}

type VideoContent struct {
	Src      string `json:"src"`
	Autoplay bool   `json:"autoplay,omitempty"`
	Loop     bool   `json:"loop,omitempty"`
}

type DividerContent struct {
	Thickness int    `json:"thickness"`
	Color     string `json:"color,omitempty"`
}

type HTMLContent struct {
	Markup string `json:"markup"`
}

func (TextContent) Type() BlockType      { return BlockTypeText }
func (HeadingContent) Type() BlockType   { return BlockTypeHeading }
func (ImageContent) Type() BlockType     { return BlockTypeImage }
func (ButtonContent) Type() BlockType    { return BlockTypeButton }
func (FormContent) Type() BlockType      { return BlockTypeForm }
func (ContainerContent) Type() BlockType { return BlockTypeContainer }
func (VideoContent) Type() BlockType     { return BlockTypeVideo }
func (DividerContent) Type() BlockType   { return BlockTypeDivider }
func (HTMLContent) Type() BlockType      { return BlockTypeHTML }

func (c TextContent) Clone() Content      { return c }
func (c HeadingContent) Clone() Content   { return c }
func (c ImageContent) Clone() Content     { return c }
func (c ButtonContent) Clone() Content    { return c }
func (c ContainerContent) Clone() Content { return c }
func (c VideoContent) Clone() Content     { return c }
func (c DividerContent) Clone() Content   { return c }
func (c HTMLContent) Clone() Content      { return c }

func (c FormContent) Clone() Content {
	out := c
	if c.Fields != nil {
		out.Fields = make([]FormField, len(c.Fields))
		for i, f := range c.Fields {
			f.Options = append([]string(nil), f.Options...)
			out.Fields[i] = f
		}
	}
	return out
}

func (c TextContent) Validate() error { return validateMarkup(BlockTypeText, c.HTML) }
func (c HTMLContent) Validate() error { return validateMarkup(BlockTypeHTML, c.Markup) }

func (c HeadingContent) Validate() error {
	if c.Level < 1 || c.Level > 6 {
		return ErrValidation("heading level %d out of range 1..6", c.Level)
	}
	return nil
}

func (c ImageContent) Validate() error {
	if strings.TrimSpace(c.Src) == "" {
		return ErrValidation("image src is required")
	}
	return nil
}

func (c ButtonContent) Validate() error {
	if strings.TrimSpace(c.Label) == "" {
		return ErrValidation("button label is required")
	}
	return nil
}

var formFieldKinds = map[string]bool{
	"text": true, "email": true, "textarea": true, "number": true, "checkbox": true, "select": true,
}

func (c FormContent) Validate() error {
	switch strings.ToUpper(c.Method) {
	case "", "GET", "POST":
	default:
		return ErrValidation("form method %q not supported", c.Method)
	}
	seen := make(map[string]bool, len(c.Fields))
	for i, f := range c.Fields {
		if f.Name == "" {
			return ErrValidation("form field %d: name is required", i)
		}
		if seen[f.Name] {
			return ErrValidation("form field %q declared twice", f.Name)
		}
		seen[f.Name] = true
		if !formFieldKinds[f.Kind] {
			return ErrValidation("form field %q: unknown kind %q", f.Name, f.Kind)
		}
		if f.Kind == "select" && len(f.Options) == 0 {
			return ErrValidation("form field %q: select needs options", f.Name)
		}
	}
	return nil
}

func (c ContainerContent) Validate() error {
	switch c.Layout {
	case "", "block", "flex", "grid":
	default:
		return ErrValidation("container layout %q not supported", c.Layout)
	}
	if c.Gap < 0 {
		return ErrValidation("container gap must not be negative")
	}
	return nil
}

func (c VideoContent) Validate() error {
	if strings.TrimSpace(c.Src) == "" {
		return ErrValidation("video src is required")
	}
	return nil
}

func (c DividerContent) Validate() error {
	if c.Thickness < 0 {
		return ErrValidation("divider thickness must not be negative")
	}
	return nil
}

// forbiddenElements may not appear inside block markup; page-level head and
// footer code is the place for embeds.
var forbiddenElements = map[atom.Atom]bool{
	atom.Script: true,
	atom.Iframe: true,
	atom.Object: true,
	atom.Embed:  true,
}

func validateMarkup(t BlockType, markup string) error {
	parent := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), parent)
	if err != nil {
		return WrapError(ErrCodeValidation, err, "%s markup", t)
	}
	var walk func(n *html.Node) error
	walk = func(n *html.Node) error {
		if n.Type == html.ElementNode && forbiddenElements[n.DataAtom] {
			return ErrValidation("%s markup: <%s> is not allowed", t, n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, n := range nodes {
		if err := walk(n); err != nil {
			return err
		}
	}
	return nil
}

// NewContent returns the default payload for a freshly created block of type t.
func NewContent(t BlockType) (Content, error) {
	switch t {
	case BlockTypeText:
		return TextContent{HTML: "<p></p>"}, nil
	case BlockTypeHeading:
		return HeadingContent{Text: "Heading", Level: 2}, nil
	case BlockTypeImage:
		return ImageContent{Src: "about:blank"}, nil
	case BlockTypeButton:
		return ButtonContent{Label: "Button"}, nil
	case BlockTypeForm:
		return FormContent{Method: "POST", Fields: []FormField{}}, nil
	case BlockTypeContainer:
		return ContainerContent{Layout: "block"}, nil
	case BlockTypeVideo:
		return VideoContent{Src: "about:blank"}, nil
	case BlockTypeDivider:
		return DividerContent{Thickness: 1}, nil
	case BlockTypeHTML:
		return HTMLContent{}, nil
	}
	return nil, ErrValidation("unknown block type %q", t)
}

// EncodeContent serialises c; nil encodes as an empty object.
func EncodeContent(c Content) (json.RawMessage, error) {
	if c == nil {
		return json.RawMessage("{}"), nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode %s content: %w", c.Type(), err)
	}
	return data, nil
}

// DecodeContent parses raw into the payload struct for t. Structural
// problems are reported as validation failures.
func DecodeContent(t BlockType, raw []byte) (Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}
	var (
		c   Content
		err error
	)
	switch t {
	case BlockTypeText:
		c, err = decodeAs[TextContent](raw)
	case BlockTypeHeading:
		c, err = decodeAs[HeadingContent](raw)
	case BlockTypeImage:
		c, err = decodeAs[ImageContent](raw)
	case BlockTypeButton:
		c, err = decodeAs[ButtonContent](raw)
	case BlockTypeForm:
		c, err = decodeAs[FormContent](raw)
	case BlockTypeContainer:
		c, err = decodeAs[ContainerContent](raw)
	case BlockTypeVideo:
		c, err = decodeAs[VideoContent](raw)
	case BlockTypeDivider:
		c, err = decodeAs[DividerContent](raw)
	case BlockTypeHTML:
		c, err = decodeAs[HTMLContent](raw)
	default:
		return nil, ErrValidation("unknown block type %q", t)
	}
	if err != nil {
		return nil, WrapError(ErrCodeValidation, err, "decode %s content", t)
	}
	return c, nil
}

func decodeAs[T Content](raw []byte) (Content, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
