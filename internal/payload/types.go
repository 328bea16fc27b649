package payload

import (
	"fmt"
	"strings"
)

// Kind enumerates every message shape the service can construct. Builders
// switch exhaustively over this type; an unknown kind is a build error, never
// a silently skipped branch.
type Kind string

const (
	KindText            Kind = "text"
	KindImage           Kind = "image"
	KindDocument        Kind = "document"
	KindVideo           Kind = "video"
	KindLocation        Kind = "location"
	KindList            Kind = "list"
	KindReplyButton     Kind = "reply_button"
	KindProduct         Kind = "product"
	KindProductList     Kind = "product_list"
	KindLocationRequest Kind = "location_request"
	KindTemplate        Kind = "template"
	KindOTP             Kind = "otp"
	KindFlow            Kind = "flow"
	KindCarousel        Kind = "carousel"
)

// MediaType identifies the header media attached to a template message.
type MediaType string

const (
	MediaTypeText     MediaType = "TEXT"
	MediaTypeImage    MediaType = "IMAGE"
	MediaTypeDocument MediaType = "DOCUMENT"
	MediaTypeVideo    MediaType = "VIDEO"
	MediaTypeAudio    MediaType = "AUDIO"
)

// ParseMediaType maps the caller supplied media type onto the enum. Matching
// is case insensitive.
func ParseMediaType(raw string) (MediaType, error) {
	switch MediaType(strings.ToUpper(strings.TrimSpace(raw))) {
	case MediaTypeText:
		return MediaTypeText, nil
	case MediaTypeImage:
		return MediaTypeImage, nil
	case MediaTypeDocument:
		return MediaTypeDocument, nil
	case MediaTypeVideo:
		return MediaTypeVideo, nil
	case MediaTypeAudio:
		return MediaTypeAudio, nil
	}
	return "", fmt.Errorf("payload: unknown media type %q", raw)
}

// HasHeaderMedia reports whether the media type occupies a template header
// parameter slot.
func (m MediaType) HasHeaderMedia() bool {
	switch m {
	case MediaTypeImage, MediaTypeDocument, MediaTypeVideo, MediaTypeAudio:
		return true
	}
	return false
}

// Message is the Graph API message envelope. Exactly one of the content
// fields is populated depending on Type.
type Message struct {
	MessagingProduct string       `json:"messaging_product"`
	RecipientType    string       `json:"recipient_type,omitempty"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *Text        `json:"text,omitempty"`
	Image            *Media       `json:"image,omitempty"`
	Document         *Document    `json:"document,omitempty"`
	Video            *Media       `json:"video,omitempty"`
	Location         *Location    `json:"location,omitempty"`
	Interactive      *Interactive `json:"interactive,omitempty"`
	Template         *Template    `json:"template,omitempty"`
	Context          *Context     `json:"context,omitempty"`
}

// Text carries a plain text body.
type Text struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// Media references an uploaded media object by id.
type Media struct {
	ID      string `json:"id"`
	Caption string `json:"caption,omitempty"`
}

// Document references an uploaded document with an optional filename.
type Document struct {
	ID       string `json:"id"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// Location carries coordinates plus display metadata.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// Interactive models the interactive message family (lists, reply buttons,
// product messages, location requests).
type Interactive struct {
	Type   string             `json:"type"`
	Header *InteractiveHeader `json:"header,omitempty"`
	Body   *InteractiveText   `json:"body,omitempty"`
	Footer *InteractiveText   `json:"footer,omitempty"`
	Action *InteractiveAction `json:"action,omitempty"`
}

// InteractiveHeader is the optional header block of an interactive message.
type InteractiveHeader struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// InteractiveText wraps a plain text fragment.
type InteractiveText struct {
	Text string `json:"text"`
}

// InteractiveAction holds the action payload for each interactive subtype.
type InteractiveAction struct {
	Name              string    `json:"name,omitempty"`
	Button            string    `json:"button,omitempty"`
	Buttons           []Button  `json:"buttons,omitempty"`
	Sections          []Section `json:"sections,omitempty"`
	CatalogID         string    `json:"catalog_id,omitempty"`
	ProductRetailerID string    `json:"product_retailer_id,omitempty"`
}

// Button is a single reply button.
type Button struct {
	Type  string       `json:"type"`
	Reply *ButtonReply `json:"reply,omitempty"`
}

// ButtonReply carries the id/title pair shown on a reply button.
type ButtonReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Section groups list rows or products under a title.
type Section struct {
	Title        string       `json:"title,omitempty"`
	Rows         []SectionRow `json:"rows,omitempty"`
	ProductItems []Product    `json:"product_items,omitempty"`
}

// SectionRow is one selectable row inside a list section.
type SectionRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Product references a catalog product by retailer id.
type Product struct {
	ProductRetailerID string `json:"product_retailer_id"`
}

// Template is the template message body.
type Template struct {
	Name       string      `json:"name"`
	Language   Language    `json:"language"`
	Components []Component `json:"components,omitempty"`
}

// Language selects the template translation.
type Language struct {
	Code string `json:"code"`
}

// Component is one template component (header, body, button, carousel).
type Component struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      string      `json:"index,omitempty"`
	Parameters []Parameter `json:"parameters,omitempty"`
	Cards      []Card      `json:"cards,omitempty"`
}

// Parameter is a single template substitution value.
type Parameter struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Payload  string `json:"payload,omitempty"`
	Image    *Media `json:"image,omitempty"`
	Document *Media `json:"document,omitempty"`
	Video    *Media `json:"video,omitempty"`
	Audio    *Media `json:"audio,omitempty"`
}

// Card is one carousel card with its own component list.
type Card struct {
	CardIndex  int         `json:"card_index"`
	Components []Component `json:"components"`
}

// Context attaches correlation metadata to an outbound message.
type Context struct {
	MessageID string `json:"message_id"`
}
