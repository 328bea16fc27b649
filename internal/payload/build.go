package payload

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const messagingProduct = "whatsapp"

// TemplateContext carries the template identity shared by every recipient of
// a template broadcast.
type TemplateContext struct {
	Name      string
	Language  string
	MediaType MediaType
	MediaID   string
	FlowID    string
}

// BotContent holds the per-job parameters for interactive ("bot") messages.
// Only the fields relevant to the chosen kind need to be populated.
type BotContent struct {
	Header      string
	Body        string
	Footer      string
	Buttons     []ButtonReply
	Sections    []Section
	CatalogID   string
	ProductID   string
	Latitude    float64
	Longitude   float64
	MediaID     string
}

// BuildTemplate builds a template broadcast message for one recipient. Variables
// become body text parameters; a media id occupies the header slot when the
// media type supports one.
func BuildTemplate(recipient string, tpl TemplateContext, variables []string) (*Message, error) {
	if tpl.Name == "" {
		return nil, fmt.Errorf("payload: template name is required")
	}

	header := Component{Type: "header"}
	body := Component{Type: "body", Parameters: textParameters(variables)}

	if tpl.MediaID != "" && tpl.MediaType.HasHeaderMedia() {
		header.Parameters = append(header.Parameters, mediaParameter(tpl.MediaType, tpl.MediaID))
	}

	return &Message{
		MessagingProduct: messagingProduct,
		To:               recipient,
		Type:             "template",
		Template: &Template{
			Name:       tpl.Name,
			Language:   Language{Code: tpl.Language},
			Components: []Component{header, body},
		},
		Context: &Context{MessageID: contextID(tpl)},
	}, nil
}

// BuildOTP builds a template message carrying a copy-code button. The first
// variable doubles as the code placed on the button, so at least one variable
// is required.
func BuildOTP(recipient string, tpl TemplateContext, variables []string) (*Message, error) {
	if len(variables) == 0 {
		return nil, fmt.Errorf("payload: otp message requires at least one variable for the code button")
	}

	msg, err := BuildTemplate(recipient, tpl, variables)
	if err != nil {
		return nil, err
	}

	button := Component{
		Type:       "button",
		SubType:    "url",
		Index:      "0",
		Parameters: []Parameter{{Type: "text", Text: variables[0]}},
	}
	msg.Template.Components = append(msg.Template.Components, button)
	return msg, nil
}

// BuildFlow builds a template message whose only component is a flow
// trigger button carrying the flow id.
func BuildFlow(recipient string, tpl TemplateContext) (*Message, error) {
	if tpl.Name == "" {
		return nil, fmt.Errorf("payload: template name is required")
	}
	if tpl.FlowID == "" {
		return nil, fmt.Errorf("payload: flow id is required")
	}

	return &Message{
		MessagingProduct: messagingProduct,
		To:               recipient,
		Type:             "template",
		Template: &Template{
			Name:     tpl.Name,
			Language: Language{Code: tpl.Language},
			Components: []Component{{
				Type:       "button",
				SubType:    "flow",
				Index:      "0",
				Parameters: []Parameter{{Type: "payload", Payload: tpl.FlowID}},
			}},
		},
	}, nil
}

// BuildCarousel builds a carousel template where every media id becomes one card
// with an image header, a quick-reply button and a url button.
func BuildCarousel(recipient string, tpl TemplateContext, mediaIDs []string) (*Message, error) {
	if tpl.Name == "" {
		return nil, fmt.Errorf("payload: template name is required")
	}
	if len(mediaIDs) == 0 {
		return nil, fmt.Errorf("payload: carousel requires at least one media id")
	}

	cards := make([]Card, 0, len(mediaIDs))
	for idx, mediaID := range mediaIDs {
		cards = append(cards, Card{
			CardIndex: idx,
			Components: []Component{
				{
					Type:       "header",
					Parameters: []Parameter{{Type: "image", Image: &Media{ID: mediaID}}},
				},
				{
					Type:       "button",
					SubType:    "quick_reply",
					Index:      "0",
					Parameters: []Parameter{{Type: "payload", Payload: "more-item-" + strconv.Itoa(idx)}},
				},
				{
					Type:       "button",
					SubType:    "url",
					Index:      "1",
					Parameters: []Parameter{{Type: "text", Text: "url-item-" + strconv.Itoa(idx)}},
				},
			},
		})
	}

	return &Message{
		MessagingProduct: messagingProduct,
		RecipientType:    "individual",
		To:               recipient,
		Type:             "template",
		Template: &Template{
			Name:     tpl.Name,
			Language: Language{Code: tpl.Language},
			Components: []Component{
				{Type: "body"},
				{Type: "carousel", Cards: cards},
			},
		},
	}, nil
}

// BuildTextProbe builds the plain text message used for phone number validation.
func BuildTextProbe(recipient, text string) *Message {
	return &Message{
		MessagingProduct: messagingProduct,
		To:               recipient,
		Type:             "text",
		Text:             &Text{Body: text},
	}
}

// BuildInteractive builds a non-template message for the supplied interactive
// kind. The switch is total: every Kind in the bot family has exactly one
// branch and anything else is an error.
func BuildInteractive(kind Kind, recipient string, content BotContent) (*Message, error) {
	msg := &Message{
		MessagingProduct: messagingProduct,
		To:               recipient,
	}

	switch kind {
	case KindText:
		msg.Type = "text"
		msg.Text = &Text{Body: content.Body}

	case KindImage:
		msg.Type = "image"
		msg.Image = &Media{ID: content.MediaID, Caption: content.Body}

	case KindDocument:
		filename := content.Header
		if filename == "" {
			filename = "document"
		}
		msg.Type = "document"
		msg.Document = &Document{ID: content.MediaID, Caption: content.Body, Filename: filename}

	case KindVideo:
		msg.Type = "video"
		msg.Video = &Media{ID: content.MediaID, Caption: content.Body}

	case KindLocation:
		msg.Type = "location"
		msg.Location = &Location{
			Latitude:  content.Latitude,
			Longitude: content.Longitude,
			Name:      content.Header,
			Address:   content.Body,
		}

	case KindList:
		msg.Type = "interactive"
		msg.Interactive = &Interactive{
			Type:   "list",
			Header: textHeader(content.Header),
			Body:   &InteractiveText{Text: content.Body},
			Footer: footer(content.Footer),
			Action: &InteractiveAction{Button: "Choose an option", Sections: content.Sections},
		}

	case KindReplyButton:
		buttons := make([]Button, 0, len(content.Buttons))
		for i := range content.Buttons {
			reply := content.Buttons[i]
			buttons = append(buttons, Button{Type: "reply", Reply: &reply})
		}
		msg.Type = "interactive"
		msg.Interactive = &Interactive{
			Type:   "button",
			Body:   &InteractiveText{Text: content.Body},
			Footer: footer(content.Footer),
			Action: &InteractiveAction{Buttons: buttons},
		}

	case KindProduct:
		msg.Type = "interactive"
		msg.Interactive = &Interactive{
			Type:   "product",
			Body:   &InteractiveText{Text: content.Body},
			Footer: footer(content.Footer),
			Action: &InteractiveAction{CatalogID: content.CatalogID, ProductRetailerID: content.ProductID},
		}

	case KindProductList:
		msg.Type = "interactive"
		msg.Interactive = &Interactive{
			Type:   "product_list",
			Header: textHeader(content.Header),
			Body:   &InteractiveText{Text: content.Body},
			Footer: footer(content.Footer),
			Action: &InteractiveAction{CatalogID: content.CatalogID, Sections: content.Sections},
		}

	case KindLocationRequest:
		msg.Type = "interactive"
		msg.Interactive = &Interactive{
			Type:   "location_request_message",
			Body:   &InteractiveText{Text: content.Body},
			Action: &InteractiveAction{Name: "send_location"},
		}

	default:
		return nil, fmt.Errorf("payload: unsupported interactive kind %q", kind)
	}

	return msg, nil
}

// ParseKind maps an inbound kind string to its tagged value. Legacy aliases
// used by the wire protocol are accepted.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "text":
		return KindText, nil
	case "image":
		return KindImage, nil
	case "document":
		return KindDocument, nil
	case "video":
		return KindVideo, nil
	case "location", "location_message":
		return KindLocation, nil
	case "list", "list_message":
		return KindList, nil
	case "button", "reply_button", "reply_button_message":
		return KindReplyButton, nil
	case "product", "single_product_message":
		return KindProduct, nil
	case "product_list", "multi_product_message":
		return KindProductList, nil
	case "location_request", "location_request_message":
		return KindLocationRequest, nil
	default:
		return "", fmt.Errorf("payload: unknown message kind %q", raw)
	}
}

func textParameters(variables []string) []Parameter {
	if len(variables) == 0 {
		return nil
	}
	params := make([]Parameter, 0, len(variables))
	for _, v := range variables {
		params = append(params, Parameter{Type: "text", Text: v})
	}
	return params
}

func mediaParameter(mediaType MediaType, mediaID string) Parameter {
	media := &Media{ID: mediaID}
	switch mediaType {
	case MediaTypeImage:
		return Parameter{Type: "image", Image: media}
	case MediaTypeDocument:
		return Parameter{Type: "document", Document: media}
	case MediaTypeVideo:
		return Parameter{Type: "video", Video: media}
	default:
		return Parameter{Type: "audio", Audio: media}
	}
}

func textHeader(text string) *InteractiveHeader {
	if text == "" {
		return nil
	}
	return &InteractiveHeader{Type: "text", Text: text}
}

func footer(text string) *InteractiveText {
	if text == "" {
		return nil
	}
	return &InteractiveText{Text: text}
}

func contextID(tpl TemplateContext) string {
	info, _ := json.Marshal(map[string]string{
		"template_name": tpl.Name,
		"language":      tpl.Language,
		"media_type":    string(tpl.MediaType),
	})
	return "template_" + tpl.Name + "_" + string(info)
}
