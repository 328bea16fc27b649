package payload_test

import (
	"strings"
	"testing"

	"github.com/wtsdeal/broadcast-service/internal/payload"
)

func TestBuildTemplateWithMediaHeader(t *testing.T) {
	msg, err := payload.BuildTemplate("919000000001", payload.TemplateContext{
		Name:      "promo",
		Language:  "en_US",
		MediaType: payload.MediaTypeImage,
		MediaID:   "media-9",
	}, []string{"Alice", "42"})
	if err != nil {
		t.Fatalf("BuildTemplate: %v", err)
	}

	if msg.Type != "template" || msg.To != "919000000001" {
		t.Fatalf("unexpected envelope: %+v", msg)
	}
	if msg.Template.Name != "promo" || msg.Template.Language.Code != "en_US" {
		t.Fatalf("unexpected template identity: %+v", msg.Template)
	}

	header := msg.Template.Components[0]
	if header.Type != "header" || len(header.Parameters) != 1 {
		t.Fatalf("expected one header media parameter, got %+v", header)
	}
	if header.Parameters[0].Type != "image" || header.Parameters[0].Image.ID != "media-9" {
		t.Fatalf("unexpected header parameter: %+v", header.Parameters[0])
	}

	body := msg.Template.Components[1]
	if body.Type != "body" || len(body.Parameters) != 2 {
		t.Fatalf("expected two body parameters, got %+v", body)
	}
	if body.Parameters[0].Text != "Alice" || body.Parameters[1].Text != "42" {
		t.Fatalf("unexpected body parameters: %+v", body.Parameters)
	}
}

func TestBuildTemplateTextHasEmptyHeader(t *testing.T) {
	msg, err := payload.BuildTemplate("r", payload.TemplateContext{
		Name:      "plain",
		Language:  "en",
		MediaType: payload.MediaTypeText,
		MediaID:   "ignored",
	}, nil)
	if err != nil {
		t.Fatalf("BuildTemplate: %v", err)
	}
	if len(msg.Template.Components[0].Parameters) != 0 {
		t.Fatal("text templates must not carry header media parameters")
	}
}

func TestBuildTemplateRequiresName(t *testing.T) {
	if _, err := payload.BuildTemplate("r", payload.TemplateContext{}, nil); err == nil {
		t.Fatal("expected error for missing template name")
	}
}

func TestBuildOTPAddsCodeButton(t *testing.T) {
	msg, err := payload.BuildOTP("r", payload.TemplateContext{Name: "otp", Language: "en"}, []string{"482913"})
	if err != nil {
		t.Fatalf("BuildOTP: %v", err)
	}

	last := msg.Template.Components[len(msg.Template.Components)-1]
	if last.Type != "button" || last.SubType != "url" || last.Index != "0" {
		t.Fatalf("unexpected button component: %+v", last)
	}
	if last.Parameters[0].Text != "482913" {
		t.Fatalf("button does not carry the code: %+v", last.Parameters)
	}
}

func TestBuildOTPRequiresVariable(t *testing.T) {
	if _, err := payload.BuildOTP("r", payload.TemplateContext{Name: "otp", Language: "en"}, nil); err == nil {
		t.Fatal("expected error when no code variable is supplied")
	}
}

func TestBuildFlowCarriesFlowID(t *testing.T) {
	msg, err := payload.BuildFlow("r", payload.TemplateContext{Name: "signup", Language: "en", FlowID: "flow-77"})
	if err != nil {
		t.Fatalf("BuildFlow: %v", err)
	}

	comp := msg.Template.Components[0]
	if comp.SubType != "flow" || comp.Parameters[0].Payload != "flow-77" {
		t.Fatalf("unexpected flow component: %+v", comp)
	}
}

func TestBuildFlowRequiresFlowID(t *testing.T) {
	if _, err := payload.BuildFlow("r", payload.TemplateContext{Name: "signup", Language: "en"}); err == nil {
		t.Fatal("expected error for missing flow id")
	}
}

func TestBuildCarouselOneCardPerMedia(t *testing.T) {
	msg, err := payload.BuildCarousel("r", payload.TemplateContext{Name: "cat", Language: "en"},
		[]string{"m0", "m1", "m2"})
	if err != nil {
		t.Fatalf("BuildCarousel: %v", err)
	}

	var carousel *payload.Component
	for i := range msg.Template.Components {
		if msg.Template.Components[i].Type == "carousel" {
			carousel = &msg.Template.Components[i]
		}
	}
	if carousel == nil {
		t.Fatal("missing carousel component")
	}
	if len(carousel.Cards) != 3 {
		t.Fatalf("expected 3 cards, got %d", len(carousel.Cards))
	}
	for i, card := range carousel.Cards {
		if card.CardIndex != i {
			t.Fatalf("card %d has index %d", i, card.CardIndex)
		}
		header := card.Components[0]
		if header.Parameters[0].Image.ID != []string{"m0", "m1", "m2"}[i] {
			t.Fatalf("card %d media mismatch: %+v", i, header.Parameters[0])
		}
	}
}

func TestBuildInteractiveShapes(t *testing.T) {
	content := payload.BotContent{
		Header:    "Pick one",
		Body:      "body text",
		Footer:    "foot",
		Buttons:   []payload.ButtonReply{{ID: "b1", Title: "Yes"}},
		Sections:  []payload.Section{{Title: "s", Rows: []payload.SectionRow{{ID: "r1", Title: "Row"}}}},
		CatalogID: "cat-1",
		ProductID: "prod-1",
		Latitude:  12.97,
		Longitude: 77.59,
		MediaID:   "media-1",
	}

	cases := []struct {
		kind     payload.Kind
		wantType string
	}{
		{payload.KindText, "text"},
		{payload.KindImage, "image"},
		{payload.KindDocument, "document"},
		{payload.KindVideo, "video"},
		{payload.KindLocation, "location"},
		{payload.KindList, "interactive"},
		{payload.KindReplyButton, "interactive"},
		{payload.KindProduct, "interactive"},
		{payload.KindProductList, "interactive"},
		{payload.KindLocationRequest, "interactive"},
	}

	for _, tc := range cases {
		msg, err := payload.BuildInteractive(tc.kind, "r", content)
		if err != nil {
			t.Fatalf("BuildInteractive(%s): %v", tc.kind, err)
		}
		if msg.Type != tc.wantType {
			t.Fatalf("kind %s: wire type %q, want %q", tc.kind, msg.Type, tc.wantType)
		}
	}
}

func TestBuildInteractiveListAction(t *testing.T) {
	msg, err := payload.BuildInteractive(payload.KindList, "r", payload.BotContent{
		Header:   "menu",
		Body:     "choose",
		Sections: []payload.Section{{Title: "a", Rows: []payload.SectionRow{{ID: "1", Title: "one"}}}},
	})
	if err != nil {
		t.Fatalf("BuildInteractive: %v", err)
	}
	if msg.Interactive.Type != "list" {
		t.Fatalf("interactive type = %q", msg.Interactive.Type)
	}
	if msg.Interactive.Action.Button == "" || len(msg.Interactive.Action.Sections) != 1 {
		t.Fatalf("unexpected list action: %+v", msg.Interactive.Action)
	}
}

func TestBuildInteractiveRejectsUnknownKind(t *testing.T) {
	if _, err := payload.BuildInteractive("telegram", "r", payload.BotContent{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestParseKindAliases(t *testing.T) {
	cases := map[string]payload.Kind{
		"text":                     payload.KindText,
		"IMAGE":                    payload.KindImage,
		"list_message":             payload.KindList,
		"reply_button_message":     payload.KindReplyButton,
		"single_product_message":   payload.KindProduct,
		"multi_product_message":    payload.KindProductList,
		"location_message":         payload.KindLocation,
		"location_request_message": payload.KindLocationRequest,
	}
	for raw, want := range cases {
		got, err := payload.ParseKind(raw)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %q, want %q", raw, got, want)
		}
	}

	if _, err := payload.ParseKind("carrier_pigeon"); err == nil {
		t.Fatal("expected error for unknown kind string")
	}
	if _, err := payload.ParseKind("carrier_pigeon"); err != nil && !strings.Contains(err.Error(), "carrier_pigeon") {
		t.Fatal("error should name the offending kind")
	}
}

func TestParseMediaType(t *testing.T) {
	got, err := payload.ParseMediaType(" image ")
	if err != nil {
		t.Fatalf("ParseMediaType: %v", err)
	}
	if got != payload.MediaTypeImage {
		t.Fatalf("ParseMediaType = %q", got)
	}
	if _, err := payload.ParseMediaType("hologram"); err == nil {
		t.Fatal("expected error for unknown media type")
	}
}
