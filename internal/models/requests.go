package models

// Requests accepted by the inbound HTTP surface. Field names follow the
// public API contract; validation tags are enforced by the server before a
// job is admitted.

// CredentialsFields are common to every job submission.
type CredentialsFields struct {
	UserID   string `json:"user_id" validate:"required"`
	APIToken string `json:"api_token" validate:"required"`
}

// SendMessagesRequest submits a template broadcast.
type SendMessagesRequest struct {
	CredentialsFields
	UniqueID     string     `json:"unique_id"`
	TemplateName string     `json:"template_name" validate:"required"`
	Language     string     `json:"language" validate:"required"`
	MediaType    string     `json:"media_type" validate:"required,oneof=TEXT IMAGE DOCUMENT VIDEO AUDIO"`
	MediaID      string     `json:"media_id"`
	Contacts     []string   `json:"contacts" validate:"required,min=1,dive,required"`
	Variables    []string   `json:"variables"`
	CSVVariables [][]string `json:"csv_variables"`
}

// SendOTPRequest submits an authentication template broadcast. The first
// variable is the code copied into the template's url button.
type SendOTPRequest struct {
	CredentialsFields
	UniqueID     string   `json:"unique_id"`
	TemplateName string   `json:"template_name" validate:"required"`
	Language     string   `json:"language" validate:"required"`
	Contacts     []string `json:"contacts" validate:"required,min=1,dive,required"`
	Variables    []string `json:"variables" validate:"required,min=1"`
}

// SendFlowRequest submits a flow-triggering template broadcast.
type SendFlowRequest struct {
	CredentialsFields
	UniqueID     string   `json:"unique_id"`
	TemplateName string   `json:"template_name" validate:"required"`
	FlowID       string   `json:"flow_id" validate:"required"`
	Language     string   `json:"language" validate:"required"`
	Contacts     []string `json:"contacts" validate:"required,min=1,dive,required"`
}

// SendCarouselRequest submits a carousel broadcast. One media id per card.
type SendCarouselRequest struct {
	CredentialsFields
	UniqueID     string   `json:"unique_id"`
	TemplateName string   `json:"template_name" validate:"required"`
	Contacts     []string `json:"contacts" validate:"required,min=1,dive,required"`
	MediaIDs     []string `json:"media_ids" validate:"required,min=1,dive,required"`
}

// BotButton is one quick-reply button on an interactive message.
type BotButton struct {
	ID    string `json:"id" validate:"required"`
	Title string `json:"title" validate:"required"`
}

// BotSectionRow is one selectable row inside a list section.
type BotSectionRow struct {
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// BotSection groups rows or products in a list message.
type BotSection struct {
	Title      string          `json:"title"`
	Rows       []BotSectionRow `json:"rows" validate:"dive"`
	ProductIDs []string        `json:"product_ids"`
}

// SendBotMessageRequest submits an interactive broadcast. MessageType picks
// the interactive shape.
type SendBotMessageRequest struct {
	CredentialsFields
	UniqueID    string       `json:"unique_id"`
	MessageType string       `json:"message_type" validate:"required"`
	Header      string       `json:"header"`
	Body        string       `json:"body"`
	Footer      string       `json:"footer"`
	Buttons     []BotButton  `json:"buttons" validate:"dive"`
	Sections    []BotSection `json:"sections" validate:"dive"`
	CatalogID   string       `json:"catalog_id"`
	ProductID   string       `json:"product_id"`
	Latitude    string       `json:"latitude"`
	Longitude   string       `json:"longitude"`
	MediaID     string       `json:"media_id"`
	Contacts    []string     `json:"contacts" validate:"required,min=1,dive,required"`
}

// ValidateNumbersRequest probes each contact with a plain text message.
type ValidateNumbersRequest struct {
	CredentialsFields
	UniqueID    string   `json:"unique_id"`
	MessageText string   `json:"message_text"`
	Contacts    []string `json:"contacts" validate:"required,min=1,dive,required"`
}
