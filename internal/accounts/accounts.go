package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// UserData is the credential and balance snapshot returned by the account
// validation service.
type UserData struct {
	UserID              string `json:"user_id"`
	APIToken            string `json:"api_token"`
	IsActive            bool   `json:"is_active"`
	WABAID              string `json:"whatsapp_business_account_id"`
	PhoneNumberID       string `json:"phone_number_id"`
	AppID               string `json:"register_app__app_id"`
	AppToken            string `json:"register_app__token"`
	Coins               int    `json:"coins"`
	MarketingCoins      int    `json:"marketing_coins"`
	AuthenticationCoins int    `json:"authentication_coins"`
}

// Rejection is a structured validation failure carrying the HTTP status code
// surfaced to the inbound caller. Dispatch never starts once a Rejection is
// raised.
type Rejection struct {
	StatusCode int
	Detail     string
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return fmt.Sprintf("account validation rejected (%d): %s", r.StatusCode, r.Detail)
}

// AsRejection unwraps a Rejection from an error chain.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Lookup resolves credentials to a user record. Both the remote client and
// the local store satisfy this interface.
type Lookup interface {
	FetchUser(ctx context.Context, userID, apiToken string) (*UserData, error)
}

// ValidateCoins rejects a job whose recipient count exceeds the available
// coin balance.
func ValidateCoins(available, required int) error {
	if required > available {
		return &Rejection{
			StatusCode: http.StatusPaymentRequired,
			Detail: fmt.Sprintf("insufficient coins: available %d, required %d; please recharge your account",
				available, required),
		}
	}
	return nil
}

// HTTPClient abstracts the http.Client Do method for easier testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Option customises the accounts client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used to reach the account service.
func WithHTTPClient(client HTTPClient) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// Client talks to the remote account validation service.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	logger     zerolog.Logger
}

// NewClient constructs an accounts Client.
func NewClient(baseURL string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("accounts client: base URL is required")
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// FetchUser validates credentials against the account service. Unknown
// credentials yield a 401 rejection, inactive accounts a 403 rejection.
func (c *Client) FetchUser(ctx context.Context, userID, apiToken string) (*UserData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/users/", nil)
	if err != nil {
		return nil, fmt.Errorf("accounts client: new request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("accounts client: user lookup call failed")
		return nil, fmt.Errorf("accounts client: user lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Rejection{
			StatusCode: resp.StatusCode,
			Detail:     "failed to connect to user validation service",
		}
	}

	var users []UserData
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&users); err != nil {
		return nil, fmt.Errorf("accounts client: decode users: %w", err)
	}

	for i := range users {
		u := users[i]
		if u.UserID != userID || u.APIToken != apiToken {
			continue
		}
		if !u.IsActive {
			return nil, &Rejection{
				StatusCode: http.StatusForbidden,
				Detail:     "user account is not active; please contact support",
			}
		}
		return &u, nil
	}

	return nil, &Rejection{
		StatusCode: http.StatusUnauthorized,
		Detail:     "failed to validate user credentials; check user_id and api_token",
	}
}

// BalanceReport is the reservation request posted once a job is accepted.
type BalanceReport struct {
	UserID       string   `json:"user_id"`
	APIToken     string   `json:"api_token"`
	Coins        int      `json:"coins"`
	PhoneNumbers string   `json:"phone_numbers"`
	AllContacts  []string `json:"all_contact"`
	TemplateName string   `json:"template_name"`
	Category     string   `json:"category"`
}

// UpdateBalanceReport reserves coins for the job and returns the service
// assigned report id.
func (c *Client) UpdateBalanceReport(ctx context.Context, report BalanceReport) (string, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("accounts client: marshal balance report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/update-balance-report/", strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("accounts client: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("accounts client: balance report: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		c.logger.Error().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("accounts client: balance report rejected")
		return "", &Rejection{StatusCode: resp.StatusCode, Detail: "failed to update balance and report"}
	}

	var parsed struct {
		ReportID string `json:"report_id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("accounts client: decode balance report response: %w", err)
	}
	return parsed.ReportID, nil
}
