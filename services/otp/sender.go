package otp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	svcerr "github.com/unimart/unimart/internal/errors"
)

// Sender delivers an OTP code to a phone number.
type Sender interface {
	Send(ctx context.Context, phone, code string) error
}

// TwilioSender sends codes through the Twilio messages API.
type TwilioSender struct {
	accountSID string
	authToken  string
	from       string
	httpClient *http.Client
}

// NewTwilioSender creates a Twilio-backed sender.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		httpClient: &http.Client{},
	}
}

// Send dispatches the code as an SMS.
func (t *TwilioSender) Send(ctx context.Context, phone, code string) error {
	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", t.accountSID)

	form := url.Values{}
	form.Set("To", phone)
	form.Set("From", t.from)
	form.Set("Body", fmt.Sprintf("Your UniMart verification code is %s. It expires in 5 minutes.", code))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return svcerr.Unavailable("SMS delivery failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return svcerr.Unavailable(fmt.Sprintf("SMS delivery failed with status %d", resp.StatusCode), nil)
	}
	return nil
}
