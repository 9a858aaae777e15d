package lastfm

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	apiStatusOK     = "ok"
	apiStatusFailed = "failed"
)

// envelope is a parsed response body. Status is "ok" or "failed"; on
// failure Err carries the service error.
type envelope struct {
	Status string
	Err    *Error
	parser envelopeParser
	body   []byte
}

func (e *envelope) ok() bool {
	return e.Status == apiStatusOK
}

// decode unmarshals the payload with the same format the envelope was
// parsed with.
func (e *envelope) decode(v any) error {
	return e.parser.decode(e.body, v)
}

// envelopeParser turns a raw body into an envelope for one response format.
type envelopeParser interface {
	parse(body []byte) (*envelope, error)
	decode(body []byte, v any) error
}

// parserFor selects the parser from the request parameters: the service
// answers in JSON only when format=json was asked for.
func parserFor(params Params) envelopeParser {
	if format, _ := params.Get("format"); format == "json" {
		return jsonParser{}
	}
	return xmlParser{}
}

type xmlParser struct{}

type xmlEnvelope struct {
	XMLName xml.Name `xml:"lfm"`
	Status  string   `xml:"status,attr"`
	Error   *struct {
		Code    int    `xml:"code,attr"`
		Message string `xml:",chardata"`
	} `xml:"error"`
}

func (p xmlParser) parse(body []byte) (*envelope, error) {
	var raw xmlEnvelope
	if err := xml.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse XML response: %w", err)
	}

	env := &envelope{Status: raw.Status, parser: p, body: body}
	if raw.Status != apiStatusOK {
		env.Status = apiStatusFailed
		env.Err = &Error{}
		if raw.Error != nil {
			env.Err.Code = raw.Error.Code
			env.Err.Message = strings.TrimSpace(raw.Error.Message)
		} else {
			env.Err.Message = fmt.Sprintf("unexpected status %q", raw.Status)
		}
	}
	return env, nil
}

func (xmlParser) decode(body []byte, v any) error {
	return xml.Unmarshal(body, v)
}

type jsonParser struct{}

type jsonEnvelope struct {
	Error   *int   `json:"error"`
	Message string `json:"message"`
}

func (p jsonParser) parse(body []byte) (*envelope, error) {
	var raw jsonEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	env := &envelope{Status: apiStatusOK, parser: p, body: body}
	if raw.Error != nil {
		env.Status = apiStatusFailed
		env.Err = &Error{Code: *raw.Error, Message: raw.Message}
	}
	return env, nil
}

func (jsonParser) decode(body []byte, v any) error {
	return json.Unmarshal(body, v)
}

// execute performs one call against the service and returns the parsed
// envelope.
//
// The API key is always added; when signed is true the signature is
// computed over the final parameter set (minus format/callback) and added
// last. Parameters travel in the URL query string for both GET and POST.
//
// Every failure wraps ErrOther. A failed envelope additionally wraps *Error,
// regardless of whether it arrived with a 200 or a 4xx status.
func (c *Client) execute(ctx context.Context, httpMethod string, params Params, signed bool) (*envelope, error) {
	reqParams := params.Clone()
	reqParams.Set("api_key", c.apiKey)
	if signed {
		reqParams.Set("api_sig", Sign(reqParams, c.apiSecret))
	}

	method, _ := reqParams.Get("method")
	parser := parserFor(reqParams)

	req, err := http.NewRequestWithContext(ctx, httpMethod, c.baseURL+"?"+BuildQueryString(reqParams), nil)
	if err != nil {
		return nil, otherError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	c.logDebugf("lastfm: %s %s (%s)", httpMethod, method, c.label)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, otherError(fmt.Errorf("http request failed: %w", err))
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, otherError(fmt.Errorf("failed to read response: %w", err))
	}

	env, parseErr := parser.parse(body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Rejections usually come with a 4xx and a failed envelope; keep the
		// service error when there is one.
		if parseErr == nil && !env.ok() {
			c.logDebugf("lastfm: %s failed with status %d: %v", method, resp.StatusCode, env.Err)
			return nil, otherError(env.Err)
		}
		return nil, otherError(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	if parseErr != nil {
		return nil, otherError(parseErr)
	}

	if !env.ok() {
		c.logDebugf("lastfm: %s failed: %v", method, env.Err)
		return nil, otherError(env.Err)
	}

	c.logDebugf("lastfm: %s succeeded", method)
	return env, nil
}
