package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ProviderError is a request the HTTP gateway answered but did not accept.
type ProviderError struct {
	Status     int
	Desc       string
	HTTPStatus int
}

func (e *ProviderError) Error() string {
	if e.Desc != "" {
		return e.Desc
	}
	return fmt.Sprintf("provider rejected request (status %d, http %d)", e.Status, e.HTTPStatus)
}

// GatewayUnreachableError wraps a transport failure talking to the HTTP gateway.
type GatewayUnreachableError struct {
	Endpoint string
	Err      error
}

func (e *GatewayUnreachableError) Error() string {
	return fmt.Sprintf("http gateway %s unreachable: %v", e.Endpoint, e.Err)
}

func (e *GatewayUnreachableError) Unwrap() error { return e.Err }

// ProviderResponse is the JSON body every gateway endpoint returns.
type ProviderResponse struct {
	Status  *flexInt            `json:"status"`
	Desc    string              `json:"desc"`
	Success flexInt             `json:"success"`
	Fail    flexInt             `json:"fail"`
	Array   [][]json.RawMessage `json:"array"`
	Raw     map[string]any      `json:"-"`
}

// MessageIDs collects the ids from the [number, id] pairs of a sendsms answer.
func (r *ProviderResponse) MessageIDs() []string {
	var ids []string
	for _, entry := range r.Array {
		if len(entry) < 2 {
			continue
		}
		if id := strings.Trim(string(entry[1]), `" `); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// flexInt accepts both 0 and "0".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %s", b)
	}
	*f = flexInt(n)
	return nil
}

type queryParam struct {
	key   string
	value string
	// raw values are already encoded.
	raw bool
}

// HTTPCarrier talks to the secondary gateway's sendsms/getreport/getdailystats API.
type HTTPCarrier struct {
	BaseCarrierHandler
	baseURL  string
	account  string
	password string
	method   string
	mmsTitle string
	client   *http.Client
	lm       *LogManager
}

func NewHTTPCarrier(cfg *HTTPGatewayConfig, lm *LogManager) *HTTPCarrier {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}
	return &HTTPCarrier{
		BaseCarrierHandler: BaseCarrierHandler{name: GatewayHTTP},
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		account:            cfg.Account,
		password:           cfg.Password,
		method:             method,
		mmsTitle:           cfg.MMSTitle,
		client:             &http.Client{Timeout: cfg.Timeout},
		lm:                 lm,
	}
}

func (h *HTTPCarrier) SendSMS(ctx context.Context, msg OutboundMessage) DispatchOutcome {
	params := h.auth(
		queryParam{key: "smstype", value: "0"},
		queryParam{key: "numbers", value: joinNumbers(msg.Numbers), raw: true},
		queryParam{key: "content", value: msg.Content},
		queryParam{key: "mmstitle", value: h.mmsTitle},
	)
	if msg.SenderID != "" {
		params = append(params, queryParam{key: "sender", value: msg.SenderID})
	}
	if !msg.ScheduledAt.IsZero() {
		params = append(params, queryParam{key: "sendtime", value: msg.ScheduledAt.Format("2006-01-02 15:04:05")})
	}

	resp, err := h.call(ctx, "sendsms", params)
	if err != nil {
		h.lm.SendLog(h.lm.BuildLog(
			"Carrier.HTTP",
			"sendsms failed",
			logrus.WarnLevel,
			map[string]interface{}{
				"logID":   msg.LogID,
				"numbers": len(msg.Numbers),
			}, err,
		))
		return failed(GatewayHTTP, err)
	}

	h.lm.SendLog(h.lm.BuildLog(
		"Carrier.HTTP",
		"Message accepted",
		logrus.InfoLevel,
		map[string]interface{}{
			"logID":   msg.LogID,
			"numbers": len(msg.Numbers),
			"success": int(resp.Success),
			"fail":    int(resp.Fail),
		},
	))
	return succeeded(GatewayHTTP, strings.Join(resp.MessageIDs(), ","))
}

// GetDeliveryReport queries delivery status for provider message ids.
func (h *HTTPCarrier) GetDeliveryReport(ctx context.Context, ids []string) (*ProviderResponse, error) {
	if len(ids) == 0 {
		return nil, errors.New("at least one message id is required")
	}
	return h.call(ctx, "getreport", h.auth(queryParam{key: "ids", value: strings.Join(ids, ",")}))
}

// GetDailyStatistics queries the provider's totals for one day.
func (h *HTTPCarrier) GetDailyStatistics(ctx context.Context, date time.Time) (*ProviderResponse, error) {
	return h.call(ctx, "getdailystats", h.auth(queryParam{key: "date", value: date.Format("20060102")}))
}

func (h *HTTPCarrier) auth(params ...queryParam) []queryParam {
	return append([]queryParam{{key: "account", value: h.account}, {key: "password", value: h.password}}, params...)
}

func (h *HTTPCarrier) call(ctx context.Context, endpoint string, params []queryParam) (*ProviderResponse, error) {
	query := encodeQuery(params)
	target := h.baseURL + "/" + endpoint

	var req *http.Request
	var err error
	if h.method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBufferString(query))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+query, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &GatewayUnreachableError{Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &GatewayUnreachableError{Endpoint: endpoint, Err: err}
	}

	var result ProviderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ProviderError{
			Status:     -1,
			Desc:       fmt.Sprintf("unreadable %s response (http %d): %s", endpoint, resp.StatusCode, truncate(string(body), 200)),
			HTTPStatus: resp.StatusCode,
		}
	}
	_ = json.Unmarshal(body, &result.Raw)

	if result.Status == nil {
		return nil, &ProviderError{Status: -1, Desc: endpoint + " response has no status", HTTPStatus: resp.StatusCode}
	}
	if *result.Status != 0 {
		return nil, &ProviderError{Status: int(*result.Status), Desc: result.Desc, HTTPStatus: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Status: 0, Desc: fmt.Sprintf("%s returned http %d", endpoint, resp.StatusCode), HTTPStatus: resp.StatusCode}
	}
	return &result, nil
}

// encodeQuery keeps parameter order and percent-encodes spaces as %20.
func encodeQuery(params []queryParam) string {
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		if p.raw {
			pairs = append(pairs, p.key+"="+p.value)
			continue
		}
		pairs = append(pairs, p.key+"="+percentEncode(p.value))
	}
	return strings.Join(pairs, "&")
}

func percentEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// joinNumbers escapes each number but keeps the separating commas literal.
func joinNumbers(numbers []string) string {
	escaped := make([]string, len(numbers))
	for i, n := range numbers {
		escaped[i] = percentEncode(n)
	}
	return strings.Join(escaped, ",")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
