package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPCarrier(t *testing.T, method string, handler http.HandlerFunc) *HTTPCarrier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	lm, _ := newTestLogManager(t)
	return NewHTTPCarrier(&HTTPGatewayConfig{
		BaseURL:  srv.URL + "/",
		Account:  "acct",
		Password: "p@ss word",
		Method:   method,
		Timeout:  2 * time.Second,
		MMSTitle: "SMS",
	}, lm)
}

func TestHTTPCarrierSendSuccess(t *testing.T) {
	var rawQuery string
	h := newTestHTTPCarrier(t, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sendsms", r.URL.Path)
		rawQuery = r.URL.RawQuery
		_, _ = io.WriteString(w, `{"status":0,"success":2,"fail":0,"array":[["525512345678","101"],["525587654321",102]]}`)
	})

	msg := testMessage("525512345678", "525587654321")
	msg.Content = "hola mundo+1"
	msg.SenderID = "ACME"
	outcome := h.SendSMS(context.Background(), msg)

	require.True(t, outcome.Success, outcome.Reason())
	assert.Equal(t, GatewayHTTP, outcome.Provider)
	assert.Equal(t, "101,102", outcome.ProviderMessageID)
	assert.Equal(t,
		"account=acct&password=p%40ss%20word&smstype=0&numbers=525512345678,525587654321&content=hola%20mundo%2B1&mmstitle=SMS&sender=ACME",
		rawQuery)
}

func TestHTTPCarrierStatusAsString(t *testing.T) {
	h := newTestHTTPCarrier(t, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"0","success":"1","fail":"0"}`)
	})

	outcome := h.SendSMS(context.Background(), testMessage("525512345678"))
	assert.True(t, outcome.Success)
}

func TestHTTPCarrierProviderRejection(t *testing.T) {
	h := newTestHTTPCarrier(t, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":-2,"desc":"Insufficient balance"}`)
	})

	outcome := h.SendSMS(context.Background(), testMessage("525512345678"))

	assert.False(t, outcome.Success)
	var perr *ProviderError
	require.ErrorAs(t, outcome.Err, &perr)
	assert.Equal(t, -2, perr.Status)
	assert.Equal(t, "Insufficient balance", outcome.Reason())
}

func TestHTTPCarrierMissingStatus(t *testing.T) {
	h := newTestHTTPCarrier(t, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":1}`)
	})

	outcome := h.SendSMS(context.Background(), testMessage("525512345678"))

	assert.False(t, outcome.Success)
	var perr *ProviderError
	assert.ErrorAs(t, outcome.Err, &perr)
}

func TestHTTPCarrierServerError(t *testing.T) {
	h := newTestHTTPCarrier(t, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, "upstream exploded")
	})

	outcome := h.SendSMS(context.Background(), testMessage("525512345678"))

	assert.False(t, outcome.Success)
	var perr *ProviderError
	require.ErrorAs(t, outcome.Err, &perr)
	assert.Equal(t, http.StatusInternalServerError, perr.HTTPStatus)
}

func TestHTTPCarrierUnreachable(t *testing.T) {
	lm, _ := newTestLogManager(t)
	h := NewHTTPCarrier(&HTTPGatewayConfig{BaseURL: "http://127.0.0.1:1", Timeout: time.Second}, lm)

	outcome := h.SendSMS(context.Background(), testMessage("525512345678"))

	assert.False(t, outcome.Success)
	var uerr *GatewayUnreachableError
	assert.ErrorAs(t, outcome.Err, &uerr)
}

func TestHTTPCarrierPostForm(t *testing.T) {
	h := newTestHTTPCarrier(t, http.MethodPost, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.True(t, strings.HasPrefix(string(body), "account=acct&password="))
		assert.Contains(t, string(body), "numbers=525512345678")
		_, _ = io.WriteString(w, `{"status":0}`)
	})

	outcome := h.SendSMS(context.Background(), testMessage("525512345678"))
	assert.True(t, outcome.Success)
}

func TestHTTPCarrierDeliveryReport(t *testing.T) {
	h := newTestHTTPCarrier(t, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getreport", r.URL.Path)
		assert.Equal(t, "101,102", r.URL.Query().Get("ids"))
		_, _ = io.WriteString(w, `{"status":0,"array":[["101","DELIVRD"]]}`)
	})

	resp, err := h.GetDeliveryReport(context.Background(), []string{"101", "102"})
	require.NoError(t, err)
	assert.Contains(t, resp.Raw, "array")

	_, err = h.GetDeliveryReport(context.Background(), nil)
	assert.Error(t, err)
}

func TestHTTPCarrierDailyStatistics(t *testing.T) {
	h := newTestHTTPCarrier(t, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getdailystats", r.URL.Path)
		assert.Equal(t, "20240315", r.URL.Query().Get("date"))
		_, _ = io.WriteString(w, `{"status":0,"success":10,"fail":1}`)
	})

	resp, err := h.GetDailyStatistics(context.Background(), time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, flexInt(10), resp.Success)
}

func TestHTTPCarrierHonorsContext(t *testing.T) {
	h := newTestHTTPCarrier(t, http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	outcome := h.SendSMS(ctx, testMessage("525512345678"))

	assert.False(t, outcome.Success)
	assert.True(t, errors.Is(outcome.Err, context.DeadlineExceeded))
}
