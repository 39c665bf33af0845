package main

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tunes567/Quantum-Hub/secret"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("SMPP_HOST", "smsc.example.com")
	t.Setenv("SMPP_USERNAME", "user")
	t.Setenv("SMPP_PASSWORD", "pass")
	t.Setenv("SMS_HTTP_BASE_URL", "http://gw.example.com/api/")
	t.Setenv("SMS_HTTP_ACCOUNT", " acct ")
	t.Setenv("SMS_HTTP_PASSWORD", "pw")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, GatewaySMPP, cfg.GatewayType)
	assert.Equal(t, "52", cfg.CountryCode)
	assert.Equal(t, 10, cfg.LocalNumberLength)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assertDecimal(t, "0.05", cfg.DefaultRate)
	assert.Equal(t, "postgres", cfg.LedgerBackend)

	require.NotNil(t, cfg.SMPP)
	assert.Equal(t, 2775, cfg.SMPP.Credentials.Port)
	assert.Equal(t, []string{"", "SMPP", "WWW"}, cfg.SMPP.SystemTypes)
	assert.Equal(t, 5*time.Second, cfg.SMPP.ProbeTimeout)
	assert.Equal(t, 10*time.Second, cfg.SMPP.ExchangeTimeout)

	require.NotNil(t, cfg.HTTP)
	assert.Equal(t, "http://gw.example.com/api", cfg.HTTP.BaseURL)
	assert.Equal(t, "acct", cfg.HTTP.Account)
	assert.Equal(t, "GET", cfg.HTTP.Method)
}

func TestLoadConfigHTTPFromHostPort(t *testing.T) {
	t.Setenv("SMS_GATEWAY_TYPE", "HTTP")
	t.Setenv("SMS_HTTP_HOST", "10.0.0.5")
	t.Setenv("SMS_HTTP_PORT", "8080")
	t.Setenv("SMS_HTTP_METHOD", "post")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, GatewayHTTP, cfg.GatewayType)
	assert.Nil(t, cfg.SMPP)
	assert.Equal(t, "http://10.0.0.5:8080", cfg.HTTP.BaseURL)
	assert.Equal(t, "POST", cfg.HTTP.Method)
}

func TestLoadConfigErrors(t *testing.T) {
	t.Setenv("SMPP_HOST", "")
	t.Setenv("SMS_HTTP_BASE_URL", "")
	t.Setenv("SMS_HTTP_HOST", "")
	t.Setenv("DEFAULT_SMS_RATE", "abc")
	t.Setenv("BULK_CONCURRENCY", "many")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no gateway configured")
	assert.Contains(t, err.Error(), "DEFAULT_SMS_RATE")
	assert.Contains(t, err.Error(), "BULK_CONCURRENCY")
}

func TestLoadConfigPrimaryWithoutGateway(t *testing.T) {
	t.Setenv("SMPP_HOST", "")
	t.Setenv("SMS_HTTP_BASE_URL", "http://gw")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMPP_HOST is not set")
}

func TestLoadConfigEncryptedPassword(t *testing.T) {
	setBaseEnv(t)
	enc, err := secret.Encrypt("s3cret", "k")
	require.NoError(t, err)
	t.Setenv("ENCRYPTION_KEY", "k")
	t.Setenv("SMS_HTTP_PASSWORD", enc)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.HTTP.Password)

	t.Setenv("ENCRYPTION_KEY", "")
	_, err = LoadConfig()
	assert.ErrorIs(t, err, secret.ErrNoKey)
}

func TestParseSystemTypes(t *testing.T) {
	assert.Equal(t, []string{"", "SMPP", "WWW"}, parseSystemTypes(",SMPP,WWW"))
	assert.Equal(t, []string{"CMT"}, parseSystemTypes(" CMT "))
}
