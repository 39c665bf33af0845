package main

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/Tunes567/Quantum-Hub/smpp"
	"github.com/Tunes567/Quantum-Hub/smpp/coding"
)

func newTestSMPPCarrier(t *testing.T, session SMPPSession) *SMPPCarrier {
	t.Helper()
	lm, _ := newTestLogManager(t)
	creds, err := smpp.NewCredentials("127.0.0.1", 2775, "user", "pass")
	require.NoError(t, err)

	h := NewSMPPCarrier(&SMPPConfig{Credentials: creds, SystemTypes: smpp.DefaultSystemTypes}, "SMSHub", nil, lm)
	h.newSession = func(string) SMPPSession { return session }
	return h
}

func TestSMPPCarrierSendSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := NewMockSMPPSession(ctrl)

	gomock.InOrder(
		session.EXPECT().Connect(gomock.Any()).Return(nil),
		session.EXPECT().Bind(gomock.Any()).Return(nil),
		session.EXPECT().Submit(gomock.Any(), "525512345678", gomock.Len(1)).Return("id-1", nil),
		session.EXPECT().Submit(gomock.Any(), "525587654321", gomock.Len(1)).Return("id-2", nil),
		session.EXPECT().Unbind(gomock.Any()),
		session.EXPECT().Close(),
	)

	h := newTestSMPPCarrier(t, session)
	outcome := h.SendSMS(context.Background(), testMessage("525512345678", "525587654321"))

	assert.True(t, outcome.Success)
	assert.Equal(t, GatewaySMPP, outcome.Provider)
	assert.Equal(t, "id-1,id-2", outcome.ProviderMessageID)
}

func TestSMPPCarrierCleansUpOnBindFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := NewMockSMPPSession(ctrl)
	bindErr := &smpp.BindRejectedError{Status: smpp.StatusInvalidPassword, SystemTypes: []string{"", "SMPP", "WWW"}}

	gomock.InOrder(
		session.EXPECT().Connect(gomock.Any()).Return(nil),
		session.EXPECT().Bind(gomock.Any()).Return(bindErr),
		session.EXPECT().Unbind(gomock.Any()),
		session.EXPECT().Close(),
	)

	h := newTestSMPPCarrier(t, session)
	outcome := h.SendSMS(context.Background(), testMessage("525512345678"))

	assert.False(t, outcome.Success)
	assert.ErrorIs(t, outcome.Err, bindErr)
}

func TestSMPPCarrierCleansUpOnSubmitFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := NewMockSMPPSession(ctrl)
	submitErr := &smpp.SubmitFailedError{Status: smpp.StatusThrottled, Part: 2, Total: 3}

	session.EXPECT().Connect(gomock.Any()).Return(nil)
	session.EXPECT().Bind(gomock.Any()).Return(nil)
	session.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Len(3)).Return("", submitErr)
	session.EXPECT().Unbind(gomock.Any())
	session.EXPECT().Close()

	h := newTestSMPPCarrier(t, session)
	msg := testMessage("525512345678")
	msg.Content = strings.Repeat("a", 400)
	outcome := h.SendSMS(context.Background(), msg)

	assert.False(t, outcome.Success)
	var serr *smpp.SubmitFailedError
	require.ErrorAs(t, outcome.Err, &serr)
	assert.Equal(t, 2, serr.Part)
}

func TestSMPPCarrierCleansUpOnConnectFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := NewMockSMPPSession(ctrl)

	session.EXPECT().Connect(gomock.Any()).Return(&smpp.ConnectionError{Addr: "127.0.0.1:2775", Err: errors.New("refused")})
	session.EXPECT().Unbind(gomock.Any())
	session.EXPECT().Close()

	h := newTestSMPPCarrier(t, session)
	outcome := h.SendSMS(context.Background(), testMessage("525512345678"))

	assert.False(t, outcome.Success)
}

func TestSMPPCarrierCleanupSurvivesCancellation(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := NewMockSMPPSession(ctrl)
	ctx, cancel := context.WithCancel(context.Background())

	session.EXPECT().Connect(gomock.Any()).DoAndReturn(func(context.Context) error {
		cancel()
		return context.Canceled
	})
	session.EXPECT().Unbind(gomock.Any()).Do(func(cleanup context.Context) {
		assert.NoError(t, cleanup.Err())
	})
	session.EXPECT().Close()

	h := newTestSMPPCarrier(t, session)
	outcome := h.SendSMS(ctx, testMessage("525512345678"))
	assert.False(t, outcome.Success)
}

func TestSMPPCarrierEncodingErrorOpensNoSession(t *testing.T) {
	ctrl := gomock.NewController(t)
	session := NewMockSMPPSession(ctrl)

	h := newTestSMPPCarrier(t, session)
	msg := testMessage("525512345678")
	msg.Content = string([]byte{0xff, 0xfe})
	outcome := h.SendSMS(context.Background(), msg)

	assert.False(t, outcome.Success)
	var encErr *coding.EncodingError
	assert.ErrorAs(t, outcome.Err, &encErr)
}
