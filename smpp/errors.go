package smpp

import (
	"errors"
	"fmt"
)

// Status is an SMPP command_status value.
type Status uint32

const (
	StatusOK               Status = 0x00000000 // ESME_ROK
	StatusInvalidMsgLength Status = 0x00000001
	StatusInvalidCommandLn Status = 0x00000002
	StatusInvalidCommandID Status = 0x00000003
	StatusInvalidBindState Status = 0x00000004
	StatusAlreadyBound     Status = 0x00000005 // ESME_RALYBND
	StatusSystemError      Status = 0x00000008
	StatusBindFailed       Status = 0x0000000D // ESME_RBINDFAIL
	StatusInvalidPassword  Status = 0x0000000E // ESME_RINVPASWD
	StatusInvalidSystemID  Status = 0x0000000F // ESME_RINVSYSID
	StatusInvalidSource    Status = 0x0000000A
	StatusInvalidDest      Status = 0x0000000B
	StatusMsgQueueFull     Status = 0x00000014
	StatusInvalidSysType   Status = 0x00000053
	StatusThrottled        Status = 0x00000058
	StatusUnknownError     Status = 0x000000FF
)

var statusNames = map[Status]string{
	StatusOK:               "ESME_ROK",
	StatusInvalidMsgLength: "ESME_RINVMSGLEN",
	StatusInvalidCommandLn: "ESME_RINVCMDLEN",
	StatusInvalidCommandID: "ESME_RINVCMDID",
	StatusInvalidBindState: "ESME_RINVBNDSTS",
	StatusAlreadyBound:     "ESME_RALYBND",
	StatusSystemError:      "ESME_RSYSERR",
	StatusBindFailed:       "ESME_RBINDFAIL",
	StatusInvalidPassword:  "ESME_RINVPASWD",
	StatusInvalidSystemID:  "ESME_RINVSYSID",
	StatusInvalidSource:    "ESME_RINVSRCADR",
	StatusInvalidDest:      "ESME_RINVDSTADR",
	StatusMsgQueueFull:     "ESME_RMSGQFUL",
	StatusInvalidSysType:   "ESME_RINVSYSTYP",
	StatusThrottled:        "ESME_RTHROTTLED",
	StatusUnknownError:     "ESME_RUNKNOWNERR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return fmt.Sprintf("%s (0x%08X)", name, uint32(s))
	}
	return fmt.Sprintf("0x%08X", uint32(s))
}

var (
	ErrNotConnected = errors.New("smpp: session is not connected")
	ErrNotBound     = errors.New("smpp: session is not bound")
	ErrNoResponse   = errors.New("smpp: empty response")
)

// ConnectionError means the SMSC could not be reached or the transport broke.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("smpp: connection to %s failed: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// BindRejectedError carries the status of the last bind attempt.
type BindRejectedError struct {
	Status      Status
	SystemTypes []string
}

func (e *BindRejectedError) Error() string {
	return fmt.Sprintf("smpp: bind rejected after %d attempt(s): %s", len(e.SystemTypes), e.Status)
}

// SubmitFailedError reports the part that was rejected. Err is set when the
// exchange failed before a status came back.
type SubmitFailedError struct {
	Status Status
	Part   int
	Total  int
	Err    error
}

func (e *SubmitFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("smpp: submit of part %d/%d failed: %v", e.Part, e.Total, e.Err)
	}
	return fmt.Sprintf("smpp: submit of part %d/%d rejected: %s", e.Part, e.Total, e.Status)
}

func (e *SubmitFailedError) Unwrap() error { return e.Err }
