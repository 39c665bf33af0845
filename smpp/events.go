package smpp

import (
	"regexp"
	"time"

	"github.com/M2MGateway/go-smpp/pdu"

	"github.com/Tunes567/Quantum-Hub/smpp/coding"
)

// DeliveryEvent is an inbound deliver_sm: a delivery receipt or a mobile
// originated message. Events are informational and never change the result
// of a send.
type DeliveryEvent struct {
	SystemID    string    `json:"system_id"`
	Source      string    `json:"source"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
	DataCoding  string    `json:"data_coding"`
	Receipt     *Receipt  `json:"receipt,omitempty"`
	Concat      *Concat   `json:"concat,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Concat identifies one part of a multipart inbound message.
type Concat struct {
	Reference uint16 `json:"reference"`
	Total     byte   `json:"total"`
	Sequence  byte   `json:"sequence"`
}

// Receipt is the parsed body of an SMSC delivery receipt.
type Receipt struct {
	MessageID string `json:"message_id"`
	Submitted string `json:"submitted"`
	Delivered string `json:"delivered"`
	Stat      string `json:"stat"`
	Err       string `json:"err"`
}

var reReceipt = regexp.MustCompile(`^\s*id:(\S+)\s+(?:sub:\d+\s+dlvrd:\d+\s+)?submit date:(\d+)\s+done date:(\d+)\s+stat:(\w+)\s+err:(\w+)`)

// ParseReceipt returns nil when text is not a delivery receipt.
func ParseReceipt(text string) *Receipt {
	m := reReceipt.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	return &Receipt{MessageID: m[1], Submitted: m[2], Delivered: m[3], Stat: m[4], Err: m[5]}
}

// newDeliveryEvent decodes a deliver_sm. go-smpp has already split the user
// data header off the body when UDHI is set.
func newDeliveryEvent(systemID string, p *pdu.DeliverSM) DeliveryEvent {
	dc := coding.DataCoding(p.Message.DataCoding)
	payload := p.Message.Message

	text, err := coding.Decode(payload, dc)
	if err != nil {
		text = string(payload)
	}

	event := DeliveryEvent{
		SystemID:    systemID,
		Source:      p.SourceAddr.String(),
		Destination: p.DestAddr.String(),
		Text:        text,
		DataCoding:  dc.String(),
		Receipt:     ParseReceipt(text),
		ReceivedAt:  time.Now(),
	}
	event.Concat = concatOf(p.Message.UDHeader)
	return event
}

// concatOf reads an 8-bit (IEI 0x00) or 16-bit (IEI 0x08) reference element.
// Malformed elements are ignored.
func concatOf(h pdu.UserDataHeader) *Concat {
	if data, ok := h[0x00]; ok && len(data) != 3 {
		return nil
	}
	if data, ok := h[0x08]; ok && len(data) != 4 {
		return nil
	}
	header := h.ConcatenatedHeader()
	if header == nil {
		return nil
	}
	return &Concat{Reference: header.Reference, Total: header.TotalParts, Sequence: header.Sequence}
}
