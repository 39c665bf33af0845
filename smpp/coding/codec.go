package coding

import (
	"fmt"
	"hash/fnv"
	"strings"
	"unicode/utf8"

	"github.com/M2MGateway/go-smpp/coding/gsm7bit"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// DataCoding is the SMPP data_coding octet.
type DataCoding byte

const (
	GSM7   DataCoding = 0x00
	ASCII  DataCoding = 0x01
	Latin1 DataCoding = 0x03
	UCS2   DataCoding = 0x08
)

func (c DataCoding) String() string {
	switch c {
	case GSM7:
		return "gsm7"
	case ASCII:
		return "ascii"
	case Latin1:
		return "latin1"
	case UCS2:
		return "ucs2"
	}
	return fmt.Sprintf("0x%02X", byte(c))
}

const (
	// udhLength is the 8-bit reference concatenation header including its UDHL octet.
	udhLength = 6
	maxParts  = 255

	// A 6-octet UDH is 48 bits; packed septets then start on the next septet
	// boundary, one fill bit later.
	gsm7FillSeptets = 7
	gsm7FillOctets  = 6
)

// Concat is the 8-bit reference concatenation element (IEI 0x00).
type Concat struct {
	Reference byte
	Total     byte
	Sequence  byte
}

// Element returns the information element data: reference, total, sequence.
func (c Concat) Element() []byte {
	return []byte{c.Reference, c.Total, c.Sequence}
}

// EncodedPart is one submit_sm worth of short_message data. Payload never
// contains the user data header; Concat is set on every part of a multipart
// message and the transport writes the header from it.
type EncodedPart struct {
	Payload    []byte
	DataCoding DataCoding
	Concat     *Concat
}

// UDHI reports whether the part needs the esm_class UDH indicator.
func (p EncodedPart) UDHI() bool { return p.Concat != nil }

// EncodingError means content cannot be turned into SMS parts at all. Sending the
// same content through another gateway would fail the same way.
type EncodingError struct {
	Reason string
	Err    error
}

func (e *EncodingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encoding error: %s: %v", e.Reason, e.Err)
	}
	return "encoding error: " + e.Reason
}

func (e *EncodingError) Unwrap() error { return e.Err }

// BestCoding picks GSM7 when the content fits the default alphabet, otherwise UCS-2.
func BestCoding(content string) DataCoding {
	if IsGSM7(content) {
		return GSM7
	}
	return UCS2
}

// Encode converts content into ordered SMS parts. The same content always yields
// the same parts. Empty content yields one empty part.
func Encode(content string) ([]EncodedPart, error) {
	if !utf8.ValidString(content) {
		return nil, &EncodingError{Reason: "content is not valid UTF-8"}
	}

	dc := BestCoding(content)
	segments := SplitSMS(content, dc)
	if len(segments) > maxParts {
		return nil, &EncodingError{Reason: fmt.Sprintf("content needs %d parts, limit is %d", len(segments), maxParts)}
	}

	if len(segments) == 1 {
		payload, err := encodeSegment(segments[0], dc, false)
		if err != nil {
			return nil, err
		}
		return []EncodedPart{{Payload: payload, DataCoding: dc}}, nil
	}

	ref := reference(content)
	parts := make([]EncodedPart, 0, len(segments))
	for i, segment := range segments {
		body, err := encodeSegment(segment, dc, true)
		if err != nil {
			return nil, err
		}
		parts = append(parts, EncodedPart{
			Payload:    body,
			DataCoding: dc,
			Concat:     &Concat{Reference: ref, Total: byte(len(segments)), Sequence: byte(i + 1)},
		})
	}
	return parts, nil
}

// Info reports the coding and part count Encode would produce.
func Info(content string) (DataCoding, int) {
	dc := BestCoding(content)
	return dc, len(SplitSMS(content, dc))
}

func encodeSegment(segment string, dc DataCoding, withUDH bool) ([]byte, error) {
	if dc == GSM7 {
		payload, err := packGSM7(segment, withUDH)
		if err != nil {
			return nil, &EncodingError{Reason: "gsm7", Err: err}
		}
		return payload, nil
	}
	payload, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(segment))
	if err != nil {
		return nil, &EncodingError{Reason: "ucs2", Err: err}
	}
	return payload, nil
}

// packGSM7 packs segment 7 bits per character. After a UDH the septets are
// aligned with a fill bit, which is what encoding behind seven zero septets and
// dropping the header-sized prefix produces.
func packGSM7(segment string, withUDH bool) ([]byte, error) {
	if segment == "" {
		return []byte{}, nil
	}
	if !withUDH {
		return gsm7bit.Packed.NewEncoder().Bytes([]byte(segment))
	}
	packed, err := gsm7bit.Packed.NewEncoder().Bytes([]byte(strings.Repeat("@", gsm7FillSeptets) + segment))
	if err != nil {
		return nil, err
	}
	return packed[gsm7FillOctets:], nil
}

// reference derives the concatenation reference from the content.
func reference(content string) byte {
	h := fnv.New32a()
	_, _ = h.Write([]byte(content))
	return byte(h.Sum32())
}

// Decode converts an inbound short_message body to text. GSM7 bodies arrive
// unpacked, one septet per octet.
func Decode(payload []byte, dc DataCoding) (string, error) {
	switch dc {
	case GSM7:
		return decodeGSM7(payload)
	case UCS2:
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(payload)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case Latin1:
		out, err := charmap.ISO8859_1.NewDecoder().Bytes(payload)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
	if !utf8.Valid(payload) {
		return "", fmt.Errorf("payload with data coding %s is not valid text", dc)
	}
	return string(payload), nil
}
