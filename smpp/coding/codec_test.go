package coding

import (
	"errors"
	"strings"
	"testing"

	"github.com/M2MGateway/go-smpp/coding/gsm7bit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unpackParts reassembles GSM7 multipart bodies the way a handset does: each
// body is prefixed with header-sized filler, unpacked, and the filler dropped.
func unpackParts(t *testing.T, parts []EncodedPart) string {
	t.Helper()
	var out strings.Builder
	for _, part := range parts {
		require.NotNil(t, part.Concat)
		framed := append(make([]byte, gsm7FillOctets), part.Payload...)
		text, err := gsm7bit.Packed.NewDecoder().Bytes(framed)
		require.NoError(t, err)
		out.WriteString(strings.TrimPrefix(string(text), strings.Repeat("@", gsm7FillSeptets)))
	}
	return out.String()
}

func TestEncodeSingleGSM7(t *testing.T) {
	parts, err := Encode("Hello world")
	require.NoError(t, err)
	require.Len(t, parts, 1)

	assert.Equal(t, GSM7, parts[0].DataCoding)
	assert.False(t, parts[0].UDHI())
	// 11 septets pack into 10 octets
	assert.Len(t, parts[0].Payload, 10)

	text, err := gsm7bit.Packed.NewDecoder().Bytes(parts[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", string(text))
}

func TestEncodeEmptyContentYieldsOnePart(t *testing.T) {
	parts, err := Encode("")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Empty(t, parts[0].Payload)
	assert.False(t, parts[0].UDHI())
}

func TestEncodeGSM7Boundary(t *testing.T) {
	parts, err := Encode(strings.Repeat("a", 160))
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Len(t, parts[0].Payload, 140)

	content := strings.Repeat("a", 161)
	parts, err = Encode(content)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	for i, part := range parts {
		require.True(t, part.UDHI())
		assert.Equal(t, byte(2), part.Concat.Total)
		assert.Equal(t, byte(i+1), part.Concat.Sequence)
	}
	assert.Equal(t, parts[0].Concat.Reference, parts[1].Concat.Reference, "parts share a reference")
	// 153 septets after a 6-octet header fill the 140-octet short message exactly
	assert.Len(t, parts[0].Payload, 140-udhLength)
	assert.Equal(t, byte(0), parts[0].Payload[0]&0x01, "fill bit")
	assert.Equal(t, content, unpackParts(t, parts))
}

func TestEncodePayloadsFitShortMessage(t *testing.T) {
	for _, content := range []string{
		strings.Repeat("a", 150),
		strings.Repeat("b", 300),
		strings.Repeat("{", 90),
		strings.Repeat("Ж", 100),
	} {
		parts, err := Encode(content)
		require.NoError(t, err)
		for _, part := range parts {
			size := len(part.Payload)
			if part.UDHI() {
				size += udhLength
			}
			assert.LessOrEqual(t, size, 140)
		}
	}
}

func TestEncodeKeepsEscapePairsTogether(t *testing.T) {
	// 'a' followed by euro signs puts an escape pair across the 153 septet boundary.
	content := "a" + strings.Repeat("€", 100)
	parts, err := Encode(content)
	require.NoError(t, err)
	require.Len(t, parts, 2)

	segments := SplitSMS(content, GSM7)
	require.Len(t, segments, 2)
	for _, segment := range segments {
		assert.LessOrEqual(t, gsm7Splitter.Len(segment), gsm7MultipartLimit)
	}
	assert.Equal(t, content, unpackParts(t, parts))
}

func TestEncodeUCS2(t *testing.T) {
	parts, err := Encode("Привет")
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, UCS2, parts[0].DataCoding)
	assert.Len(t, parts[0].Payload, 12)

	parts, err = Encode(strings.Repeat("Ж", 71))
	require.NoError(t, err)
	require.Len(t, parts, 2)
	for _, part := range parts {
		require.True(t, part.UDHI())
		assert.LessOrEqual(t, len(part.Payload), ucs2MultipartLimit)
	}
}

func TestEncodeKeepsSurrogatePairsTogether(t *testing.T) {
	parts, err := Encode(strings.Repeat("😀", 40))
	require.NoError(t, err)
	require.Len(t, parts, 2)

	for _, part := range parts {
		assert.Zero(t, len(part.Payload)%4)
		assert.LessOrEqual(t, len(part.Payload), ucs2MultipartLimit)
	}
	assert.Len(t, parts[0].Payload, 132)
}

func TestEncodeIsDeterministic(t *testing.T) {
	content := strings.Repeat("Mensaje de prueba ñ ", 20)
	first, err := Encode(content)
	require.NoError(t, err)
	second, err := Encode(content)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEncodeRejectsInvalidUTF8(t *testing.T) {
	_, err := Encode("bad \xff input")
	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
}

func TestEncodeRejectsTooManyParts(t *testing.T) {
	_, err := Encode(strings.Repeat("Ж", 67*256))
	var encErr *EncodingError
	require.True(t, errors.As(err, &encErr))
	assert.Contains(t, encErr.Error(), "limit is 255")
}

func TestInfo(t *testing.T) {
	dc, n := Info(strings.Repeat("x", 200))
	assert.Equal(t, GSM7, dc)
	assert.Equal(t, 2, n)

	dc, n = Info("日本")
	assert.Equal(t, UCS2, dc)
	assert.Equal(t, 1, n)
}

func TestDecodeInbound(t *testing.T) {
	text, err := Decode([]byte{0x48, 0x69, 0x20, gsm7Escape, 0x65}, GSM7)
	require.NoError(t, err)
	assert.Equal(t, "Hi €", text)

	text, err = Decode([]byte{0x00, 0x48, 0x00, 0xE9}, UCS2)
	require.NoError(t, err)
	assert.Equal(t, "Hé", text)

	text, err = Decode([]byte{0x63, 0x61, 0x66, 0xE9}, Latin1)
	require.NoError(t, err)
	assert.Equal(t, "café", text)

	_, err = Decode([]byte{0x41, gsm7Escape}, GSM7)
	assert.Error(t, err)
}
