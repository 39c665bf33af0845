package coding

// Splitter reports how many encoded units a rune occupies: septets for GSM7,
// octets for UCS-2.
type Splitter func(rune) int

var (
	gsm7Splitter Splitter = func(r rune) int {
		if _, ok := gsm7Extended[r]; ok {
			return 2
		}
		return 1
	}
	ucs2Splitter Splitter = func(r rune) int {
		if r > 0xFFFF {
			return 4
		}
		return 2
	}
)

// Segment limits, in the unit of the coding's splitter.
const (
	gsm7SingleLimit    = 160
	gsm7MultipartLimit = 153
	ucs2SingleLimit    = 140
	ucs2MultipartLimit = 140 - udhLength
)

func (fn Splitter) Len(input string) (n int) {
	for _, point := range input {
		n += fn(point)
	}
	return n
}

// Split cuts input at rune boundaries so no segment exceeds limit units.
// An escape pair or a surrogate pair always stays within one segment.
func (fn Splitter) Split(input string, limit int) (segments []string) {
	points := []rune(input)
	var start, length int
	for i := 0; i < len(points); i++ {
		length += fn(points[i])
		if length > limit {
			segments = append(segments, string(points[start:i]))
			start, length = i, 0
			i--
		}
	}
	if length > 0 {
		segments = append(segments, string(points[start:]))
	}
	return
}

// SplitSMS splits msg into single- or multipart segments for the given data coding.
func SplitSMS(msg string, dataCoding DataCoding) []string {
	sp, single, multi := gsm7Splitter, gsm7SingleLimit, gsm7MultipartLimit
	if dataCoding == UCS2 {
		sp, single, multi = ucs2Splitter, ucs2SingleLimit, ucs2MultipartLimit
	}

	if sp.Len(msg) <= single {
		return []string{msg}
	}
	return sp.Split(msg, multi)
}
