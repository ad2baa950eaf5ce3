package processor

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// fallbackEncodings is tried in order after plain UTF-8 fails.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	// GBK subsumes GB2312; GB18030 covers the four-byte sequences GBK
	// rejects.
	{"gbk", simplifiedchinese.GBK},
	{"gb18030", simplifiedchinese.GB18030},
	{"latin1", charmap.ISO8859_1},
}

// decodeText decodes raw bytes to a string, trying utf-8, utf-8 with BOM,
// then the legacy fallbacks. Returns the decoded text and the name of the
// encoding that succeeded.
func decodeText(data []byte) (string, string, error) {
	if bytes.HasPrefix(data, utf8BOM) {
		stripped := data[len(utf8BOM):]
		if utf8.Valid(stripped) {
			return string(stripped), "utf-8-sig", nil
		}
	}

	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	for _, candidate := range fallbackEncodings {
		decoded, err := candidate.enc.NewDecoder().Bytes(data)
		// The decoders substitute U+FFFD for undecodable sequences
		// instead of erroring; treat any substitution as a miss.
		if err != nil || !utf8.Valid(decoded) || bytes.ContainsRune(decoded, utf8.RuneError) {
			continue
		}
		return string(decoded), candidate.name, nil
	}

	return "", "", fmt.Errorf("content is not decodable as text")
}
