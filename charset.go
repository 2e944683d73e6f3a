// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipstream

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

// Language encoding flag (EFS). Filename and comment are UTF-8.
const flagUTF8 uint16 = 0x800

// commonCharsets maps the names archivers usually use for legacy filename
// encodings to their x/text implementation.
var commonCharsets = map[string]encoding.Encoding{
	"utf-8":      unicode.UTF8,
	"utf8":       unicode.UTF8,
	"cp437":      charmap.CodePage437,
	"ibm437":     charmap.CodePage437,
	"cp850":      charmap.CodePage850,
	"cp866":      charmap.CodePage866,
	"cp1251":     charmap.Windows1251,
	"cp1252":     charmap.Windows1252,
	"iso-8859-1": charmap.ISO8859_1,
	"cp949":      korean.EUCKR,
	"euc-kr":     korean.EUCKR,
	"shift_jis":  japanese.ShiftJIS,
	"cp932":      japanese.ShiftJIS,
}

// CharsetByName resolves a charset name such as "cp437" or "cp949" to an
// encoding usable with WithCharset. Names unknown to the built-in table are
// looked up in the IANA registry.
func CharsetByName(name string) (encoding.Encoding, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if enc, ok := commonCharsets[key]; ok {
		return enc, nil
	}

	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil {
		return nil, fmt.Errorf("%w: charset %q: %v", ErrUnsupported, name, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("%w: charset %q has no implementation", ErrUnsupported, name)
	}
	return enc, nil
}

// isUTF8Charset reports whether text written with enc needs the EFS flag.
func isUTF8Charset(enc encoding.Encoding) bool {
	return enc == nil || enc == unicode.UTF8
}

// encodeText converts s to the archive charset. Characters the charset cannot
// represent are an error rather than being silently replaced.
func encodeText(enc encoding.Encoding, s string) ([]byte, error) {
	if isUTF8Charset(enc) || s == "" {
		return []byte(s), nil
	}

	b, err := enc.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("%w: encode %q: %v", ErrInvalidEntry, s, err)
	}
	return b, nil
}
