package evmcfg

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// ErrMalformedHex is returned when the input cannot be hex-decoded after
// newline stripping, "0x" trimming and library-placeholder rewriting
// (spec.md §7, "Decode error").
var ErrMalformedHex = errors.New("evmcfg: malformed hex bytecode")

// libraryPlaceholder matches an unlinked external-library address left by
// solc: "__" + 36 arbitrary characters + "__" (spec.md §4.2).
var libraryPlaceholder = regexp.MustCompile(`__.{36}__`)

const placeholderReplacement = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// NormalizeHex converts an ASCII-hex bytecode literal into raw bytes:
// library placeholders are rewritten, embedded newlines are dropped, a
// leading "0x" is trimmed, and the remainder is hex-decoded (spec.md §4.2,
// §6 "Input").
func NormalizeHex(s string) ([]byte, error) {
	for _, found := range libraryPlaceholder.FindAllString(s, -1) {
		log.Info("replacing unlinked library placeholder", "placeholder", found)
	}
	s = libraryPlaceholder.ReplaceAllString(s, placeholderReplacement)
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.TrimPrefix(s, "0x")

	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedHex, err)
	}
	return raw, nil
}

// normalizeBytes mirrors the Python original's bytes branch of
// convert_bytecode (SPEC_FULL.md §6): a library-placeholder rewrite always
// applies, but the hex decode only fires when the input is itself an
// ASCII "0x..."-prefixed literal handed over as bytes; plain raw bytecode
// is returned unchanged.
func normalizeBytes(b []byte) ([]byte, error) {
	for _, found := range libraryPlaceholder.FindAll(b, -1) {
		log.Info("replacing unlinked library placeholder", "placeholder", string(found))
	}
	b = libraryPlaceholder.ReplaceAll(b, []byte(placeholderReplacement))

	if !bytes.HasPrefix(b, []byte("0x")) {
		return b, nil
	}

	rest := bytes.ReplaceAll(b[2:], []byte("\n"), nil)
	raw, err := hex.DecodeString(string(rest))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedHex, err)
	}
	return raw, nil
}

// metadataPrefix and metadataSuffix bracket the Solidity metadata trailer
// removed by stripMetadata: `A1 65 62 7A 7A 72 30 58 20 <32 bytes> 00 29`
// (spec.md §4.1).
var metadataPrefix = []byte{0xa1, 0x65, 0x62, 0x7a, 0x7a, 0x72, 0x30, 0x58, 0x20}
var metadataSuffix = []byte{0x00, 0x29}

const metadataHashLen = 32

// stripMetadata removes one trailing Solidity metadata trailer if present.
// Idempotent: called again on the result, the pattern is gone and the
// bytecode is returned unchanged.
func stripMetadata(b []byte) []byte {
	idx := bytes.Index(b, metadataPrefix)
	if idx == -1 {
		return b
	}
	hashEnd := idx + len(metadataPrefix) + metadataHashLen
	suffixEnd := hashEnd + len(metadataSuffix)
	if suffixEnd > len(b) {
		return b
	}
	if !bytes.Equal(b[hashEnd:suffixEnd], metadataSuffix) {
		return b
	}

	out := make([]byte, 0, len(b)-(suffixEnd-idx))
	out = append(out, b[:idx]...)
	out = append(out, b[suffixEnd:]...)
	return out
}
