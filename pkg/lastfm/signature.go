package lastfm

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

// unsignedKeys are sent to the service but never part of the signature.
var unsignedKeys = map[string]bool{
	"format":   true,
	"callback": true,
}

// Sign generates the api_sig value for a request.
//
// The signature is calculated by:
//  1. Sorting parameter keys lexicographically
//  2. Skipping "format" and "callback"
//  3. Concatenating key+value pairs (e.g., "keyAvalueAkeyBvalueB")
//  4. Appending the shared secret
//  5. Taking the MD5 hash of the result as lowercase hex
//
// The service recomputes the same string, so any deviation here is
// rejected with ErrCodeInvalidSignature.
func Sign(params Params, secret string) string {
	values := make(map[string]string, len(params))
	keys := make([]string, 0, len(params))
	for _, param := range params {
		if unsignedKeys[param.Key] {
			continue
		}
		if _, seen := values[param.Key]; !seen {
			keys = append(keys, param.Key)
		}
		values[param.Key] = param.Value
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(values[k])
	}
	sb.WriteString(secret)

	sum := md5.Sum([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}
