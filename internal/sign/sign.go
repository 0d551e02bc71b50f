// Package sign implements the aggregator's MD5 request signature.
//
// The gateway signs a flat key=value mapping: pairs are joined with "&"
// in a fixed or alphabetical order, "&key=<secret>" is appended, and the
// hex MD5 digest of the whole string is sent as the "sign" field.
// Different gateway endpoints disagree on both the ordering and the hex
// case, so both are a per-call-site Policy rather than a package rule.
package sign

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

type Ordering int

const (
	// Alphabetical orders keys lexicographically, skipping empty values.
	Alphabetical Ordering = iota
	// FixedOrder uses Policy.Keys verbatim; keys absent from the params
	// are skipped.
	FixedOrder
)

type HexCase int

const (
	LowerHex HexCase = iota
	UpperHex
)

// Policy is the signing rule one call site uses. Exclude lists keys that
// must never enter the digest (besides "sign" itself, which is always
// excluded).
type Policy struct {
	Ordering Ordering
	Keys     []string // consulted only for FixedOrder
	Case     HexCase
	Exclude  []string
}

func (p Policy) excluded(k string) bool {
	if k == "sign" {
		return true
	}
	for _, e := range p.Exclude {
		if e == k {
			return true
		}
	}
	return false
}

// Sign produces the hex MD5 signature of params under the policy.
func Sign(params map[string]string, secret string, p Policy) string {
	var keys []string
	switch p.Ordering {
	case FixedOrder:
		for _, k := range p.Keys {
			if _, ok := params[k]; ok && !p.excluded(k) {
				keys = append(keys, k)
			}
		}
	default:
		for k, v := range params {
			if v == "" || p.excluded(k) {
				continue
			}
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	if len(keys) > 0 {
		b.WriteByte('&')
	}
	b.WriteString("key=")
	b.WriteString(secret)

	sum := md5.Sum([]byte(b.String()))
	s := hex.EncodeToString(sum[:])
	if p.Case == UpperHex {
		return strings.ToUpper(s)
	}
	return s
}

// Verify recomputes the signature and compares case-insensitively, since
// the gateway's hex case drifts between endpoints.
func Verify(params map[string]string, secret, received string, p Policy) bool {
	if received == "" {
		return false
	}
	return strings.EqualFold(Sign(params, secret, p), received)
}
