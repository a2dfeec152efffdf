// Package password resolves password specs into candidate password sets.
//
// A spec names where a password comes from (stdin, pass:, env:, file:,
// keyring:, aws-sm:). Resolving a spec yields candidates: every password
// the source produced, crossed with every configured character encoding,
// native UTF-8 first. Callers try candidates in order against whatever
// they are unlocking and stop at the first success.
//
// Candidate bytes live in locked memory and are wiped when the Retriever
// closes. Nothing in this package logs or stores password material.
package password

import (
	"github.com/awnumar/memguard"
)

// EncodingNative tags candidates carrying the password's UTF-8 bytes.
const EncodingNative = "utf-8"

// Candidate is one password in one encoding, sealed in locked memory.
type Candidate struct {
	buf      *memguard.LockedBuffer
	encoding string
}

func newCandidate(data []byte, encoding string) *Candidate {
	c := &Candidate{encoding: encoding}
	// memguard rejects zero-size buffers; an empty password has nothing to
	// protect, so it keeps no locked backing.
	if len(data) > 0 {
		// NewBufferFromBytes wipes data as it seals it.
		c.buf = memguard.NewBufferFromBytes(data)
	}
	return c
}

// Bytes exposes the candidate's password bytes. The slice aliases locked
// memory and dies with the Retriever; callers must not keep it. An empty
// password yields an empty slice, a destroyed candidate nil.
func (c *Candidate) Bytes() []byte {
	if c.buf == nil {
		return []byte{}
	}
	if !c.buf.IsAlive() {
		return nil
	}
	return c.buf.Bytes()
}

// Encoding returns the encoding tag the candidate was produced under.
func (c *Candidate) Encoding() string {
	return c.encoding
}

func (c *Candidate) destroy() {
	if c.buf != nil && c.buf.IsAlive() {
		c.buf.Destroy()
	}
}
