// Copyright 2016 The Vanadium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package secreport emits one-line test results, optionally wrapped in an
// HMAC envelope so that a collecting server can verify the line came from a
// trusted run rather than a forged or replayed transcript.
//
// With secure mode off a report is literally
//
//	<name>: <message>
//
// and with secure mode on it becomes
//
//	(<name>, <hash>, <salt>, <name>: <message>)
//
// where hash is the hex HMAC-SHA256 of the exact bytes "<name>: <message>"
// under a key derived from the shared secret and a fresh random salt.  The
// salt makes every line unique, so a verifier that remembers seen salts
// defeats replay; Verify re-derives the HMAC the same way.
package secreport

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/ryanfowler/uuid"
)

// Result messages understood by the collecting side.
const (
	Success = "SUCCESS"
	Fail    = "FAIL"
)

// Options configures a Reporter.  The envconfig tags let driver binaries
// populate it straight from the environment.
type Options struct {
	// Secure selects the HMAC envelope format.
	Secure bool `envconfig:"secure_testing"`
	// Secret is the shared secret; required when Secure is set.
	Secret string `envconfig:"secret"`
}

// A Reporter writes result lines to a single destination.  Lines are
// written atomically with respect to one another, so concurrent reports
// never interleave mid-line.
type Reporter struct {
	mu   sync.Mutex // serialises writes to w
	w    io.Writer
	opts Options
}

// New creates a Reporter writing to w.
func New(w io.Writer, opts Options) *Reporter {
	return &Reporter{w: w, opts: opts}
}

// Report emits one line for name carrying msg.
func (r *Reporter) Report(name, msg string) error {
	full := name + ": " + msg
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.opts.Secure {
		_, err := fmt.Fprintf(r.w, "%s\n", full)
		return errors.Wrap(err, "secreport: write")
	}
	salt, err := uuid.NewV4()
	if err != nil {
		return errors.Wrap(err, "secreport: generating salt")
	}
	hash := mac(full, r.opts.Secret, salt.String())
	_, err = fmt.Fprintf(r.w, "(%s, %s, %s, %s)\n", name, hash, salt.String(), full)
	return errors.Wrap(err, "secreport: write")
}

// Success reports that the named test succeeded.
func (r *Reporter) Success(name string) error { return r.Report(name, Success) }

// Fail reports that the named test failed.
func (r *Reporter) Fail(name string) error { return r.Report(name, Fail) }

// mac returns the hex HMAC-SHA256 of msg keyed by secret||salt.
func mac(msg, secret, salt string) string {
	m := hmac.New(sha256.New, append([]byte(secret), salt...))
	m.Write([]byte(msg))
	return hex.EncodeToString(m.Sum(nil))
}

// Verify checks one secure-format line against the shared secret and
// returns the name and message it carries.  The trailing newline may be
// present or already stripped.
func Verify(line, secret string) (name, msg string, err error) {
	s := strings.TrimSuffix(line, "\n")
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return "", "", errors.New("secreport: line is not a secure envelope")
	}
	parts := strings.SplitN(s[1:len(s)-1], ", ", 4)
	if len(parts) != 4 {
		return "", "", errors.New("secreport: malformed secure envelope")
	}
	name, hash, salt, full := parts[0], parts[1], parts[2], parts[3]
	if !strings.HasPrefix(full, name+": ") {
		return "", "", errors.Errorf("secreport: envelope name %q does not match payload", name)
	}
	want := mac(full, secret, salt)
	if !hmac.Equal([]byte(hash), []byte(want)) {
		return "", "", errors.New("secreport: HMAC mismatch")
	}
	return name, strings.TrimPrefix(full, name+": "), nil
}
