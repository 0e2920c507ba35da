// Package security redacts credentials from operator-facing output.
package security

import (
	"io"
	"sort"
	"strings"

	lperrors "github.com/relicta-tech/launchpad/internal/errors"
)

// minSecretLen is the shortest configured value treated as a secret.
const minSecretLen = 6

const redacted = "[REDACTED]"

// Masker removes well-known credential formats and the configured secret
// values from text.
type Masker struct {
	secrets []string
}

// NewMasker creates a Masker for the given literal secrets. Empty and short
// values are ignored.
func NewMasker(secrets ...string) *Masker {
	m := &Masker{}
	for _, s := range secrets {
		if len(s) >= minSecretLen {
			m.secrets = append(m.secrets, s)
		}
	}
	// Longest first so a secret containing another is replaced whole.
	sort.Slice(m.secrets, func(i, j int) bool { return len(m.secrets[i]) > len(m.secrets[j]) })
	return m
}

// Mask redacts s.
func (m *Masker) Mask(s string) string {
	for _, secret := range m.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return lperrors.RedactSensitive(s)
}

// MaskedWriter wraps an io.Writer to automatically mask sensitive data.
type MaskedWriter struct {
	w      io.Writer
	masker *Masker
}

// NewMaskedWriter creates a new MaskedWriter that wraps the given writer.
func NewMaskedWriter(w io.Writer, masker *Masker) *MaskedWriter {
	if masker == nil {
		masker = NewMasker()
	}
	return &MaskedWriter{w: w, masker: masker}
}

// Write masks p before writing it. It reports len(p) on success so callers
// never see a short write caused by redaction.
func (mw *MaskedWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(mw.w, mw.masker.Mask(string(p))); err != nil {
		return 0, err
	}
	return len(p), nil
}
