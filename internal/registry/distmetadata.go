package registry

import (
	"bytes"
	"fmt"
	"net/mail"
)

// DistMetadata is the subset of a dist-info METADATA file (PEP 566/PEP 643)
// the resolver needs: the project's own identity plus the dependency and
// Python-version constraints it declares.
type DistMetadata struct {
	Name           string
	Version        string
	RequiresDist   []string
	RequiresPython string
	Provides       []string // PEP 566 Provides-Extra: the extras this distribution offers
}

// ParseDistMetadata reads a METADATA (or legacy PKG-INFO) file's RFC 822
// headers. Grounded on deps.dev/util/pypi's ParseMetadata: the format is
// specified as a set of mail-style headers, so net/mail does the framing
// this module would otherwise have to hand-roll — no example in the corpus
// reaches for a dedicated metadata-header library, they all parse this with
// net/mail.
func ParseDistMetadata(data []byte) (DistMetadata, error) {
	buf := bytes.NewBuffer(data)
	buf.WriteByte('\n') // net/mail errors on a message with no body at all

	msg, err := mail.ReadMessage(buf)
	if err != nil {
		return DistMetadata{}, fmt.Errorf("parsing dist-info metadata: %w", err)
	}

	header := func(name string) string {
		vs := msg.Header[name]
		if len(vs) == 0 || vs[0] == "UNKNOWN" {
			return ""
		}

		return vs[0]
	}

	multiHeader := func(name string) []string {
		var out []string

		for _, v := range msg.Header[name] {
			if v != "UNKNOWN" {
				out = append(out, v)
			}
		}

		return out
	}

	return DistMetadata{
		Name:           header("Name"),
		Version:        header("Version"),
		RequiresDist:   multiHeader("Requires-Dist"),
		RequiresPython: header("Requires-Python"),
		Provides:       multiHeader("Provides-Extra"),
	}, nil
}
