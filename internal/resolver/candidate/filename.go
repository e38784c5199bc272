package candidate

import (
	"strings"

	"github.com/bilusteknoloji/pipg/internal/pep503"
	"github.com/bilusteknoloji/pipg/internal/tags"
)

// versionFromFilename extracts the version component from a distribution
// filename. Wheels encode it as the second "-"-separated field
// (name-version-...-tag.whl); source distributions are just
// name-version.tar.gz (or .zip): since PEP 440 versions never contain a
// literal "-" but a project's own name can (e.g. "zope-interface"), the
// version is everything after the known name prefix, not just after the
// last "-" in the stem.
func versionFromFilename(filename, projectName string) string {
	if strings.HasSuffix(filename, ".whl") {
		_, version, _, err := tags.ParseWheelFilename(filename)
		if err == nil {
			return version
		}
	}

	return sdistVersion(filename, projectName)
}

var sdistExtensions = []string{".tar.gz", ".tar.bz2", ".tar.xz", ".zip", ".tar"}

func sdistVersion(filename, projectName string) string {
	stem := filename

	for _, ext := range sdistExtensions {
		if strings.HasSuffix(stem, ext) {
			stem = strings.TrimSuffix(stem, ext)

			break
		}
	}

	norm := pep503.Normalize(projectName)
	lower := strings.ToLower(stem)

	for _, sep := range []byte{'-', '_', '.'} {
		prefix := strings.ReplaceAll(norm, "-", string(sep)) + string(sep)
		if strings.HasPrefix(lower, prefix) {
			return stem[len(prefix):]
		}
	}

	i := strings.LastIndex(stem, "-")
	if i < 0 {
		return stem
	}

	return stem[i+1:]
}
