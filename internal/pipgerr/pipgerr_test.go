package pipgerr

import (
	"errors"
	"testing"

	"github.com/bilusteknoloji/pipg/internal/pubgrub"
	"github.com/bilusteknoloji/pipg/internal/pypiver"
)

var errUnderlying = errors.New("boom")

func TestUnwrapReachesUnderlyingError(t *testing.T) {
	wrapped := []error{
		NewUserInputError(errUnderlying),
		NewNetworkError(errUnderlying, true),
		NewIndexError(errUnderlying, 503),
		NewCacheError(errUnderlying),
		NewMetadataError(errUnderlying),
		NewResolutionError(errUnderlying, nil),
		NewPolicyError(errUnderlying),
	}

	for _, err := range wrapped {
		if !errors.Is(err, errUnderlying) {
			t.Errorf("%T: errors.Is did not see through to the underlying error", err)
		}
	}
}

func TestIndexErrorCarriesStatus(t *testing.T) {
	err := NewIndexError(errUnderlying, 403)

	var ie *IndexError
	if !errors.As(err, &ie) {
		t.Fatal("expected errors.As to find *IndexError")
	}

	if ie.Status != 403 {
		t.Errorf("got status %d, want 403", ie.Status)
	}
}

func TestNetworkErrorCarriesTimeout(t *testing.T) {
	err := NewNetworkError(errUnderlying, true)

	var ne *NetworkError
	if !errors.As(err, &ne) || !ne.Timeout {
		t.Errorf("got %+v, want Timeout true", ne)
	}
}

func TestResolutionErrorCarriesDerivation(t *testing.T) {
	set, err := pypiver.ParseSpecifiers(">=1.0.0")
	if err != nil {
		t.Fatalf("parsing specifier: %v", err)
	}

	term := pubgrub.Term{Name: pubgrub.Name{Package: "a"}, Positive: true, Set: set}
	conflict := pubgrub.NewIncompatibilityNoVersions(term)

	werr := NewResolutionError(errUnderlying, conflict)

	var re *ResolutionError
	if !errors.As(werr, &re) {
		t.Fatal("expected errors.As to find *ResolutionError")
	}

	if re.Derivation != conflict {
		t.Error("expected Derivation to carry the conflict witness unchanged")
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"resolution", NewResolutionError(errUnderlying, nil), ExitResolutionFailure},
		{"user input", NewUserInputError(errUnderlying), ExitUserOrEnvironment},
		{"network", NewNetworkError(errUnderlying, false), ExitUserOrEnvironment},
		{"index", NewIndexError(errUnderlying, 500), ExitUserOrEnvironment},
		{"unrecognized", errUnderlying, ExitUserOrEnvironment},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}
