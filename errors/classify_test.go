package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestClassifyTaggedProvisioning(t *testing.T) {
	err := Provisioning(New("server never came up"))
	if Classify(err) != KindProvisioning {
		t.Error("expected provisioning kind for tagged error")
	}

	// The tag survives wrapping.
	wrapped := Wrapf(err, "while starting tools")
	if Classify(wrapped) != KindProvisioning {
		t.Error("expected provisioning kind to survive Wrapf")
	}
}

func TestClassifyByMessageMarkers(t *testing.T) {
	cases := map[string]Kind{
		"dial tcp 127.0.0.1:9999: connection refused": KindProvisioning,
		"write |1: broken pipe":                       KindProvisioning,
		"context deadline exceeded":                   KindProvisioning,
		"exec: \"npx\": executable file not found":    KindProvisioning,
		"request failed with status 401 Unauthorized": KindAuth,
		"invalid x-api-key provided":                  KindAuth,
		"the model produced malformed output":         KindGeneric,
	}
	for msg, want := range cases {
		if got := Classify(stderrors.New(msg)); got != want {
			t.Errorf("Classify(%q) = %v, want %v", msg, got, want)
		}
	}
}

func TestClassifyJoinedCauses(t *testing.T) {
	joined := stderrors.Join(
		stderrors.New("some harmless detail"),
		Provisioning(stderrors.New("filesystem server timed out")),
	)
	if Classify(joined) != KindProvisioning {
		t.Error("expected provisioning kind inside a joined error")
	}

	// Provisioning outranks auth when both appear.
	both := stderrors.Join(
		stderrors.New("401 unauthorized"),
		stderrors.New("connection refused"),
	)
	if Classify(both) != KindProvisioning {
		t.Error("expected provisioning to dominate auth")
	}
}

func TestClassifyNil(t *testing.T) {
	if Classify(nil) != KindGeneric {
		t.Error("nil classifies as generic")
	}
}

func TestDiagnosticFlattensJoinedCauses(t *testing.T) {
	joined := stderrors.Join(
		stderrors.New("first sub-failure"),
		stderrors.New("second sub-failure"),
	)
	diag := Diagnostic(joined)
	if !strings.Contains(diag, "first sub-failure") || !strings.Contains(diag, "second sub-failure") {
		t.Errorf("diagnostic lost a sub-cause: %q", diag)
	}
	if !strings.Contains(diag, "causes:") {
		t.Errorf("expected flattened cause list, got %q", diag)
	}

	single := stderrors.New("just one thing")
	if Diagnostic(single) != "just one thing" {
		t.Errorf("single-cause diagnostic should be the plain message, got %q", Diagnostic(single))
	}
	if Diagnostic(nil) != "" {
		t.Error("nil diagnostic should be empty")
	}
}

func TestUserMessageRewrites(t *testing.T) {
	prov := Provisioning(stderrors.New("connection refused"))
	if msg := UserMessage(prov); !strings.Contains(msg, "tools") {
		t.Errorf("provisioning message should mention tools: %q", msg)
	}

	auth := stderrors.New("401 unauthorized")
	if msg := UserMessage(auth); !strings.Contains(msg, "API key") {
		t.Errorf("auth message should mention the API key: %q", msg)
	}

	generic := stderrors.New("something odd happened")
	if UserMessage(generic) != "something odd happened" {
		t.Error("generic errors pass through unchanged")
	}
}
