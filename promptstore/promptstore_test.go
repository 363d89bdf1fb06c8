package promptstore

import (
	"testing"
)

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s.Get("orchestrator") != "" {
		t.Error("expected empty prompt for unset agent")
	}

	if err := s.Set("orchestrator", "Always respond in formal English."); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("email_drafter", "Sign off as the study team."); err != nil {
		t.Fatal(err)
	}

	// Reopen and check persistence.
	s2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got := s2.Get("orchestrator"); got != "Always respond in formal English." {
		t.Errorf("unexpected prompt after reload: %q", got)
	}
	if len(s2.All()) != 2 {
		t.Errorf("expected 2 prompts, got %d", len(s2.All()))
	}

	// Empty text removes the entry.
	if err := s2.Set("orchestrator", ""); err != nil {
		t.Fatal(err)
	}
	s3, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if s3.Get("orchestrator") != "" {
		t.Error("expected orchestrator prompt to be removed")
	}
}
