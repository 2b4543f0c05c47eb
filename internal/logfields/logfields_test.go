package logfields

import (
	"log/slog"
	"testing"
)

// TestHelperKeyNames verifies string-based helper key/value stability.
func TestHelperKeyNames(t *testing.T) {
	cases := []struct {
		name    string
		attrKey string
		attrVal string
		attr    interface{}
	}{
		{"TaskID", KeyTaskID, "123", TaskID("123")},
		{"TaskKind", KeyTaskKind, "GitClone", TaskKind("GitClone")},
		{"TaskState", KeyTaskState, "Running", TaskState("Running")},
		{"Stage", KeyStage, "Fake", Stage("Fake")},
		{"Repository", KeyRepo, "repo1", Repository("repo1")},
		{"Path", KeyPath, "/tmp/x", Path("/tmp/x")},
		{"File", KeyFile, "history.json", File("history.json")},
		{"Worker", KeyWorker, "w1", Worker("w1")},
		{"RemoteAddr", KeyRemoteAddr, "1.2.3.4:1080", RemoteAddr("1.2.3.4:1080")},
		{"Name", KeyName, "n", Name("n")},
		{"URL", KeyURL, "https://example", URL("https://example")},
		{"Host", KeyHost, "github.com", Host("github.com")},
		{"IPAddress", KeyIPAddress, "140.82.x.x", IPAddress("140.82.x.x")},
		{"IPSource", KeyIPSource, "UserStatic", IPSource("UserStatic")},
		{"ProxyState", KeyProxyState, "Fallback", ProxyState("Fallback")},
		{"Category", KeyCategory, "network", Category("network")},
	}

	for _, tc := range cases {
		a := tc.attr.(slog.Attr)
		if a.Key != tc.attrKey {
			// Key drift would break log ingestion schemas.
			t.Fatalf("%s: expected key %s, got %s", tc.name, tc.attrKey, a.Key)
		}
		if got := a.Value.String(); got != tc.attrVal { // Value is slog.Value
			t.Fatalf("%s: expected value %s, got %v", tc.name, tc.attrVal, got)
		}
	}
}

// TestNumericHelpers verifies keys for numeric & float helpers.
func TestNumericHelpers(t *testing.T) {
	if v := Port(443); v.Key != KeyPort {
		t.Fatalf("Port key mismatch: %s", v.Key)
	}
	if v := Status(200); v.Key != KeyStatus {
		t.Fatalf("Status key mismatch: %s", v.Key)
	}
	if v := Attempt(3); v.Key != KeyAttempt {
		t.Fatalf("Attempt key mismatch: %s", v.Key)
	}
	if v := DurationMS(12.5); v.Key != KeyDurationMS {
		t.Fatalf("DurationMS key mismatch: %s", v.Key)
	}
}

// TestErrorHelper ensures Error() handles nil and non-nil errors predictably.
func TestErrorHelper(t *testing.T) {
	attr := Error(nil)
	if attr.Key != KeyError {
		t.Fatalf("Error key mismatch: %s", attr.Key)
	}
	if attr.Value.String() != "" {
		t.Fatalf("Expected empty error string, got %s", attr.Value.String())
	}
	attr = Error(errTest{})
	if attr.Value.String() != "err-test" {
		t.Fatalf("Expected 'err-test', got %s", attr.Value.String())
	}
}

type errTest struct{}

func (e errTest) Error() string { return "err-test" }
