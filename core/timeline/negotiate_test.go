package timeline

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

const versionsBody = `[
	{"ProductCode": "lp", "LatestVersion": "1.40", "SupportedVersions": ["1.40", "1.39"]},
	{"ProductCode": "le", "LatestVersion": "1.76", "SupportedVersions": ["1.76", "1.75", "1.9"]}
]`

func TestNegotiateCalendarVersion(t *testing.T) {
	fallback := []string{"1.74", "1.67"}

	t.Run("skips 404 and accepts 403", func(t *testing.T) {
		client := &fakeClient{probe: func(path string) (json.RawMessage, error) {
			switch {
			case path == versionsPath:
				return json.RawMessage(versionsBody), nil
			case strings.Contains(path, "/1.76/"):
				return nil, apiErr(http.StatusNotFound)
			case strings.Contains(path, "/1.75/"):
				// endpoint exists, probe subject just lacks permission
				return nil, apiErr(http.StatusForbidden)
			}
			t.Fatalf("unexpected probe: %s", path)
			return nil, nil
		}}

		got, err := negotiateCalendarVersion(context.Background(), client, fallback, 123)
		if err != nil {
			t.Fatalf("negotiateCalendarVersion() error = %v", err)
		}
		if got != "1.75" {
			t.Errorf("negotiateCalendarVersion() = %q, want %q", got, "1.75")
		}
	})

	t.Run("falls back when the versions probe fails", func(t *testing.T) {
		client := &fakeClient{probe: func(path string) (json.RawMessage, error) {
			switch {
			case path == versionsPath:
				return nil, apiErr(http.StatusInternalServerError)
			case strings.Contains(path, "/1.74/"):
				return json.RawMessage(`{"Objects": []}`), nil
			}
			return nil, apiErr(http.StatusNotFound)
		}}

		got, err := negotiateCalendarVersion(context.Background(), client, fallback, 123)
		if err != nil {
			t.Fatalf("negotiateCalendarVersion() error = %v", err)
		}
		if got != "1.74" {
			t.Errorf("negotiateCalendarVersion() = %q, want %q", got, "1.74")
		}
	})

	t.Run("exhaustion", func(t *testing.T) {
		client := &fakeClient{probe: func(path string) (json.RawMessage, error) {
			if path == versionsPath {
				return json.RawMessage(versionsBody), nil
			}
			return nil, apiErr(http.StatusNotFound)
		}}

		_, err := negotiateCalendarVersion(context.Background(), client, fallback, 123)
		if !IsSyncError(err, CodeAPIUnavailable) {
			t.Errorf("negotiateCalendarVersion() error = %v, want code %s", err, CodeAPIUnavailable)
		}
	})

	t.Run("unexpected probe failure is fatal", func(t *testing.T) {
		client := &fakeClient{probe: func(path string) (json.RawMessage, error) {
			if path == versionsPath {
				return json.RawMessage(versionsBody), nil
			}
			return nil, apiErr(http.StatusInternalServerError)
		}}

		if _, err := negotiateCalendarVersion(context.Background(), client, fallback, 123); err == nil {
			t.Error("negotiateCalendarVersion() error = nil, want upstream error")
		}
	})
}

func TestCandidateVersions(t *testing.T) {
	client := &fakeClient{probe: func(path string) (json.RawMessage, error) {
		return json.RawMessage(versionsBody), nil
	}}

	got := candidateVersions(context.Background(), client, []string{"1.75", "1.67"})
	// live "le" versions merged with fallback, deduplicated, newest first;
	// numeric compare puts "1.9" below "1.67"
	want := []string{"1.76", "1.75", "1.67", "1.9"}
	if len(got) != len(want) {
		t.Fatalf("candidateVersions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidateVersions()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestVersionLess(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.9", "1.10", true},
		{"1.10", "1.9", false},
		{"1.67", "1.75", true},
		{"1.75", "1.75", false},
		{"1.75", "2", true},
		{"1", "1.0", false},
		{"1.0.1", "1.0", false},
	}
	for _, tt := range tests {
		if got := versionLess(tt.a, tt.b); got != tt.want {
			t.Errorf("versionLess(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
