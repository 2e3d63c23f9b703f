package registry

import (
	"testing"

	"github.com/MrSnakeDoc/vigil/internal/domain"
)

func TestKeyspaceLayout(t *testing.T) {
	ks := NewKeyspace("prod")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"root", ks.Root(), "/prod/services"},
		{"primary", ks.Primary("abc"), "/prod/services/by-uuid/abc"},
		{"primary prefix", ks.PrimaryPrefix(), "/prod/services/by-uuid/"},
		{"status up", ks.Status(domain.StatusUp, "abc"), "/prod/services/by-status/up/abc"},
		{"status down", ks.Status(domain.StatusDown, "abc"), "/prod/services/by-status/down/abc"},
		{"status prefix", ks.StatusPrefix(domain.StatusUp), "/prod/services/by-status/up/"},
		{"status root", ks.StatusRoot(), "/prod/services/by-status/"},
		{"type host", ks.TypeHost("api", "node-1"), "/prod/services/by-type-host/api/node-1"},
		{"type host root", ks.TypeHostRoot(), "/prod/services/by-type-host/"},
		{"region", ks.Region("eu-west", "abc"), "/prod/services/by-region/eu-west/abc"},
		{"region prefix", ks.RegionPrefix("eu-west"), "/prod/services/by-region/eu-west/"},
		{"region root", ks.RegionRoot(), "/prod/services/by-region/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestNewKeyspaceNamespaces(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		wantRoot  string
	}{
		{"empty namespace", "", "/services"},
		{"plain", "prod", "/prod/services"},
		{"leading slash trimmed", "/prod", "/prod/services"},
		{"surrounding slashes trimmed", "/prod/", "/prod/services"},
		{"nested namespace", "team/prod", "/team/prod/services"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ks := NewKeyspace(tt.namespace)
			if ks.Root() != tt.wantRoot {
				t.Errorf("Root() = %q, want %q", ks.Root(), tt.wantRoot)
			}
		})
	}
}

func TestLastSegment(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"/services/by-uuid/abc", "abc"},
		{"/services/by-status/up/abc", "abc"},
		{"abc", "abc"},
		{"/trailing/", ""},
	}

	for _, tt := range tests {
		if got := LastSegment(tt.key); got != tt.want {
			t.Errorf("LastSegment(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
