package registry

import (
	"testing"
	"time"

	"github.com/openappstack/installd/internal/manifest"
	"github.com/openappstack/installd/internal/types"
)

func TestObjectPath(t *testing.T) {
	cases := []struct {
		id   string
		want string
	}{
		{"app.a", "/installed/app_a"},
		{"app.b", "/installed/app_b"},
		{"simple", "/installed/simple"},
		{"a.b.c", "/installed/a_b_c"},
		{"UPPER123", "/installed/UPPER123"},
	}
	for _, c := range cases {
		if got := ObjectPath(c.id); got != c.want {
			t.Errorf("ObjectPath(%q) = %q, want %q", c.id, got, c.want)
		}
	}
}

func TestObjectPathDistinctForDistinctIDs(t *testing.T) {
	ids := []string{"app.a", "app.b", "appb", "app.b.c", "ap.pb", "other.app", "a.b.c"}
	seen := make(map[string]string)
	for _, id := range ids {
		if !manifest.ValidID(id) {
			t.Fatalf("test id %q is not a valid identity", id)
		}
		p := ObjectPath(id)
		if prev, dup := seen[p]; dup {
			t.Errorf("ids %q and %q map to the same path %q", prev, id, p)
		}
		seen[p] = id
	}
}

// Any identity that would fold to the same address as an installed one must
// be unreachable through the identity grammar, otherwise a second install
// could shadow an existing object.
func TestObjectPathCollisionCandidatesAreInvalidIDs(t *testing.T) {
	const installed = "app.b"
	for _, id := range []string{"app-b", "app_b", "app b", "app/b"} {
		if ObjectPath(id) != ObjectPath(installed) {
			t.Errorf("expected %q to fold to %q", id, ObjectPath(installed))
			continue
		}
		if manifest.ValidID(id) {
			t.Errorf("identity %q is accepted but shares address %q with %q",
				id, ObjectPath(id), installed)
		}
	}
}

func TestObjectSnapshotsProperties(t *testing.T) {
	app := &types.ApplicationData{
		ID:          "app.a",
		Name:        "App A",
		Version:     "2.1.0",
		Description: "demo",
		Properties:  map[string]string{"Category": "games", "Name": "spoofed"},
		InstalledAt: time.Now(),
	}
	obj := newObject(app)

	if obj.Path() != "/installed/app_a" {
		t.Errorf("unexpected path %s", obj.Path())
	}
	if obj.AppID() != "app.a" {
		t.Errorf("unexpected app id %s", obj.AppID())
	}

	ifaces := obj.Interfaces()
	if len(ifaces) != 1 || ifaces[0] != ApplicationInterface {
		t.Errorf("unexpected interfaces %v", ifaces)
	}

	props := obj.Properties()[ApplicationInterface]
	if props["AppID"] != "app.a" || props["Version"] != "2.1.0" {
		t.Errorf("unexpected core properties: %v", props)
	}
	// Manifest properties must not override the core surface.
	if props["Name"] != "App A" {
		t.Errorf("opaque property clobbered Name: %v", props["Name"])
	}
	if props["Category"] != "games" {
		t.Errorf("opaque property missing: %v", props["Category"])
	}

	// Mutating the returned map must not affect later materializations.
	props["AppID"] = "tampered"
	if obj.Properties()[ApplicationInterface]["AppID"] != "app.a" {
		t.Error("property materialization shares state with callers")
	}

	// Mutating the returned interface slice must not affect the object.
	ifaces[0] = "tampered"
	if obj.Interfaces()[0] != ApplicationInterface {
		t.Error("interface list shares state with callers")
	}
}
