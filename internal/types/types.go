package types

import "time"

// ApplicationData describes one installed application as the store reports
// it. The registry never mutates these; it only snapshots them into exported
// objects.
type ApplicationData struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Version     string            `json:"version"`
	Description string            `json:"description,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
	InstalledAt time.Time         `json:"installed_at"`
}

// Clone returns a deep copy so callers can hold the result across store
// mutations.
func (a *ApplicationData) Clone() *ApplicationData {
	cp := *a
	if a.Properties != nil {
		cp.Properties = make(map[string]string, len(a.Properties))
		for k, v := range a.Properties {
			cp.Properties[k] = v
		}
	}
	return &cp
}

// PropertyMap maps interface name to property name to value, the shape used
// by GetManagedObjects replies and InterfacesAdded signals.
type PropertyMap map[string]map[string]interface{}
