package api

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Collection names as used on the command line and in endpoint files.
const (
	Tickets    = "tickets"
	Expenses   = "expenses"
	Revenues   = "revenues"
	Categories = "categories"
)

// Endpoints holds the paths of one collection, relative to the base URL.
// An empty path means the backend does not offer the operation.
type Endpoints struct {
	List   string `yaml:"list"`
	Upload string `yaml:"upload"`
	Delete string `yaml:"delete"`
	Stats  string `yaml:"stats"`
}

// DefaultEndpoints returns the backend's standard routes.
func DefaultEndpoints() map[string]Endpoints {
	return map[string]Endpoints{
		Tickets: {
			List:   "/api/tickets/user",
			Upload: "/api/tickets/upload",
			Delete: "/api/tickets/delete",
			Stats:  "/api/tickets/stats",
		},
		Expenses: {
			List:   "/api/expenses/user",
			Delete: "/api/expenses/delete",
			Stats:  "/api/expenses/stats",
		},
		Revenues: {
			List:   "/api/revenues/user",
			Delete: "/api/revenues/delete",
			Stats:  "/api/revenues/stats",
		},
		Categories: {
			List:   "/api/categories/user",
			Delete: "/api/categories/delete",
		},
	}
}

// LoadEndpoints reads a YAML file of per-collection overrides on top of
// the defaults. Only non-empty fields override, and unknown collection
// names are rejected.
//
//	tickets:
//	  list: /v2/tickets
func LoadEndpoints(path string) (map[string]Endpoints, error) {
	endpoints := DefaultEndpoints()
	if path == "" {
		return endpoints, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read endpoints file: %w", err)
	}

	var overrides map[string]Endpoints
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse endpoints file: %w", err)
	}

	for name, o := range overrides {
		e, ok := endpoints[name]
		if !ok {
			return nil, fmt.Errorf("endpoints file: unknown collection %q", name)
		}
		if o.List != "" {
			e.List = o.List
		}
		if o.Upload != "" {
			e.Upload = o.Upload
		}
		if o.Delete != "" {
			e.Delete = o.Delete
		}
		if o.Stats != "" {
			e.Stats = o.Stats
		}
		endpoints[name] = e
	}
	return endpoints, nil
}
