package mockapi

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths map[string]map[string]interface{} `yaml:"paths"`
}

// TestOpenAPIDrift compares the routes registered on the chi router with the
// paths documented in openapi.yaml.
func TestOpenAPIDrift(t *testing.T) {
	var doc openAPIDoc
	require.NoError(t, yaml.Unmarshal(openapiSpec, &doc))

	specRoutes := make(map[string]bool)
	for path, methods := range doc.Paths {
		for method := range methods {
			method = strings.ToUpper(method)
			if strings.HasPrefix(method, "X-") || method == "PARAMETERS" {
				continue
			}
			specRoutes[method+" "+strings.TrimRight(path, "/")] = true
		}
	}

	// Router only registers routes, so a zero Server is enough.
	s := &Server{}
	chiRoutes := make(map[string]bool)
	err := chi.Walk(s.Router(), func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimRight(route, "/")
		if route == "/openapi.yaml" ||
			strings.HasPrefix(route, "/docs") ||
			strings.HasPrefix(route, "/redoc") {
			return nil
		}
		chiRoutes[method+" "+route] = true
		return nil
	})
	require.NoError(t, err)

	var undocumented, stale []string
	for route := range chiRoutes {
		if !specRoutes[route] {
			undocumented = append(undocumented, route)
		}
	}
	for route := range specRoutes {
		if !chiRoutes[route] {
			stale = append(stale, route)
		}
	}
	sort.Strings(undocumented)
	sort.Strings(stale)

	if len(undocumented) > 0 {
		t.Errorf("routes registered in Router() but missing from openapi.yaml:\n%s", formatRouteList(undocumented))
	}
	if len(stale) > 0 {
		t.Errorf("routes in openapi.yaml but not registered in Router():\n%s", formatRouteList(stale))
	}
}

func formatRouteList(routes []string) string {
	var b strings.Builder
	for _, r := range routes {
		fmt.Fprintf(&b, "  - %s\n", r)
	}
	return b.String()
}
