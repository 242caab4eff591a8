// Package factory creates router implementations from configuration.
package factory

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nimburion/ssebroadcast/pkg/server/router"
	ginadapter "github.com/nimburion/ssebroadcast/pkg/server/router/gin"
	gorillaadapter "github.com/nimburion/ssebroadcast/pkg/server/router/gorilla"
	nethttpadapter "github.com/nimburion/ssebroadcast/pkg/server/router/nethttp"
)

// DefaultType is used when no router type is configured.
const DefaultType = "gorilla"

var supported = map[string]func() router.Router{
	"gin":     func() router.Router { return ginadapter.NewRouter() },
	"gorilla": func() router.Router { return gorillaadapter.NewRouter() },
	"nethttp": func() router.Router { return nethttpadapter.NewRouter() },
}

// NewRouter creates a router from type.
func NewRouter(routerType string) (router.Router, error) {
	rt := strings.TrimSpace(strings.ToLower(routerType))
	if rt == "" {
		rt = DefaultType
	}
	if create, ok := supported[rt]; ok {
		return create(), nil
	}
	return nil, fmt.Errorf("unsupported router type %q (supported: %s)", routerType, strings.Join(SupportedTypes(), ", "))
}

// SupportedTypes returns the supported router types.
func SupportedTypes() []string {
	types := make([]string, 0, len(supported))
	for t := range supported {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
