package launcher

import (
	"fmt"
	"strings"

	"github.com/HamiGames/Lucid-sub000/internal/core/topology"
	"github.com/HamiGames/Lucid-sub000/internal/shell/secrets"
)

// =============================================================================
// Environment Resolution
// =============================================================================

// secretScheme prefixes env values that name a secret instead of carrying
// a literal, e.g. DB_PASSWORD: secret://mongo-root-password.
const secretScheme = "secret://"

// Resolver expands a service's environment against deployment-wide values
// and the secret store.
type Resolver struct {
	values  map[string]string
	secrets secrets.Store
}

// NewResolver creates a resolver. values holds deployment-wide plain
// values referenced as ${NAME}; store resolves secret:// references.
func NewResolver(values map[string]string, store secrets.Store) *Resolver {
	if values == nil {
		values = make(map[string]string)
	}
	return &Resolver{values: values, secrets: store}
}

// ResolveEnv returns the fully resolved environment for a service. Any
// reference that does not resolve is an error naming the variable - a
// missing secret must never launch as an empty string.
func (r *Resolver) ResolveEnv(svc topology.Service) (map[string]string, error) {
	resolved := make(map[string]string, len(svc.Env))
	for name, value := range svc.Env {
		if strings.HasPrefix(value, secretScheme) {
			secretName := strings.TrimPrefix(value, secretScheme)
			secretValue, err := r.secrets.Get(secretName)
			if err != nil {
				return nil, fmt.Errorf("%w: env %s of service %q references secret %q: %v",
					ErrUnresolvedReference, name, svc.Name, secretName, err)
			}
			resolved[name] = secretValue
			continue
		}

		expanded := topology.SubstituteValues(value, r.values)
		if missing := unresolvedPlaceholder(expanded); missing != "" {
			return nil, fmt.Errorf("%w: env %s of service %q references undefined value %q",
				ErrUnresolvedReference, name, svc.Name, missing)
		}
		resolved[name] = expanded
	}
	return resolved, nil
}

// unresolvedPlaceholder returns the first ${NAME} left after substitution.
func unresolvedPlaceholder(value string) string {
	start := strings.Index(value, "${")
	if start < 0 {
		return ""
	}
	end := strings.Index(value[start:], "}")
	if end < 0 {
		return ""
	}
	return value[start : start+end+1]
}
