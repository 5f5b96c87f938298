package plugins

import (
	"context"
	"fmt"
	"strings"

	"github.com/platinummonkey/brace/pkg/observability"
)

// HealthCheck reports the registry as degraded while any registered unit's
// last lifecycle call failed.
func (r *Registry) HealthCheck(_ context.Context) observability.DependencyStatus {
	units := r.List()

	var failed []string
	for _, u := range units {
		if u.LastError() != nil {
			failed = append(failed, u.ID())
		}
	}

	if len(failed) == 0 {
		return observability.DependencyStatus{
			Status:  observability.StatusHealthy,
			Message: fmt.Sprintf("%d plugins registered", len(units)),
		}
	}
	return observability.DependencyStatus{
		Status:  observability.StatusDegraded,
		Message: fmt.Sprintf("%d of %d plugins failed: %s", len(failed), len(units), strings.Join(failed, ", ")),
	}
}
