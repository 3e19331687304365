package datascope

import (
	"context"
	"fmt"
	"time"

	common_models "estate-crm/internal/common/models"

	"github.com/d5/tengo/v2"
)

// TengoEvaluator runs custom scope scripts in a sandboxed Tengo VM. The
// script sees the requesting principal as a plain map and must assign the
// resulting conditions map to a top-level `filter` variable:
//
//	filter := { region__in: ["North", "East"] }
//	if principal.team == "vip" {
//	    filter = {}
//	}
//
// No stdlib modules are loaded, so scripts cannot touch the filesystem,
// network or environment.
type TengoEvaluator struct {
	timeout time.Duration
}

func NewTengoEvaluator() *TengoEvaluator {
	return &TengoEvaluator{timeout: 2 * time.Second}
}

func (e *TengoEvaluator) Evaluate(ctx context.Context, scriptContent string, principal *common_models.Principal) (map[string]interface{}, error) {
	script := tengo.NewScript([]byte(scriptContent))

	if err := script.Add("principal", principalMap(principal)); err != nil {
		return nil, fmt.Errorf("failed to bind principal: %w", err)
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, fmt.Errorf("failed to compile script: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	if err := compiled.RunContext(runCtx); err != nil {
		return nil, fmt.Errorf("failed to run script: %w", err)
	}

	value := compiled.Get("filter").Value()
	if value == nil {
		return nil, fmt.Errorf("script did not set a filter variable")
	}
	filter, ok := value.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("script filter must be a map, got %T", value)
	}
	return filter, nil
}

func principalMap(p *common_models.Principal) map[string]interface{} {
	if p == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"user_id":      p.UserID,
		"name":         p.Name,
		"superuser":    p.Superuser,
		"profile_id":   p.ProfileID,
		"profile_name": p.ProfileName,
		"team":         p.Team,
	}
}
