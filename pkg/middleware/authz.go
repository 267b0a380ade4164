package middleware

import (
	"rewards-controlplane/pkg/config"
	"rewards-controlplane/pkg/errutil"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

var defaultPolicies = [][]string{
	{"Employee", "/api/v1/me", "GET"},
	{"Employee", "/api/v1/me/*", "*"},
	{"Employee", "/api/v1/cart", "*"},
	{"Employee", "/api/v1/cart/*", "*"},
	{"Employee", "/api/v1/orders", "POST"},
	{"Employee", "/api/v1/orders/*", "POST"},
	{"Administrator", "/api/v1/admin/*", "*"},
}

// NewEnforcer loads the casbin model and policy from ACCESS_CONTROL when both paths
// are configured, otherwise it falls back to the built-in role policy.
func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	ac := cfg.AccessControl
	if ac.Model != "" && ac.Policy != "" {
		return casbin.NewEnforcer(ac.Model, ac.Policy)
	}

	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	if _, err := e.AddPolicies(defaultPolicies); err != nil {
		return nil, err
	}
	// administrators may also redeem points
	if _, err := e.AddGroupingPolicy("Administrator", "Employee"); err != nil {
		return nil, err
	}

	return e, nil
}

func Authorize(e *casbin.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			c.Error(errutil.Unauthorized("unauthenticated", nil))
			c.Abort()
			return
		}

		allowed, err := e.Enforce(p.Role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			zap.L().Error("casbin enforce failed", zap.Error(err))
			c.Error(errutil.Internal("authorization failed", err))
			c.Abort()
			return
		}
		if !allowed {
			c.Error(errutil.Forbidden("access denied", nil))
			c.Abort()
			return
		}

		c.Next()
	}
}
