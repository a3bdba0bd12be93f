package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"pi-storefront/internal/features/gate"
	"pi-storefront/internal/platform/metrics"
)

// decisionKey is where the decision is stored on the gin context.
const decisionKey = "gate_decision"

// RequirePiBrowser redirects document requests from non-platform agents to
// the restricted landing page. It fails open: any internal error, including
// a panic while deciding, lets the request through.
func RequirePiBrowser(g *gate.Gate, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := decide(g, c.Request)
		c.Set(decisionKey, d)

		switch {
		case d.Err != nil:
			metrics.RecordGateDecision(metrics.GateError)
			logger.Error().Err(d.Err).
				Str("path", c.Request.URL.Path).
				Msg("Gate evaluation failed, allowing request")
		case d.Allow:
			metrics.RecordGateDecision(metrics.GateAllow)
			logger.Debug().Str("path", c.Request.URL.Path).Msg("Gate allowed request")
		}
		if d.Allow {
			c.Next()
			return
		}

		logger.Info().
			Str("path", c.Request.URL.Path).
			Str("user_agent", c.Request.UserAgent()).
			Str("reason", d.RedirectReason).
			Msg("Redirecting non-platform agent")
		metrics.RecordGateDecision(metrics.GateRedirect)
		c.Redirect(http.StatusTemporaryRedirect, d.Location)
		c.Abort()
	}
}

func decide(g *gate.Gate, r *http.Request) (d gate.Decision) {
	defer func() {
		if rec := recover(); rec != nil {
			d = gate.Decision{Allow: true, Err: fmt.Errorf("gate middleware panicked: %v", rec)}
		}
	}()
	return g.Decide(gate.FromHTTP(r))
}

// DecisionFrom returns the decision recorded for this request, if any.
func DecisionFrom(c *gin.Context) (gate.Decision, bool) {
	v, ok := c.Get(decisionKey)
	if !ok {
		return gate.Decision{}, false
	}
	d, ok := v.(gate.Decision)
	return d, ok
}
