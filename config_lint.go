package authguard

import (
	"fmt"
	"time"
)

// LintSeverity ranks a configuration warning.
type LintSeverity uint8

const (
	// LintInfo marks settings that are valid but worth knowing about.
	LintInfo LintSeverity = iota
	// LintWarn marks settings that are likely a mistake outside tests.
	LintWarn
)

func (s LintSeverity) String() string {
	if s == LintWarn {
		return "warn"
	}
	return "info"
}

// LintWarning is one finding of [Config.Lint].
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult lists the findings of [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that pass Validate but are questionable. It never
// fails; callers decide whether to log or reject.
func (c Config) Lint() LintResult {
	var out LintResult
	add := func(code string, sev LintSeverity, format string, args ...any) {
		out = append(out, LintWarning{Code: code, Severity: sev, Message: fmt.Sprintf(format, args...)})
	}

	if c.Login.Timeout == 0 {
		add("login_timeout_disabled", LintWarn, "login waits for the authentication service without a bound")
	}
	if c.Refresh.Timeout == 0 {
		add("refresh_timeout_disabled", LintWarn, "refresh waits for the authentication service without a bound")
	}
	if c.Hydrate.Timeout == 0 {
		add("hydrate_timeout_disabled", LintWarn, "startup waits for persistence without a bound")
	}
	if c.Refresh.Auto && c.Refresh.Lead > 10*time.Minute {
		add("refresh_lead_long", LintInfo, "refresh lead %s renews tokens long before expiry", c.Refresh.Lead)
	}
	if c.Token.Leeway > time.Minute {
		add("leeway_large", LintWarn, "token leeway %s accepts tokens well past expiry", c.Token.Leeway)
	}
	if len(c.Token.PublicKey) == 0 && len(c.Token.Secret) == 0 {
		add("token_unverified", LintInfo, "tokens are read for expiry but their signature is not checked")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", LintWarn, "a slow audit sink will delay session notifications")
	}
	if c.Refresh.KeepOnTransientFailure && !c.Refresh.Auto {
		add("keep_without_auto_refresh", LintInfo, "transient refresh failures are only retried by the caller")
	}
	return out
}
