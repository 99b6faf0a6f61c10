package api

import "strings"

// vizComponents in match priority order. Earlier rules win so that e.g.
// "pumpportal" lines are not swallowed by the broader "pump" keywords.
var vizRules = []struct {
	component string
	keywords  []string
}{
	{"helius-ws", []string{"logssubscribe", "logsunsubscribe", "log stream", "websocket", "subscription", "stream closed", "dial"}},
	{"pumpportal", []string{"pumpportal", "trade-local"}},
	{"jupiter", []string{"jupiter", "aggregator", "quote", "roundtrip"}},
	{"jito", []string{"jito", "bundle", "tip ", "tip account", "block engine", "simulate"}},
	{"pumpfun", []string{"pump.fun", "pumpfun", "launchpad", "mint inferred", "create"}},
	{"raydium", []string{"raydium", "pool init", "initialize2", "amm"}},
	{"tx-builder", []string{"materialize", "unsigned tx", "swap tx", "memo", "compute unit"}},
	{"solana-rpc", []string{"blockhash", "gettransaction", "getaccountinfo", "token supply", "largest accounts", "rpc", "signature fetch"}},
	{"backend-api", []string{"session", "config", "start", "stop", "heartbeat"}},
}

// ClassifyLogLine tags one log message with the subsystem it most likely came
// from. Purely cosmetic: the dashboard uses the tag for lane placement, the
// engine never routes on it.
func ClassifyLogLine(msg string) string {
	lower := strings.ToLower(msg)
	for _, rule := range vizRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.component
			}
		}
	}
	return "other"
}
