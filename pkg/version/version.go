// Package version provides version information for btc-pricefeed.
package version

// Version is the current version of btc-pricefeed.
const Version = "0.3.0"

// AgentString returns the User-Agent sent to upstream price APIs.
func AgentString() string {
	return "btc-pricefeed/" + Version
}
