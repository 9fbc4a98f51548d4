package venue

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTransportBlocked is returned when every retry of a submission was
// stopped by the venue's edge network. The order may have partially taken
// effect upstream, so the operator has to resolve it manually.
var ErrTransportBlocked = errors.New(
	"IP blocked by the venue edge; the underlying position was still acquired - resolve manually or set HTTPS_PROXY")

// ErrNoLiquidity is returned when an exit order found no counterparty even
// at the haircut price. Terminal; the tokens are kept.
var ErrNoLiquidity = errors.New("no liquidity at sell price - tokens kept, sell manually")

// APIError is a non-2xx response from the venue. Its text carries the status
// code so block signatures stay detectable after wrapping.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("venue responded %d: %s", e.Status, e.Body)
}

// isTransportBlock reports whether the error is an edge-network block
// signature: HTTP 403 together with a blocking-provider marker. Everything
// else (insufficient funds, no match, malformed order) is terminal.
func isTransportBlock(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "403") &&
		(strings.Contains(msg, "cloudflare") || strings.Contains(msg, "blocked"))
}

// isNoMatch reports whether the venue rejected an order for lack of a
// counterparty or funds.
func isNoMatch(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no match") || strings.Contains(msg, "insufficient")
}
