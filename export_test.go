package breadbox

import "time"

// SetNow overrides the issuer's clock in tests.
func (i *GrantIssuer) SetNow(now func() time.Time) {
	i.now = now
}
