// Package payment wires every payment gateway into the registry.
// Import it (usually blank) to make "zarinpal", "zibal" and "noop" available to registry.Create.
package payment

import (
	_ "iranpay/internal/infra/adapters/payment/zarinpal"
	_ "iranpay/internal/infra/adapters/payment/zibal"
)
