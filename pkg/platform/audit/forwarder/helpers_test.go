package forwarder

import "time"

var testNow = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
