package testutil

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sprout/pkg/requestcontext"
)

// FixedNow is the clock used by scenario tests.
var FixedNow = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

// Context returns a context carrying a fixed request time and a fresh request
// ID, which is what an inbound request would see.
func Context() context.Context {
	return ContextAt(FixedNow)
}

func ContextAt(now time.Time) context.Context {
	ctx := requestcontext.WithTime(context.Background(), now)
	return requestcontext.WithRequestID(ctx, uuid.NewString())
}

// File returns n bytes of filler for attachment tests.
func File(n int) []byte {
	return make([]byte, n)
}

// MB is one mebibyte, the unit attachment limits are declared in.
const MB = 1 << 20
