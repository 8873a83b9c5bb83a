package llm

import (
	"testing"

	"go.uber.org/goleak"
)

// leakOptions ignores background goroutines of the HTTP client and the
// Gemini SDK. Blocked pipe reads are never ignored.
var leakOptions = []goleak.Option{
	goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, leakOptions...)
}
