package testutil

// FixedTokenGenerator always returns the same run token.
//
// Golden snapshot comparison needs byte-identical traces, so deterministic
// scenarios pin their run token instead of drawing a fresh UUID.
//
// FixedTokenGenerator is stateless after construction and safe for
// concurrent use.
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a generator for the given token. An empty
// token defaults to "test-run-default".
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "test-run-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed run token.
//
// Implements harness.TokenGenerator.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}
