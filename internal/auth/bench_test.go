package auth

import "testing"

// JWT parsing runs on every API request.

func BenchmarkGenerateAccessToken(b *testing.B) {
	for i := 0; i < b.N; i++ {
		GenerateAccessToken("bench", RoleOperator, testSecret, 15) //nolint:errcheck // benchmark
	}
}

func BenchmarkParseToken(b *testing.B) {
	token, err := GenerateAccessToken("bench", RoleOperator, testSecret, 15)
	if err != nil {
		b.Fatalf("GenerateAccessToken: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseToken(token, testSecret) //nolint:errcheck // benchmark
	}
}
