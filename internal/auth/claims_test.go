package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing"

func TestGenerateAndParseAccessToken(t *testing.T) {
	token, err := GenerateAccessToken("homeassistant", RoleOperator, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("GenerateAccessToken() returned empty token")
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	if claims.Subject != "homeassistant" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "homeassistant")
	}
	if claims.Role != RoleOperator {
		t.Errorf("Role = %q, want %q", claims.Role, RoleOperator)
	}
	if claims.ID == "" {
		t.Error("JTI (ID) should not be empty")
	}
	if claims.Issuer != issuer {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
}

func TestGenerateAccessToken_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		role    Role
		secret  string
		wantErr error
	}{
		{name: "no secret", subject: "ha", role: RoleViewer, wantErr: ErrNoSecret},
		{name: "no subject", role: RoleViewer, secret: testSecret, wantErr: ErrTokenInvalid},
		{name: "unknown role", subject: "ha", role: "admin", secret: testSecret, wantErr: ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := GenerateAccessToken(tt.subject, tt.role, tt.secret, 15)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("GenerateAccessToken() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGenerateAccessToken_DefaultTTL(t *testing.T) {
	token, err := GenerateAccessToken("ha", RoleViewer, testSecret, 0)
	if err != nil {
		t.Fatalf("GenerateAccessToken() error = %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}

	expectedExpiry := time.Now().Add(defaultTTLMinutes * time.Minute)
	diff := claims.ExpiresAt.Time.Sub(expectedExpiry)
	if diff < -time.Minute || diff > time.Minute {
		t.Errorf("default TTL should be ~1 hour, got expiry diff of %v", diff)
	}
}

// signed builds a token with arbitrary claims so ParseToken's checks can be
// exercised directly.
func signed(t *testing.T, method jwt.SigningMethod, claims CustomClaims, key any) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("signing: %v", err)
	}
	return s
}

func TestParseToken_Invalid(t *testing.T) {
	now := time.Now()
	valid := func() CustomClaims {
		return CustomClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Subject:   "ha",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			Role: RoleViewer,
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Minute))

	noExpiry := valid()
	noExpiry.ExpiresAt = nil

	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"

	noSubject := valid()
	noSubject.Subject = ""

	badRole := valid()
	badRole.Role = "owner"

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-valid-jwt"},
		{name: "empty", token: ""},
		{name: "two segments", token: "abc.def"},
		{name: "wrong secret", token: signed(t, jwt.SigningMethodHS256, valid(), []byte("wrong-secret"))},
		{name: "wrong algorithm", token: signed(t, jwt.SigningMethodHS512, valid(), []byte(testSecret))},
		{name: "unsigned", token: signed(t, jwt.SigningMethodNone, valid(), jwt.UnsafeAllowNoneSignatureType)},
		{name: "expired", token: signed(t, jwt.SigningMethodHS256, expired, []byte(testSecret))},
		{name: "no expiry", token: signed(t, jwt.SigningMethodHS256, noExpiry, []byte(testSecret))},
		{name: "wrong issuer", token: signed(t, jwt.SigningMethodHS256, wrongIssuer, []byte(testSecret))},
		{name: "no subject", token: signed(t, jwt.SigningMethodHS256, noSubject, []byte(testSecret))},
		{name: "unknown role", token: signed(t, jwt.SigningMethodHS256, badRole, []byte(testSecret))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, testSecret)
			if !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() error = %v, want ErrTokenInvalid", err)
			}
		})
	}
}

func TestParseToken_NoSecret(t *testing.T) {
	token, err := GenerateAccessToken("ha", RoleViewer, testSecret, 15)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseToken(token, ""); !errors.Is(err, ErrNoSecret) {
		t.Errorf("ParseToken() error = %v, want ErrNoSecret", err)
	}
}
