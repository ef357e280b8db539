package auth

import (
	"testing"
	"time"
)

func testService(t *testing.T, duration time.Duration) *Service {
	t.Helper()
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	return NewService(Config{
		JWTSecret:        "test-secret",
		TokenDuration:    duration,
		OperatorUser:     "operator",
		OperatorPassHash: hash,
	})
}

func TestLoginRoundTrip(t *testing.T) {
	svc := testService(t, time.Hour)

	token, err := svc.Login("operator", "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Username != "operator" {
		t.Errorf("username = %s, want operator", claims.Username)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := testService(t, time.Hour)

	if _, err := svc.Login("operator", "wrong"); err != ErrBadCredentials {
		t.Errorf("wrong password: err = %v, want ErrBadCredentials", err)
	}
	if _, err := svc.Login("intruder", "hunter2"); err != ErrBadCredentials {
		t.Errorf("wrong user: err = %v, want ErrBadCredentials", err)
	}
}

func TestLoginRejectsUnconfiguredOperator(t *testing.T) {
	svc := NewService(Config{JWTSecret: "s", OperatorUser: "operator"})
	if _, err := svc.Login("operator", "anything"); err != ErrBadCredentials {
		t.Errorf("empty hash: err = %v, want ErrBadCredentials", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := testService(t, -time.Minute)

	token, err := svc.GenerateToken("operator")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateToken(token); err != ErrTokenExpired {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestValidateTokenRejectsForeignSecret(t *testing.T) {
	svc := testService(t, time.Hour)
	other := NewService(Config{JWTSecret: "other-secret", OperatorUser: "operator"})

	token, err := other.GenerateToken("operator")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateToken(token); err != ErrInvalidToken {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.ValidateToken("not.a.token"); err != ErrInvalidToken {
		t.Errorf("garbage token: err = %v, want ErrInvalidToken", err)
	}
}

func TestNewServiceDefaultsDuration(t *testing.T) {
	svc := NewService(Config{JWTSecret: "s"})
	if got := svc.TokenDurationSeconds(); got != int64((24 * time.Hour).Seconds()) {
		t.Errorf("duration = %d seconds, want 24h", got)
	}
}
