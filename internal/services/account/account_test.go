// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package account_test

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-authflow/internal/i18n"
	"codeberg.org/oliverandrich/go-authflow/internal/metrics"
	"codeberg.org/oliverandrich/go-authflow/internal/repository"
	"codeberg.org/oliverandrich/go-authflow/internal/services/account"
	"codeberg.org/oliverandrich/go-authflow/internal/services/auth"
	"codeberg.org/oliverandrich/go-authflow/internal/services/email"
	"codeberg.org/oliverandrich/go-authflow/internal/services/throttle"
	"codeberg.org/oliverandrich/go-authflow/internal/services/token"
	"codeberg.org/oliverandrich/go-authflow/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	if err := i18n.Init(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type env struct {
	svc     *account.Service
	repo    *repository.Repository
	mailer  *testutil.Mailer
	clock   *fakeClock
	metrics *metrics.Metrics
}

func setup(t *testing.T, opts account.Options) *env {
	t.Helper()

	_, repo := testutil.NewTestDB(t)
	clock := &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}

	issuer, err := token.NewIssuer("test-secret", token.WithClock(clock.Now))
	require.NoError(t, err)

	mailer := &testutil.Mailer{}
	m := metrics.New()

	svc := account.NewService(account.Deps{
		Credentials: auth.NewService(repo, nil, auth.WithBcryptCost(bcrypt.MinCost)),
		Tokens:      issuer,
		Throttle:    throttle.New(throttle.NewMemoryStore(throttle.WithMemoryClock(clock.Now)), throttle.WithClock(clock.Now)),
		Mailer:      mailer,
		Composer:    email.NewComposer("http://localhost:8080"),
		Metrics:     m,
	}, opts)

	return &env{svc: svc, repo: repo, mailer: mailer, clock: clock, metrics: m}
}

var linkPattern = regexp.MustCompile(`/(?:verify-email|reset-password)/(\S+)`)

// lastLink returns the token of the link in the most recent email.
func (e *env) lastLink(t *testing.T) string {
	t.Helper()
	msg, ok := e.mailer.Last()
	require.True(t, ok, "no email sent")
	match := linkPattern.FindStringSubmatch(msg.Body)
	require.Len(t, match, 2, "no link in %q", msg.Body)
	return match[1]
}

func (e *env) register(t *testing.T, username string) *account.RegisterResult {
	t.Helper()
	res, err := e.svc.Register(context.Background(), account.RegisterInput{
		Username:        username,
		Email:           username + "@example.com",
		Password:        testutil.TestPassword,
		ConfirmPassword: testutil.TestPassword,
	})
	require.NoError(t, err)
	return res
}

func (e *env) registerVerified(t *testing.T, username string) {
	t.Helper()
	e.register(t, username)
	_, err := e.svc.VerifyEmail(context.Background(), e.lastLink(t))
	require.NoError(t, err)
}

func TestRegister_SendsVerificationLink(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()

	res := e.register(t, "alice")
	assert.True(t, res.EmailSent)
	assert.False(t, res.User.IsVerified)

	msg, ok := e.mailer.Last()
	require.True(t, ok)
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Contains(t, msg.Body, "http://localhost:8080/verify-email/")

	user, err := e.repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotNil(t, user.VerificationToken)
	assert.NotEqual(t, testutil.TestPassword, user.PasswordHash)
}

func TestVerifyEmail_AliceScenario(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()

	e.register(t, "alice")
	link := e.lastLink(t)

	_, err := e.svc.VerifyEmail(ctx, link[:len(link)-4]+"AAAA")
	require.ErrorIs(t, err, account.ErrTokenInvalid)

	user, err := e.svc.VerifyEmail(ctx, link)
	require.NoError(t, err)
	assert.True(t, user.IsVerified)

	stored, err := e.repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, stored.IsVerified)
	assert.Nil(t, stored.VerificationToken)

	again, err := e.svc.VerifyEmail(ctx, link)
	require.NoError(t, err)
	assert.True(t, again.IsVerified)
}

func TestVerifyEmail_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		wantErr error
	}{
		{"one second before expiry", time.Hour - time.Second, nil},
		{"one second after expiry", time.Hour + time.Second, account.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, account.Options{})
			e.register(t, "alice")
			link := e.lastLink(t)

			e.clock.Advance(tt.elapsed)
			_, err := e.svc.VerifyEmail(context.Background(), link)

			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestVerifyEmail_CustomMaxAge(t *testing.T) {
	e := setup(t, account.Options{VerifyMaxAge: 10 * time.Minute})
	e.register(t, "alice")
	link := e.lastLink(t)

	e.clock.Advance(11 * time.Minute)
	_, err := e.svc.VerifyEmail(context.Background(), link)

	require.ErrorIs(t, err, account.ErrTokenExpired)
}

func TestVerifyEmail_SupersededLink(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()

	e.register(t, "alice")
	first := e.lastLink(t)

	e.clock.Advance(time.Second)
	require.NoError(t, e.svc.ResendVerification(ctx, "Alice@Example.com"))
	second := e.lastLink(t)
	require.NotEqual(t, first, second)

	_, err := e.svc.VerifyEmail(ctx, first)
	require.ErrorIs(t, err, account.ErrTokenInvalid)

	_, err = e.svc.VerifyEmail(ctx, second)
	require.NoError(t, err)
}

func TestVerifyEmail_Garbage(t *testing.T) {
	e := setup(t, account.Options{})

	_, err := e.svc.VerifyEmail(context.Background(), "not-a-token")

	require.ErrorIs(t, err, account.ErrTokenInvalid)
}

func TestVerifyEmail_DeletedUser(t *testing.T) {
	e := setup(t, account.Options{})
	e.register(t, "alice")
	link := e.lastLink(t)

	_, err := e.repo.DB().Exec("DELETE FROM users")
	require.NoError(t, err)

	_, err = e.svc.VerifyEmail(context.Background(), link)
	require.ErrorIs(t, err, account.ErrTokenInvalid)
}

func TestRegister_DuplicateEmailAnyCase(t *testing.T) {
	e := setup(t, account.Options{})
	e.register(t, "alice")

	_, err := e.svc.Register(context.Background(), account.RegisterInput{
		Username:        "alice2",
		Email:           "ALICE@Example.COM",
		Password:        testutil.TestPassword,
		ConfirmPassword: testutil.TestPassword,
	})

	require.ErrorIs(t, err, auth.ErrDuplicate)
	assert.InDelta(t, 1, promtest.ToFloat64(e.metrics.Registrations.WithLabelValues("duplicate")), 0)
}

func TestRegister_DuplicateUsername(t *testing.T) {
	e := setup(t, account.Options{})
	e.register(t, "alice")

	_, err := e.svc.Register(context.Background(), account.RegisterInput{
		Username:        "alice",
		Email:           "other@example.com",
		Password:        testutil.TestPassword,
		ConfirmPassword: testutil.TestPassword,
	})

	require.ErrorIs(t, err, auth.ErrDuplicate)
}

func TestRegister_UsernameCaseVariantIsDuplicate(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.registerVerified(t, "Bob")

	_, err := e.svc.Register(ctx, account.RegisterInput{
		Username:        "bob",
		Email:           "mallory@example.com",
		Password:        testutil.TestPassword,
		ConfirmPassword: testutil.TestPassword,
	})
	require.ErrorIs(t, err, auth.ErrDuplicate)

	// Every case variant names the one account and shares its counter.
	for range throttle.DefaultThreshold - 1 {
		_, err = e.svc.Login(ctx, "bob", "wrong")
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	}
	user, err := e.svc.Login(ctx, "BOB", testutil.TestPassword)
	require.NoError(t, err)
	assert.Equal(t, "Bob", user.Username)
}

func TestRegister_FormValidation(t *testing.T) {
	tests := []struct {
		name  string
		input account.RegisterInput
		field string
		key   string
	}{
		{
			name:  "short username",
			input: account.RegisterInput{Username: "al", Email: "al@example.com", Password: "x", ConfirmPassword: "x"},
			field: "username",
			key:   "error_username_length",
		},
		{
			name:  "long username",
			input: account.RegisterInput{Username: "abcdefghijklmnopqrstuvwxyz", Email: "a@example.com", Password: "x", ConfirmPassword: "x"},
			field: "username",
			key:   "error_username_length",
		},
		{
			name:  "invalid email",
			input: account.RegisterInput{Username: "alice", Email: "not-an-email", Password: "x", ConfirmPassword: "x"},
			field: "email",
			key:   "error_email_invalid",
		},
		{
			name:  "display name",
			input: account.RegisterInput{Username: "alice", Email: "Alice <alice@example.com>", Password: "x", ConfirmPassword: "x"},
			field: "email",
			key:   "error_email_invalid",
		},
		{
			name:  "empty password",
			input: account.RegisterInput{Username: "alice", Email: "alice@example.com"},
			field: "password",
			key:   "error_password_required",
		},
		{
			name:  "confirmation mismatch",
			input: account.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Abc12345!", ConfirmPassword: "Abc12345?"},
			field: "confirm_password",
			key:   "error_password_mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := setup(t, account.Options{})

			_, err := e.svc.Register(context.Background(), tt.input)

			var verr *account.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.key, verr.Fields[tt.field])
			assert.Empty(t, e.mailer.Sent)
		})
	}
}

func TestRegister_WeakPassword(t *testing.T) {
	e := setup(t, account.Options{})

	_, err := e.svc.Register(context.Background(), account.RegisterInput{
		Username:        "alice",
		Email:           "alice@example.com",
		Password:        "password",
		ConfirmPassword: "password",
	})

	require.ErrorIs(t, err, auth.ErrWeakPassword)
	var perr *auth.PasswordValidationError
	require.ErrorAs(t, err, &perr)
	assert.NotEmpty(t, perr.Errors)
}

func TestRegister_EmailFailureKeepsAccount(t *testing.T) {
	e := setup(t, account.Options{})
	e.mailer.Fail = true

	res := e.register(t, "alice")

	assert.False(t, res.EmailSent)
	user, err := e.repo.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.NotNil(t, user.VerificationToken)
	assert.InDelta(t, 1, promtest.ToFloat64(e.metrics.Emails.WithLabelValues("verification", "false")), 0)
}

func TestResendVerification_IgnoresUnknownAndVerified(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.registerVerified(t, "alice")
	sent := len(e.mailer.Sent)

	require.NoError(t, e.svc.ResendVerification(ctx, "nobody@example.com"))
	require.NoError(t, e.svc.ResendVerification(ctx, "alice@example.com"))

	assert.Len(t, e.mailer.Sent, sent)
}

func TestResendVerification_DeliveryFailure(t *testing.T) {
	e := setup(t, account.Options{})
	e.register(t, "alice")
	e.mailer.Fail = true

	err := e.svc.ResendVerification(context.Background(), "alice@example.com")

	require.ErrorIs(t, err, account.ErrEmailDeliveryFailed)
}

func TestLogin_Success(t *testing.T) {
	e := setup(t, account.Options{})
	e.registerVerified(t, "alice")

	for _, identifier := range []string{"alice", "alice@example.com", " ALICE@example.com "} {
		user, err := e.svc.Login(context.Background(), identifier, testutil.TestPassword)
		require.NoError(t, err, identifier)
		assert.Equal(t, "alice", user.Username)
	}
}

func TestLogin_EmptyForm(t *testing.T) {
	e := setup(t, account.Options{})

	_, err := e.svc.Login(context.Background(), " ", "")

	var verr *account.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLogin_InvalidCredentialsCountDown(t *testing.T) {
	e := setup(t, account.Options{})
	e.registerVerified(t, "bob")

	for want := throttle.DefaultThreshold - 1; want > 0; want-- {
		_, err := e.svc.Login(context.Background(), "bob", "wrong")

		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
		var ierr *account.InvalidCredentialsError
		require.ErrorAs(t, err, &ierr)
		assert.Equal(t, want, ierr.AttemptsLeft)
	}
}

func TestLogin_BobLockout(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.registerVerified(t, "bob")

	var err error
	for range throttle.DefaultThreshold {
		_, err = e.svc.Login(ctx, "bob", "wrong")
	}
	require.ErrorIs(t, err, account.ErrLocked)

	_, err = e.svc.Login(ctx, "bob", testutil.TestPassword)
	var lerr *account.LockedError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, throttle.DefaultLockout, lerr.Remaining)
	assert.Equal(t, 15, lerr.Minutes())

	e.clock.Advance(throttle.DefaultLockout - time.Second)
	_, err = e.svc.Login(ctx, "bob", testutil.TestPassword)
	require.ErrorIs(t, err, account.ErrLocked)

	e.clock.Advance(2 * time.Second)
	user, err := e.svc.Login(ctx, "bob", testutil.TestPassword)
	require.NoError(t, err)
	assert.Equal(t, "bob", user.Username)

	assert.InDelta(t, 1, promtest.ToFloat64(e.metrics.Lockouts), 0)
}

func TestLogin_UnknownUserIsThrottled(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()

	var err error
	for range throttle.DefaultThreshold {
		_, err = e.svc.Login(ctx, "ghost", "wrong")
	}

	require.ErrorIs(t, err, account.ErrLocked)
}

func TestLogin_SuccessResetsCounter(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.registerVerified(t, "bob")

	for range throttle.DefaultThreshold - 1 {
		_, _ = e.svc.Login(ctx, "bob", "wrong")
	}
	_, err := e.svc.Login(ctx, "bob", testutil.TestPassword)
	require.NoError(t, err)

	_, err = e.svc.Login(ctx, "bob", "wrong")
	var ierr *account.InvalidCredentialsError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, throttle.DefaultThreshold-1, ierr.AttemptsLeft)
}

func TestLogin_UnverifiedResendsLink(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.register(t, "carol")
	first := e.lastLink(t)

	e.clock.Advance(time.Second)
	_, err := e.svc.Login(ctx, "carol", testutil.TestPassword)

	var nerr *account.NotVerifiedError
	require.ErrorAs(t, err, &nerr)
	require.ErrorIs(t, err, account.ErrNotVerified)
	assert.True(t, nerr.EmailSent)
	assert.Len(t, e.mailer.Sent, 2)

	_, err = e.svc.VerifyEmail(ctx, first)
	require.ErrorIs(t, err, account.ErrTokenInvalid)
	_, err = e.svc.VerifyEmail(ctx, e.lastLink(t))
	require.NoError(t, err)
}

func TestForgotPassword_UnknownEmailIsSilent(t *testing.T) {
	e := setup(t, account.Options{})

	err := e.svc.ForgotPassword(context.Background(), "nobody@example.com")

	require.NoError(t, err)
	assert.Empty(t, e.mailer.Sent)
	assert.False(t, e.svc.RevealsUnknownEmail())
}

func TestForgotPassword_RevealUnknownEmail(t *testing.T) {
	e := setup(t, account.Options{RevealUnknownEmail: true})

	err := e.svc.ForgotPassword(context.Background(), "nobody@example.com")

	require.ErrorIs(t, err, account.ErrUnknownEmail)
}

func TestForgotPassword_InvalidEmail(t *testing.T) {
	e := setup(t, account.Options{})

	err := e.svc.ForgotPassword(context.Background(), "nope")

	var verr *account.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestForgotPassword_DeliveryFailureKeepsLink(t *testing.T) {
	e := setup(t, account.Options{})
	e.registerVerified(t, "alice")
	e.mailer.Fail = true

	err := e.svc.ForgotPassword(context.Background(), "alice@example.com")

	require.ErrorIs(t, err, account.ErrEmailDeliveryFailed)
	user, err := e.repo.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.True(t, user.HasPendingReset())
	assert.NotNil(t, user.TokenIssuedAt)
}

func TestResetPassword_Flow(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.registerVerified(t, "alice")

	require.NoError(t, e.svc.ForgotPassword(ctx, "alice@example.com"))
	link := e.lastLink(t)

	user, err := e.svc.CheckResetToken(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = e.svc.ResetPassword(ctx, link, testutil.TestPassword, testutil.TestPassword)
	require.ErrorIs(t, err, auth.ErrSamePassword)

	const newPassword = "Xyz98765#"
	_, err = e.svc.ResetPassword(ctx, link, newPassword, newPassword)
	require.NoError(t, err)

	_, err = e.svc.Login(ctx, "alice", testutil.TestPassword)
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	_, err = e.svc.Login(ctx, "alice", newPassword)
	require.NoError(t, err)

	_, err = e.svc.ResetPassword(ctx, link, "Other1234$", "Other1234$")
	require.ErrorIs(t, err, account.ErrTokenInvalid)

	stored, err := e.repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, stored.HasPendingReset())
	assert.Nil(t, stored.TokenIssuedAt)
}

func TestResetPassword_Validation(t *testing.T) {
	e := setup(t, account.Options{})
	e.registerVerified(t, "alice")
	require.NoError(t, e.svc.ForgotPassword(context.Background(), "alice@example.com"))

	_, err := e.svc.ResetPassword(context.Background(), e.lastLink(t), "Xyz98765#", "Xyz98765")

	var verr *account.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "error_password_mismatch", verr.Fields["confirm_password"])
}

func TestResetPassword_WeakPassword(t *testing.T) {
	e := setup(t, account.Options{})
	e.registerVerified(t, "alice")
	require.NoError(t, e.svc.ForgotPassword(context.Background(), "alice@example.com"))

	_, err := e.svc.ResetPassword(context.Background(), e.lastLink(t), "short", "short")

	require.ErrorIs(t, err, auth.ErrWeakPassword)
}

func TestResetPassword_ExpiredLinkIsCleared(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.registerVerified(t, "alice")
	require.NoError(t, e.svc.ForgotPassword(ctx, "alice@example.com"))
	link := e.lastLink(t)

	e.clock.Advance(time.Hour + time.Second)
	_, err := e.svc.ResetPassword(ctx, link, "Xyz98765#", "Xyz98765#")
	require.ErrorIs(t, err, account.ErrTokenExpired)

	stored, err := e.repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, stored.HasPendingReset())
	assert.Nil(t, stored.TokenIssuedAt)
}

func TestResetPassword_SupersededLink(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.registerVerified(t, "alice")

	require.NoError(t, e.svc.ForgotPassword(ctx, "alice@example.com"))
	first := e.lastLink(t)
	e.clock.Advance(time.Second)
	require.NoError(t, e.svc.ForgotPassword(ctx, "alice@example.com"))

	_, err := e.svc.CheckResetToken(ctx, first)
	require.ErrorIs(t, err, account.ErrTokenInvalid)
	_, err = e.svc.CheckResetToken(ctx, e.lastLink(t))
	require.NoError(t, err)
}

func TestTokensAreBoundToTheirPurpose(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()

	e.register(t, "alice")
	verifyLink := e.lastLink(t)
	_, err := e.svc.CheckResetToken(ctx, verifyLink)
	require.ErrorIs(t, err, account.ErrTokenInvalid)

	_, err = e.svc.VerifyEmail(ctx, verifyLink)
	require.NoError(t, err)

	require.NoError(t, e.svc.ForgotPassword(ctx, "alice@example.com"))
	resetLink := e.lastLink(t)
	_, err = e.svc.VerifyEmail(ctx, resetLink)
	require.ErrorIs(t, err, account.ErrTokenInvalid)
}

func TestResetPassword_LiftsLockout(t *testing.T) {
	e := setup(t, account.Options{})
	ctx := context.Background()
	e.registerVerified(t, "bob")

	for range throttle.DefaultThreshold {
		_, _ = e.svc.Login(ctx, "bob", "wrong")
	}
	require.NoError(t, e.svc.ForgotPassword(ctx, "bob@example.com"))
	_, err := e.svc.ResetPassword(ctx, e.lastLink(t), "Xyz98765#", "Xyz98765#")
	require.NoError(t, err)

	_, err = e.svc.Login(ctx, "bob", "Xyz98765#")
	require.NoError(t, err)
}

func TestLockedError(t *testing.T) {
	err := &account.LockedError{Remaining: 90 * time.Second}

	assert.ErrorIs(t, err, account.ErrLocked)
	assert.Equal(t, 2, err.Minutes())
	assert.Contains(t, err.Error(), "1m30s")
}
