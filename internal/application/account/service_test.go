package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-accounts-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Save(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

type mockTokenSigner struct{ mock.Mock }

func (m *mockTokenSigner) SignAccess(userID string) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}
func (m *mockTokenSigner) SignRefresh(userID string) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}

// fakeNotifier records deliveries on a channel so tests can wait for the
// fire-and-forget goroutine without racing it.
type fakeNotifier struct {
	codes chan int
	err   error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{codes: make(chan int, 1)}
}

func (f *fakeNotifier) Deliver(_ context.Context, _ string, code int) error {
	f.codes <- code
	return f.err
}

func (f *fakeNotifier) waitForCode(t *testing.T) int {
	t.Helper()
	select {
	case code := <-f.codes:
		return code
	case <-time.After(2 * time.Second):
		t.Fatal("notifier was never called")
		return 0
	}
}

// memStore is an in-memory userStore for flow tests that span several operations.
type memStore struct {
	mu   sync.Mutex
	byID map[string]*domain.User
}

func newMemStore() *memStore {
	return &memStore{byID: make(map[string]*domain.User)}
}

func (m *memStore) Create(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == u.Email {
			return fmt.Errorf("user already exists: %w", domain.ErrConflict)
		}
	}
	cp := *u
	m.byID[u.UserID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, userID string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", email, domain.ErrNotFound)
}

func (m *memStore) Save(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.UserID]; !ok {
		return fmt.Errorf("user %s: %w", u.UserID, domain.ErrNotFound)
	}
	cp := *u
	m.byID[u.UserID] = &cp
	return nil
}

func newTestService(repo userStore, tokens tokenSigner, n notifier) Service {
	return NewService(ServiceDeps{UserRepo: repo, Tokens: tokens, Notifier: n})
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

// --- Register ---

func TestRegister_DuplicateEmail_ReturnsConflict(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{UserID: "u1", Email: "a@x.com"}, nil)

	svc := newTestService(us, nil, nil)
	err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!", ProfileImage: "img.png",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_EmailLookupFailure_DoesNotCreate(t *testing.T) {
	// A store failure during the uniqueness check is not a miss: the error
	// must surface and no record may be written.
	us := &mockUserStore{}
	storeErr := errors.New("dynamo: throughput exceeded")
	us.On("GetByEmail", mock.Anything, "a@x.com").Return((*domain.User)(nil), storeErr)

	svc := newTestService(us, nil, nil)
	err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, storeErr))
	assert.False(t, errors.Is(err, domain.ErrConflict))
	us.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_HappyPath(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	err := svc.Register(context.Background(), domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!", ProfileImage: "img.png",
	})
	require.NoError(t, err)

	u, err := store.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "img.png", u.ProfileImage)
	assert.False(t, u.EmailVerified)
	assert.False(t, u.ResetRequested)
	assert.Nil(t, u.PendingOTP)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("Passw0rd!")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("wrong")))
}

func TestRegister_SecondRegistrationLeavesFirstRecordUnchanged(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	first, err := store.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)

	err = svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "mallory", Password: "Other1234",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	after, err := store.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, first.Username, after.Username)
	assert.Equal(t, first.PasswordHash, after.PasswordHash)
}

// --- RequestEmailVerification ---

func TestRequestEmailVerification_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	svc := newTestService(us, nil, nil)
	err := svc.RequestEmailVerification(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRequestEmailVerification_StoresOTPAndNotifies(t *testing.T) {
	store := newMemStore()
	n := newFakeNotifier()
	svc := newTestService(store, nil, n)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	u, _ := store.GetByEmail(ctx, "a@x.com")

	require.NoError(t, svc.RequestEmailVerification(ctx, u.UserID))

	delivered := n.waitForCode(t)
	assert.GreaterOrEqual(t, delivered, 1000)
	assert.LessOrEqual(t, delivered, 9999)

	u, err := store.Get(ctx, u.UserID)
	require.NoError(t, err)
	require.NotNil(t, u.PendingOTP)
	assert.Equal(t, delivered, *u.PendingOTP)
}

func TestRequestEmailVerification_SecondRequestOverwritesCode(t *testing.T) {
	store := newMemStore()
	n := newFakeNotifier()
	svc := newTestService(store, nil, n)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	u, _ := store.GetByEmail(ctx, "a@x.com")

	require.NoError(t, svc.RequestEmailVerification(ctx, u.UserID))
	first := n.waitForCode(t)
	require.NoError(t, svc.RequestEmailVerification(ctx, u.UserID))
	second := n.waitForCode(t)

	u, err := store.Get(ctx, u.UserID)
	require.NoError(t, err)
	require.NotNil(t, u.PendingOTP)
	assert.Equal(t, second, *u.PendingOTP)

	// The first code is only valid if the generator happened to repeat itself.
	if first != second {
		err = svc.VerifyEmailOTP(ctx, u.UserID, first)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrNotAcceptable))
	}
}

func TestRequestEmailVerification_DeliveryFailureDoesNotFailOperation(t *testing.T) {
	store := newMemStore()
	n := newFakeNotifier()
	n.err = errors.New("smtp down")
	svc := newTestService(store, nil, n)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	u, _ := store.GetByEmail(ctx, "a@x.com")

	require.NoError(t, svc.RequestEmailVerification(ctx, u.UserID))
	n.waitForCode(t)

	u, err := store.Get(ctx, u.UserID)
	require.NoError(t, err)
	assert.NotNil(t, u.PendingOTP)
}

// --- VerifyEmailOTP ---

func TestVerifyEmailOTP_Match_VerifiesAndClearsCode(t *testing.T) {
	store := newMemStore()
	n := newFakeNotifier()
	svc := newTestService(store, nil, n)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	u, _ := store.GetByEmail(ctx, "a@x.com")
	require.NoError(t, svc.RequestEmailVerification(ctx, u.UserID))
	code := n.waitForCode(t)

	require.NoError(t, svc.VerifyEmailOTP(ctx, u.UserID, code))

	u, err := store.Get(ctx, u.UserID)
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
	assert.Nil(t, u.PendingOTP)

	// The code is single-use: replaying it must fail.
	err = svc.VerifyEmailOTP(ctx, u.UserID, code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotAcceptable))
}

func TestVerifyEmailOTP_Mismatch_LeavesRecordUnchanged(t *testing.T) {
	store := newMemStore()
	n := newFakeNotifier()
	svc := newTestService(store, nil, n)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	u, _ := store.GetByEmail(ctx, "a@x.com")
	require.NoError(t, svc.RequestEmailVerification(ctx, u.UserID))
	code := n.waitForCode(t)

	wrong := code + 1
	if wrong > 9999 {
		wrong = 1000
	}
	err := svc.VerifyEmailOTP(ctx, u.UserID, wrong)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotAcceptable))

	u, _ = store.Get(ctx, u.UserID)
	assert.False(t, u.EmailVerified)
	require.NotNil(t, u.PendingOTP)
	assert.Equal(t, code, *u.PendingOTP)

	// The stored code still works.
	require.NoError(t, svc.VerifyEmailOTP(ctx, u.UserID, code))
}

func TestVerifyEmailOTP_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	svc := newTestService(us, nil, nil)
	err := svc.VerifyEmailOTP(context.Background(), "missing", 1234)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

// --- Login ---

func TestLogin_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "x@x.com").Return(nil, domain.ErrNotFound)

	svc := newTestService(us, nil, nil)
	_, err := svc.Login(context.Background(), "x@x.com", "Passw0rd!")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestLogin_WrongPassword(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{
		UserID:       "u1",
		Email:        "a@x.com",
		PasswordHash: hashOf(t, "Passw0rd!"),
	}, nil)

	svc := newTestService(us, nil, nil)
	_, err := svc.Login(context.Background(), "a@x.com", "wrongpass1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotAcceptable))
}

func TestLogin_HappyPath_ReturnsBothTokens(t *testing.T) {
	us := &mockUserStore{}
	ts := &mockTokenSigner{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{
		UserID:       "u1",
		Email:        "a@x.com",
		PasswordHash: hashOf(t, "Passw0rd!"),
	}, nil)
	ts.On("SignAccess", "u1").Return("access.u1", nil)
	ts.On("SignRefresh", "u1").Return("refresh.u1", nil)

	svc := newTestService(us, ts, nil)
	result, err := svc.Login(context.Background(), "a@x.com", "Passw0rd!")

	require.NoError(t, err)
	assert.Equal(t, "access.u1", result.AccessToken)
	assert.Equal(t, "refresh.u1", result.RefreshToken)
	assert.NotEqual(t, result.AccessToken, result.RefreshToken)
	ts.AssertExpectations(t)
}

// --- Password reset flow ---

func TestVerifyPasswordResetOTP_Match_SetsFlagsAndClearsCode(t *testing.T) {
	store := newMemStore()
	n := newFakeNotifier()
	svc := newTestService(store, nil, n)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	code := n.waitForCode(t)

	require.NoError(t, svc.VerifyPasswordResetOTP(ctx, "a@x.com", code))

	u, err := store.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, u.ResetRequested)
	assert.True(t, u.EmailVerified)
	assert.Nil(t, u.PendingOTP)
}

func TestVerifyPasswordResetOTP_Mismatch(t *testing.T) {
	store := newMemStore()
	n := newFakeNotifier()
	svc := newTestService(store, nil, n)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	code := n.waitForCode(t)

	wrong := code + 1
	if wrong > 9999 {
		wrong = 1000
	}
	err := svc.VerifyPasswordResetOTP(ctx, "a@x.com", wrong)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotAcceptable))

	u, _ := store.GetByEmail(ctx, "a@x.com")
	assert.False(t, u.ResetRequested)
}

func TestResetPassword_WithoutVerifiedOTP_ReturnsBadRequest(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "a@x.com").Return(&domain.User{
		UserID:         "u1",
		Email:          "a@x.com",
		PasswordHash:   hashOf(t, "Passw0rd!"),
		ResetRequested: false,
	}, nil)

	svc := newTestService(us, nil, nil)
	err := svc.ResetPassword(context.Background(), "a@x.com", "NewPassw0rd!")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
	us.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestResetPassword_FullFlow(t *testing.T) {
	store := newMemStore()
	n := newFakeNotifier()
	svc := newTestService(store, nil, n)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	require.NoError(t, svc.RequestPasswordReset(ctx, "a@x.com"))
	code := n.waitForCode(t)
	require.NoError(t, svc.VerifyPasswordResetOTP(ctx, "a@x.com", code))

	require.NoError(t, svc.ResetPassword(ctx, "a@x.com", "NewPassw0rd!"))

	u, err := store.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, u.ResetRequested)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("NewPassw0rd!")))
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("Passw0rd!")))

	// The reset capability is consumed: a second reset needs a fresh OTP.
	err = svc.ResetPassword(ctx, "a@x.com", "ThirdPassw0rd!")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

// --- ChangePassword ---

func TestChangePassword_WrongCurrentPassword(t *testing.T) {
	hash := hashOf(t, "Passw0rd!")
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{
		UserID:       "u1",
		PasswordHash: hash,
	}, nil)

	svc := newTestService(us, nil, nil)
	err := svc.ChangePassword(context.Background(), "u1", "wrongpass1", "NewPassw0rd!")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	us.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestChangePassword_HappyPath(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.Register(ctx, domain.RegisterRequest{
		Email: "a@x.com", Username: "alice", Password: "Passw0rd!",
	}))
	u, _ := store.GetByEmail(ctx, "a@x.com")

	require.NoError(t, svc.ChangePassword(ctx, u.UserID, "Passw0rd!", "NewPassw0rd!"))

	u, err := store.Get(ctx, u.UserID)
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("NewPassw0rd!")))
}

func TestChangePassword_UserNotFound(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "missing").Return(nil, domain.ErrNotFound)

	svc := newTestService(us, nil, nil)
	err := svc.ChangePassword(context.Background(), "missing", "Passw0rd!", "NewPassw0rd!")

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
