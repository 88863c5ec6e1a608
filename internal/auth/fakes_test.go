package auth

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start.UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memoryCredentialStore keys users by username and software id and keeps
// workspaces per software id in insertion order.
type memoryCredentialStore struct {
	mu           sync.Mutex
	users        map[string]UserCredential
	workspaces   map[int64][]Workspace
	lockUpdates  int
	resets       int
	findErr      error
	updateErr    error
	workspaceErr error
}

func newMemoryCredentialStore() *memoryCredentialStore {
	return &memoryCredentialStore{
		users:      make(map[string]UserCredential),
		workspaces: make(map[int64][]Workspace),
	}
}

func userKey(username string, softwareID int64) string {
	return fmt.Sprintf("%s|%d", username, softwareID)
}

func (s *memoryCredentialStore) put(user UserCredential) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userKey(user.Username, user.SoftwareID)] = user
}

func (s *memoryCredentialStore) addWorkspace(softwareID int64, ws Workspace) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workspaces[softwareID] = append(s.workspaces[softwareID], ws)
}

func (s *memoryCredentialStore) setWorkspaceStatus(softwareID int64, workspaceID string, status, employeeStatus int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ws := range s.workspaces[softwareID] {
		if ws.ID == workspaceID {
			s.workspaces[softwareID][i].Status = status
			s.workspaces[softwareID][i].EmployeeActiveStatus = employeeStatus
		}
	}
}

func (s *memoryCredentialStore) user(username string, softwareID int64) UserCredential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[userKey(username, softwareID)]
}

func (s *memoryCredentialStore) FindByUsername(_ context.Context, username string, softwareID int64) (UserCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return UserCredential{}, s.findErr
	}
	user, ok := s.users[userKey(username, softwareID)]
	if !ok {
		return UserCredential{}, ErrNotFound
	}
	return user, nil
}

func (s *memoryCredentialStore) UpdateLockState(_ context.Context, userID string, state LockState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.lockUpdates++
	for key, user := range s.users {
		if user.ID == userID {
			user.Lock = state
			s.users[key] = user
		}
	}
	return nil
}

func (s *memoryCredentialStore) ResetLock(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.resets++
	for key, user := range s.users {
		if user.ID == userID {
			user.Lock = LockState{}
			s.users[key] = user
		}
	}
	return nil
}

func (s *memoryCredentialStore) FindWorkspaces(_ context.Context, username string, softwareID int64, statuses []int) ([]Workspace, error) {
	s.mu.Lock()
	user, ok := s.users[userKey(username, softwareID)]
	s.mu.Unlock()
	if !ok {
		return []Workspace{}, nil
	}
	return s.FindWorkspacesByUserID(context.Background(), user.ID, softwareID, statuses)
}

func (s *memoryCredentialStore) FindWorkspacesByUserID(_ context.Context, userID string, softwareID int64, statuses []int) ([]Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspaceErr != nil {
		return nil, s.workspaceErr
	}
	found := make([]Workspace, 0)
	for _, ws := range s.workspaces[softwareID] {
		if ws.UserID == userID && slices.Contains(statuses, ws.Status) {
			found = append(found, ws)
		}
	}
	return found, nil
}

func (s *memoryCredentialStore) FindWorkspace(_ context.Context, workspaceID string, softwareID int64) (Workspace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.workspaceErr != nil {
		return Workspace{}, s.workspaceErr
	}
	for _, ws := range s.workspaces[softwareID] {
		if ws.ID == workspaceID {
			return ws, nil
		}
	}
	return Workspace{}, ErrNotFound
}

// memoryRefreshStore serializes WithinTx calls and restores its snapshot when
// fn fails, which is what a row-locking database transaction gives the rotator.
type memoryRefreshStore struct {
	txMu    sync.Mutex
	mu      sync.Mutex
	records map[string]RefreshTokenRecord
	saveErr error
	findErr error
}

func newMemoryRefreshStore() *memoryRefreshStore {
	return &memoryRefreshStore{records: make(map[string]RefreshTokenRecord)}
}

func (s *memoryRefreshStore) Save(_ context.Context, record RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	for _, existing := range s.records {
		if existing.TokenHash == record.TokenHash {
			return errors.New("duplicate token hash")
		}
	}
	s.records[record.ID] = record
	return nil
}

func (s *memoryRefreshStore) FindValid(_ context.Context, tokenHash, userID string) (RefreshTokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return RefreshTokenRecord{}, s.findErr
	}
	for _, record := range s.records {
		if record.TokenHash == tokenHash && record.UserID == userID && !record.Revoked {
			return record, nil
		}
	}
	return RefreshTokenRecord{}, ErrNotFound
}

func (s *memoryRefreshStore) RevokeIfNotRevoked(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok || record.Revoked {
		return false, nil
	}
	record.Revoked = true
	s.records[id] = record
	return true, nil
}

func (s *memoryRefreshStore) RevokeByHash(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, record := range s.records {
		if record.TokenHash == tokenHash && !record.Revoked {
			record.Revoked = true
			s.records[id] = record
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryRefreshStore) WithinTx(_ context.Context, fn func(RefreshTokenStore) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := maps.Clone(s.records)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.records = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memoryRefreshStore) all() []RefreshTokenRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := slices.Collect(maps.Values(s.records))
	slices.SortFunc(records, func(a, b RefreshTokenRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return records
}

func (s *memoryRefreshStore) byHash(tokenHash string) (RefreshTokenRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.TokenHash == tokenHash {
			return record, true
		}
	}
	return RefreshTokenRecord{}, false
}

type staticPermissions struct {
	mu      sync.Mutex
	byID    map[string][]string
	err     error
	lookups int
}

func newStaticPermissions() *staticPermissions {
	return &staticPermissions{byID: make(map[string][]string)}
}

func (p *staticPermissions) set(workspaceID string, permissions ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[workspaceID] = permissions
}

func (p *staticPermissions) ForWorkspace(_ context.Context, workspaceID string, _ int64) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lookups++
	if p.err != nil {
		return nil, p.err
	}
	return p.byID[workspaceID], nil
}

type recordingRecorder struct {
	mu        sync.Mutex
	logins    []string
	refreshes []string
}

func (r *recordingRecorder) LoginOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins = append(r.logins, outcome)
}

func (r *recordingRecorder) RefreshOutcome(outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes = append(r.refreshes, outcome)
}

type failingHasher struct{}

func (failingHasher) Hash(string) (string, error)         { return "", errors.New("hash failed") }
func (failingHasher) Verify(string, string) (bool, error) { return false, ErrInvalidHash }

type testEnv struct {
	clock       *fakeClock
	credentials *memoryCredentialStore
	refresh     *memoryRefreshStore
	permissions *staticPermissions
	hasher      *Hasher
	signer      *JWTSigner
	recorder    *recordingRecorder
	service     *Service
}

const testSecret = "test-secret-with-enough-entropy-0123456789"

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := newFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	hasher, err := NewHasher(AlgorithmBcrypt, WithBcryptCost(bcrypt.MinCost))
	require.NoError(t, err)
	signer, err := NewJWTSigner(testSecret, WithIssuer("workspace-auth-test"), WithSignerClock(clock.Now))
	require.NoError(t, err)

	env := &testEnv{
		clock:       clock,
		credentials: newMemoryCredentialStore(),
		refresh:     newMemoryRefreshStore(),
		permissions: newStaticPermissions(),
		hasher:      hasher,
		signer:      signer,
		recorder:    &recordingRecorder{},
	}
	env.service = NewService(Dependencies{
		Credentials:   env.credentials,
		RefreshTokens: env.refresh,
		Permissions:   env.permissions,
		Hasher:        env.hasher,
		Signer:        env.signer,
	}, DefaultTokenPolicy(), WithClock(clock.Now), WithRecorder(env.recorder))

	return env
}

func (e *testEnv) addUser(t *testing.T, username, password string, softwareID int64) UserCredential {
	t.Helper()

	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	user := UserCredential{
		ID:           "user-" + username,
		Username:     username,
		SoftwareID:   softwareID,
		PasswordHash: hash,
		CreatedAt:    e.clock.Now(),
		UpdatedAt:    e.clock.Now(),
	}
	e.credentials.put(user)
	return user
}

func (e *testEnv) addWorkspace(softwareID int64, userID, workspaceID, tenantID string) Workspace {
	ws := Workspace{
		ID:                   workspaceID,
		UserID:               userID,
		TenantID:             tenantID,
		TenantName:           "Tenant " + tenantID,
		EmployeeID:           "emp-" + workspaceID,
		BranchID:             "branch-" + workspaceID,
		Status:               StatusActive,
		EmployeeActiveStatus: StatusActive,
	}
	e.credentials.addWorkspace(softwareID, ws)
	return ws
}

func (e *testEnv) verifyClaims(t *testing.T, token string) Claims {
	t.Helper()

	claims, err := e.signer.Verify(token)
	require.NoError(t, err)
	return claims
}
