package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/niramay/internal/database"
	"github.com/dukerupert/niramay/internal/model"
)

func setup(t *testing.T) *Service {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(db).WithCost(bcrypt.MinCost)
}

func TestSignUpThenFirstSignInCreatesProfile(t *testing.T) {
	s := setup(t)

	u, err := s.SignUp("Asha@Example.com", "correct horse", model.SignupMetadata{
		Name: "Asha", Phone: "9800000001", Address: "12 MG Road, Bengaluru", Ward: "Ward 5",
		Role: model.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	p, err := s.profiles.GetByID(u.ID)
	require.NoError(t, err)
	assert.Nil(t, p, "profile should not exist before first sign-in")

	p, err = s.SignIn("asha@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, model.RoleCitizen, p.Role, "self sign-up cannot choose a role")
	assert.Equal(t, "Asha", p.Name)
	assert.Equal(t, "Ward 5", p.Ward)
	assert.Equal(t, "12 MG Road, Bengaluru", p.Address)

	again, err := s.SignIn("asha@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestSignUpDuplicate(t *testing.T) {
	s := setup(t)
	_, err := s.SignUp("asha@example.com", "password1", model.SignupMetadata{Name: "Asha"})
	require.NoError(t, err)

	_, err = s.SignUp("ASHA@example.com", "password2", model.SignupMetadata{Name: "Asha"})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	s := setup(t)
	_, err := s.SignUp("asha@example.com", "password1", model.SignupMetadata{Name: "Asha"})
	require.NoError(t, err)

	_, err = s.SignIn("asha@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.SignIn("nobody@example.com", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestCreateWithProfile(t *testing.T) {
	s := setup(t)

	p, err := s.CreateWithProfile("ravi@example.com", "password1", model.SignupMetadata{
		Name: "Ravi", Role: model.RoleSubworker, Ward: "Ward 5", AssignedWard: "Ward 5, Ward 6",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleSubworker, p.Role)
	assert.Equal(t, model.WorkerAvailable, p.Status)
	assert.Equal(t, "Ward 5, Ward 6", p.AssignedWard)

	_, err = s.CreateWithProfile("ravi@example.com", "password1", model.SignupMetadata{Role: model.RoleSubworker})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = s.CreateWithProfile("x@example.com", "password1", model.SignupMetadata{Role: "mayor"})
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestProfileNameFallsBackToEmail(t *testing.T) {
	p := profileFrom(&model.User{ID: 4, Email: "meera@example.com"})
	assert.Equal(t, "meera", p.Name)
	assert.Equal(t, model.RoleCitizen, p.Role)
}
