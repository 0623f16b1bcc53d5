package identity_test

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/trailsafe/internal/mocks"
	"github.com/benmeehan/trailsafe/pkg/file"
	"github.com/benmeehan/trailsafe/pkg/identity"
)

func TestLoadUserInfoMissingFile(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("ReadJsonFile", "user.json", mock.Anything).Return(fs.ErrNotExist)

	u := identity.NewUserInfo("user.json", fileOps)
	require.NoError(t, u.LoadUserInfo())
	assert.Empty(t, u.GetUserID())
}

func TestLoadUserInfoError(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("ReadJsonFile", "user.json", mock.Anything).Return(errors.New("corrupt"))

	u := identity.NewUserInfo("user.json", fileOps)
	assert.EqualError(t, u.LoadUserInfo(), "corrupt")
}

func TestSaveAndReloadIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session", "user.json")
	fileOps := file.NewFileService()

	u := identity.NewUserInfo(path, fileOps)
	require.NoError(t, u.SaveIdentity(identity.Identity{UserID: " uid-42 ", Email: "hiker@example.com"}))
	assert.Equal(t, "uid-42", u.GetUserID())

	reloaded := identity.NewUserInfo(path, fileOps)
	require.NoError(t, reloaded.LoadUserInfo())
	assert.Equal(t, "uid-42", reloaded.GetUserID())
	assert.Equal(t, "hiker@example.com", reloaded.GetIdentity().Email)
}

func TestSaveIdentityRequiresUserID(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	u := identity.NewUserInfo("user.json", fileOps)

	assert.Error(t, u.SaveIdentity(identity.Identity{Email: "x@example.com"}))
	fileOps.AssertNotCalled(t, "WriteJsonFile", mock.Anything, mock.Anything)
}
