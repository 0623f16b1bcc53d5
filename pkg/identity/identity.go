package identity

import (
	"errors"
	"os"
	"strings"

	"github.com/benmeehan/trailsafe/pkg/file"
)

// Identity is the signed-in user as recorded by the identity provider's session file.
type Identity struct {
	UserID      string `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// UserInfoInterface defines methods for managing the signed-in user.
type UserInfoInterface interface {
	LoadUserInfo() error
	SaveIdentity(identity Identity) error
	GetUserID() string
	GetIdentity() *Identity
}

// UserInfo manages the user identity and its backing file.
type UserInfo struct {
	UserInfoFile string
	Identity     Identity
	fileOps      file.FileOperations
}

// NewUserInfo initializes a new UserInfo instance.
func NewUserInfo(filePath string, fileOps file.FileOperations) UserInfoInterface {
	return &UserInfo{
		UserInfoFile: filePath,
		fileOps:      fileOps,
	}
}

// LoadUserInfo reads the identity file. A missing file leaves the identity
// empty, which makes every device-store call fail with a missing-user error.
func (u *UserInfo) LoadUserInfo() error {
	err := u.fileOps.ReadJsonFile(u.UserInfoFile, &u.Identity)
	if err != nil {
		if os.IsNotExist(err) {
			u.Identity = Identity{}
			return nil
		}
		return err
	}
	u.Identity.UserID = strings.TrimSpace(u.Identity.UserID)
	return nil
}

func (u *UserInfo) GetIdentity() *Identity {
	return &u.Identity
}

func (u *UserInfo) GetUserID() string {
	return u.Identity.UserID
}

// SaveIdentity replaces the stored identity.
func (u *UserInfo) SaveIdentity(identity Identity) error {
	identity.UserID = strings.TrimSpace(identity.UserID)
	if identity.UserID == "" {
		return errors.New("user id is required")
	}
	if err := u.fileOps.WriteJsonFile(u.UserInfoFile, identity); err != nil {
		return err
	}
	u.Identity = identity
	return nil
}
