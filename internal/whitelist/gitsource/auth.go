package gitsource

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"

	"ipward/internal/errs"
)

// AuthProvider produces the go-git transport auth method for one of the
// configured auth types (SPEC_FULL.md §11's whitelist.git.auth_type).
type AuthProvider interface {
	GetAuth() (transport.AuthMethod, error)
}

// NoAuth is used for public repositories.
type NoAuth struct{}

func (NoAuth) GetAuth() (transport.AuthMethod, error) { return nil, nil }

// TokenAuth authenticates over HTTPS with a personal access token as the
// basic-auth password; the username is conventionally ignored by the
// hosting service.
type TokenAuth struct{ Token string }

func (a TokenAuth) GetAuth() (transport.AuthMethod, error) {
	if a.Token == "" {
		return nil, &errs.ConfigurationError{Component: component, Field: "git.token", Message: "must not be empty for auth_type=token"}
	}
	return &http.BasicAuth{Username: "git", Password: a.Token}, nil
}

// SSHKeyAuth authenticates with a private key file.
type SSHKeyAuth struct{ KeyPath string }

func (a SSHKeyAuth) GetAuth() (transport.AuthMethod, error) {
	if a.KeyPath == "" {
		return nil, &errs.ConfigurationError{Component: component, Field: "git.ssh_key_path", Message: "must not be empty for auth_type=ssh"}
	}
	if _, err := os.Stat(a.KeyPath); err != nil {
		return nil, &errs.ConfigurationError{Component: component, Field: "git.ssh_key_path", Message: fmt.Sprintf("cannot access key file: %v", err)}
	}
	auth, err := ssh.NewPublicKeysFromFile("git", a.KeyPath, "")
	if err != nil {
		return nil, &errs.ConfigurationError{Component: component, Field: "git.ssh_key_path", Message: err.Error()}
	}
	return auth, nil
}

// NewAuthProvider resolves authType ("none", "token", "ssh") to a provider.
func NewAuthProvider(authType, token, sshKeyPath string) (AuthProvider, error) {
	switch authType {
	case "", "none":
		return NoAuth{}, nil
	case "token":
		return TokenAuth{Token: token}, nil
	case "ssh":
		return SSHKeyAuth{KeyPath: sshKeyPath}, nil
	default:
		return nil, &errs.ConfigurationError{Component: component, Field: "git.auth_type", Message: "must be one of none, token, ssh"}
	}
}
