// Package sftp implements filestore.Store for SSH file servers.
//
// The credential's bucket names the root directory; "buckets" are the
// directories directly below it. Each operation opens its own SSH session
// and closes it before returning.
package sftp

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/logger"
)

const (
	provider = string(credential.ProviderSFTP)

	dialTimeout = 30 * time.Second
)

// Dialer opens an SFTP session. The returned Closer ends the session and
// everything beneath it.
type Dialer func(ctx context.Context, cred *credential.Credential) (*sftp.Client, io.Closer, error)

// Store is the SFTP implementation of filestore.Store.
type Store struct {
	cred *credential.Credential
	opts filestore.Options
	log  *logger.Logger
	dial Dialer
	root string
}

var _ filestore.Store = (*Store)(nil)

// New creates a store that dials cred.Host over SSH.
func New(cred *credential.Credential, opts filestore.Options, env filestore.Env) (*Store, error) {
	env = env.Defaults()
	log := env.Log.WithProvider(provider)
	return NewWithDialer(cred, opts, env, SSHDialer(log))
}

// NewWithDialer creates a store that opens sessions with dial.
func NewWithDialer(cred *credential.Credential, opts filestore.Options, env filestore.Env, dial Dialer) (*Store, error) {
	if cred == nil || cred.Provider != credential.ProviderSFTP {
		return nil, errs.Invalid(provider, "credential is not an sftp credential")
	}
	env = env.Defaults()
	root := strings.TrimSpace(cred.Bucket)
	if root == "" {
		root = "."
	}
	return &Store{
		cred: cred,
		opts: opts,
		log:  env.Log.WithProvider(provider),
		dial: dial,
		root: root,
	}, nil
}

func (s *Store) Provider() credential.Provider { return credential.ProviderSFTP }

// SSHDialer connects over TCP and authenticates with the credential's
// password or private key.
func SSHDialer(log *logger.Logger) Dialer {
	return func(ctx context.Context, cred *credential.Credential) (*sftp.Client, io.Closer, error) {
		cfg, err := clientConfig(cred, log)
		if err != nil {
			return nil, nil, err
		}
		addr := net.JoinHostPort(cred.Host, strconv.Itoa(cred.Port))

		d := net.Dialer{Timeout: dialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, nil, errs.Transport("Connect", addr, err)
		}
		if deadline, ok := ctx.Deadline(); ok {
			_ = conn.SetDeadline(deadline)
		}

		sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
		if err != nil {
			conn.Close()
			return nil, nil, handshakeError(err)
		}
		client := ssh.NewClient(sshConn, chans, reqs)

		sc, err := sftp.NewClient(client)
		if err != nil {
			client.Close()
			return nil, nil, errs.Transport("Connect", addr, err)
		}
		return sc, closers{sc, client}, nil
	}
}

func clientConfig(cred *credential.Credential, log *logger.Logger) (*ssh.ClientConfig, error) {
	cfg := &ssh.ClientConfig{User: cred.Username, Timeout: dialTimeout}

	switch cred.Mode {
	case credential.ModePrivateKey:
		signer, err := ssh.ParsePrivateKey([]byte(cred.PrivateKey))
		if err != nil {
			return nil, errs.Invalid(provider, "privateKey is not a valid ssh private key")
		}
		cfg.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case credential.ModePassword:
		cfg.Auth = []ssh.AuthMethod{ssh.Password(cred.Password)}
	default:
		return nil, errs.Missing(provider, "password")
	}

	if cred.HostKey == "" {
		log.WarnWith("host key not pinned, accepting any server key", nil, map[string]interface{}{"host": cred.Host})
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey()
		return cfg, nil
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(cred.HostKey))
	if err != nil {
		return nil, errs.Invalid(provider, "hostKey is not an authorized_keys line")
	}
	cfg.HostKeyCallback = ssh.FixedHostKey(key)
	return cfg, nil
}

func handshakeError(err error) error {
	if strings.Contains(err.Error(), "unable to authenticate") {
		return &errs.ProviderError{
			Kind:     errs.KindAuthentication,
			Provider: provider,
			Op:       "Connect",
			Message:  err.Error(),
		}
	}
	if strings.Contains(err.Error(), "host key mismatch") {
		return &errs.ProviderError{
			Kind:     errs.KindPermission,
			Provider: provider,
			Op:       "Connect",
			Code:     "HostKeyMismatch",
			Message:  err.Error(),
		}
	}
	return errs.Transport("Connect", "", err)
}

// closers closes in order and reports the first failure.
type closers []io.Closer

func (c closers) Close() error {
	var first error
	for _, cl := range c {
		if err := cl.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// session runs fn with a fresh client.
func (s *Store) session(ctx context.Context, op string, fn func(*sftp.Client) error) error {
	client, closer, err := s.dial(ctx, s.cred)
	if err != nil {
		return errs.WithOp(err, op)
	}
	defer closer.Close()

	start := time.Now()
	err = fn(client)
	s.log.DebugWith("sftp session", map[string]interface{}{
		"op":   op,
		"took": time.Since(start).String(),
	})
	return mapError(err, op)
}

// abs joins the root with a cleaned remote path.
func (s *Store) abs(p string) string {
	return path.Join(s.root, filestore.CleanKey(p))
}

func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	var pe *errs.ProviderError
	var te *errs.TransportError
	if errors.As(err, &pe) || errors.As(err, &te) {
		return err
	}

	kind := errs.KindUnknown
	switch {
	case errors.Is(err, os.ErrNotExist):
		kind = errs.KindNotFound
	case errors.Is(err, os.ErrPermission):
		kind = errs.KindPermission
	case errors.Is(err, os.ErrExist):
		kind = errs.KindConflict
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return errs.Transport(op, "", err)
	}
	return &errs.ProviderError{Kind: kind, Provider: provider, Op: op, Message: err.Error()}
}
