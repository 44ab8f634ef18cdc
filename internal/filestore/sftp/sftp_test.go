package sftp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/logger"
)

type rwc struct {
	io.Reader
	io.WriteCloser
}

// pipeDialer serves each session from an in-process SFTP server backed by
// the local filesystem.
func pipeDialer(t *testing.T, sessions *int) Dialer {
	return func(context.Context, *credential.Credential) (*sftp.Client, io.Closer, error) {
		*sessions++
		clientRead, serverWrite := io.Pipe()
		serverRead, clientWrite := io.Pipe()

		server, err := sftp.NewServer(rwc{serverRead, serverWrite})
		require.NoError(t, err)
		go func() { _ = server.Serve() }()

		client, err := sftp.NewClientPipe(clientRead, clientWrite)
		require.NoError(t, err)
		return client, closers{client, server}, nil
	}
}

func newTestStore(t *testing.T, root string, sessions *int) *Store {
	t.Helper()
	if sessions == nil {
		sessions = new(int)
	}
	st, err := NewWithDialer(&credential.Credential{
		Provider: credential.ProviderSFTP,
		Mode:     credential.ModePassword,
		Host:     "files.example.com",
		Port:     22,
		Username: "deploy",
		Password: "pw",
		Bucket:   root,
	}, filestore.DefaultOptions(), filestore.Env{Log: logger.Nop()}, pipeDialer(t, sessions))
	require.NoError(t, err)
	return st
}

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestListContents(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "reports", "q1.pdf"), "pdf")
	writeFile(t, filepath.Join(root, "reports", "q2.pdf"), "pdf2")
	writeFile(t, filepath.Join(root, "reports", "2024", "jan.csv"), "a,b")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "reports", "archive"), 0o755))

	sessions := 0
	st := newTestStore(t, root, &sessions)

	view, err := st.ListContents(context.Background(), filestore.ListRequest{Prefix: "/reports"})
	require.NoError(t, err)
	assert.Equal(t, "reports/", view.Path)
	assert.False(t, view.Truncated)

	var folders, files []string
	for _, f := range view.Folders {
		folders = append(folders, f.Name)
	}
	for _, f := range view.Files {
		files = append(files, f.Name)
	}
	assert.Equal(t, []string{"2024", "archive"}, folders)
	assert.Equal(t, []string{"q1.pdf", "q2.pdf"}, files)
	assert.Equal(t, int64(4), view.Files[1].Size)
	assert.Equal(t, 1, sessions)
}

func TestListContents_Pages(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a.txt", "b.txt", "c.txt"} {
		writeFile(t, filepath.Join(root, n), n)
	}
	st := newTestStore(t, root, nil)
	ctx := context.Background()

	view, err := st.ListContents(ctx, filestore.ListRequest{PageLimit: 2})
	require.NoError(t, err)
	assert.True(t, view.Truncated)
	assert.Equal(t, "b.txt", view.NextToken)
	assert.Len(t, view.Files, 2)

	view, err = st.ListContents(ctx, filestore.ListRequest{PageLimit: 2, Token: view.NextToken})
	require.NoError(t, err)
	assert.False(t, view.Truncated)
	assert.Empty(t, view.NextToken)
	require.Len(t, view.Files, 1)
	assert.Equal(t, "c.txt", view.Files[0].Name)
}

func TestUploadDownload(t *testing.T) {
	root := t.TempDir()
	st := newTestStore(t, root, nil)
	ctx := context.Background()

	res, err := st.UploadFile(ctx, []byte(`{"ok":true}`), "exports/2024/run.json")
	require.NoError(t, err)
	assert.Equal(t, "exports/2024/run.json", res.Path)
	assert.Equal(t, "application/json", res.ContentType)

	onDisk, err := os.ReadFile(filepath.Join(root, "exports", "2024", "run.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(onDisk))

	data, err := st.DownloadFile(ctx, "exports/2024/run.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	_, err = st.DownloadFile(ctx, "exports/missing.json")
	require.Error(t, err)
	assert.True(t, errs.IsNotFound(err))
}

func TestBuckets(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "inbox"), 0o755))
	writeFile(t, filepath.Join(root, "readme.txt"), "x")
	st := newTestStore(t, root, nil)
	ctx := context.Background()

	require.NoError(t, st.CreateBucket(ctx, "outbox/"))
	assert.True(t, errs.IsConflict(st.CreateBucket(ctx, "inbox")))
	assert.True(t, errs.IsMalformedRequest(st.CreateBucket(ctx, "a/b")))

	buckets, err := st.ListBuckets(ctx)
	require.NoError(t, err)
	var names []string
	for _, b := range buckets {
		names = append(names, b.Name)
	}
	assert.Equal(t, []string{"inbox", "outbox"}, names)
}

func TestTestConnection(t *testing.T) {
	root := t.TempDir()
	res := newTestStore(t, root, nil).TestConnection(context.Background())
	assert.True(t, res.Success, res.Message)

	res = newTestStore(t, filepath.Join(root, "nope"), nil).TestConnection(context.Background())
	assert.False(t, res.Success)
}

func TestGetSignedURLUnsupported(t *testing.T) {
	sessions := 0
	st := newTestStore(t, t.TempDir(), &sessions)
	_, err := st.GetSignedURL(context.Background(), "a.txt", 0)
	assert.True(t, errs.IsUnsupported(err))
	assert.Zero(t, sessions)
}

func TestClientConfig(t *testing.T) {
	log := logger.Nop()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(pub)
	require.NoError(t, err)

	cred := &credential.Credential{
		Provider:   credential.ProviderSFTP,
		Mode:       credential.ModePrivateKey,
		Username:   "deploy",
		PrivateKey: string(pem.EncodeToMemory(block)),
		HostKey:    string(ssh.MarshalAuthorizedKey(sshPub)),
	}
	cfg, err := clientConfig(cred, log)
	require.NoError(t, err)
	assert.Equal(t, "deploy", cfg.User)
	assert.Len(t, cfg.Auth, 1)
	assert.NoError(t, cfg.HostKeyCallback("h:22", nil, sshPub))

	otherPub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	other, err := ssh.NewPublicKey(otherPub)
	require.NoError(t, err)
	assert.Error(t, cfg.HostKeyCallback("h:22", nil, other))

	bad := *cred
	bad.PrivateKey = "not a key"
	_, err = clientConfig(&bad, log)
	assert.True(t, errs.IsResolution(err))

	bad = *cred
	bad.HostKey = "garbage"
	_, err = clientConfig(&bad, log)
	assert.True(t, errs.IsResolution(err))

	pw := &credential.Credential{Provider: credential.ProviderSFTP, Mode: credential.ModePassword, Username: "u", Password: "p"}
	cfg, err = clientConfig(pw, log)
	require.NoError(t, err)
	assert.Len(t, cfg.Auth, 1)
	assert.NotNil(t, cfg.HostKeyCallback)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil, "x"))
	assert.True(t, errs.IsNotFound(mapError(os.ErrNotExist, "x")))
	assert.True(t, errs.IsPermission(mapError(os.ErrPermission, "x")))
	assert.True(t, errs.IsTransport(mapError(io.ErrUnexpectedEOF, "x")))

	authFail := errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain")
	assert.True(t, errs.IsAuthentication(handshakeError(authFail)))
	assert.True(t, errs.IsTransport(handshakeError(io.EOF)))
}
