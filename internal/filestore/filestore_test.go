package filestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/cloudbox/internal/errs"
)

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", ContentType("reports/q1.pdf"))
	assert.Equal(t, "application/octet-stream", ContentType("reports/README"))
	assert.Equal(t, "application/octet-stream", ContentType("blob.zzunknown"))
}

func TestCleanKey(t *testing.T) {
	tests := map[string]string{
		"":                  "",
		"/":                 "",
		"/reports/q1.pdf":   "reports/q1.pdf",
		"reports//q1.pdf":   "reports/q1.pdf",
		"reports/":          "reports/",
		"../etc/passwd":     "etc/passwd",
		"a/./b/../c.txt":    "a/c.txt",
		"   ":               "",
		"reports/ a.csv ":   "reports/ a.csv ",
		"/ lead.txt":        " lead.txt",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, CleanKey(in))
		})
	}
}

func TestRequireKey(t *testing.T) {
	key, err := RequireKey("s3", "DownloadFile", "/a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "a/b.txt", key)

	_, err = RequireKey("s3", "DownloadFile", "folder/")
	assert.True(t, errs.IsMalformedRequest(err))
	_, err = RequireKey("s3", "DownloadFile", "")
	assert.True(t, errs.IsMalformedRequest(err))
}

func TestRequireBucket(t *testing.T) {
	_, err := RequireBucket("azure", "")
	assert.True(t, errs.IsResolution(err))
	assert.Contains(t, err.Error(), "bucket")
}

func TestOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, MaxPageLimit, opts.Limit(ListRequest{}))
	assert.Equal(t, 10, opts.Limit(ListRequest{PageLimit: 10}))
	assert.Equal(t, MaxPageLimit, opts.Limit(ListRequest{PageLimit: 5000}))
	assert.Equal(t, MaxPageLimit, Options{}.Limit(ListRequest{}))

	assert.Equal(t, DefaultTTL, opts.Expiry(0))
	assert.Equal(t, time.Minute, opts.Expiry(time.Minute))
	assert.Equal(t, DefaultTTL, Options{}.Expiry(-time.Second))
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(map[string]any{
		"region":     "eu-west-1",
		"endpoint":   "https://minio.local:9000",
		"page_limit": 50.0,
		"ttl":        "10m",
		"unrelated":  true,
	})
	assert.Equal(t, "eu-west-1", opts.Region)
	assert.Equal(t, "https://minio.local:9000", opts.Endpoint)
	assert.Equal(t, 50, opts.PageLimit)
	assert.Equal(t, 10*time.Minute, opts.TTL)

	opts = OptionsFrom(map[string]any{"ttl": 90, "maxKeys": "25"})
	assert.Equal(t, 90*time.Second, opts.TTL)
	assert.Equal(t, 25, opts.PageLimit)

	assert.Equal(t, DefaultOptions(), OptionsFrom(nil))
}

func TestProbe(t *testing.T) {
	ctx := context.Background()
	noBuckets := func(context.Context) ([]BucketInfo, error) {
		t.Fatal("bucket listing must not run when a bucket is configured")
		return nil, nil
	}

	res := Probe(ctx, "s3", "logs", func(context.Context) error { return nil }, noBuckets)
	assert.True(t, res.Success)
	assert.Contains(t, res.Message, "logs")

	res = Probe(ctx, "s3", "logs", func(context.Context) error { return errors.New("denied") }, noBuckets)
	assert.False(t, res.Success)
	assert.Equal(t, "denied", res.Message)

	res = Probe(ctx, "gcs", "", nil, func(context.Context) ([]BucketInfo, error) {
		return []BucketInfo{{Name: "a"}, {Name: "b"}}, nil
	})
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.BucketCount)
	assert.Equal(t, "gcs", res.Provider)
}

func TestEnvDefaults(t *testing.T) {
	env := Env{}.Defaults()
	assert.NotNil(t, env.Exec)
	assert.NotNil(t, env.Log)
	assert.NotNil(t, env.Now)
}
