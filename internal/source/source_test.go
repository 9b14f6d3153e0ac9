package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGetter struct {
	body  string
	err   error
	input *s3.GetObjectInput
}

func (f *fakeGetter) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func readAll(t *testing.T, src Source) string {
	t.Helper()
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "All_Diets.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	f := File{Path: path}
	assert.Equal(t, path, f.Name())
	assert.Equal(t, "a,b\n", readAll(t, f))

	_, err := File{Path: filepath.Join(t.TempDir(), "missing.csv")}.Open(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.Open(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3(t *testing.T) {
	getter := &fakeGetter{body: "x,y\n"}
	src := &S3{client: getter, bucket: "datasets", key: "All_Diets.csv"}

	assert.Equal(t, "s3://datasets/All_Diets.csv", src.Name())
	assert.Equal(t, "x,y\n", readAll(t, src))
	assert.Equal(t, "datasets", aws.ToString(getter.input.Bucket))
	assert.Equal(t, "All_Diets.csv", aws.ToString(getter.input.Key))

	getter.err = errors.New("no such key")
	_, err := src.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3://datasets/All_Diets.csv")
}

func TestNewS3(t *testing.T) {
	src, err := NewS3(context.Background(), S3Config{
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "key",
		SecretKey: "secret",
		Bucket:    "datasets",
		Key:       "All_Diets.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "s3://datasets/All_Diets.csv", src.Name())
	assert.NotNil(t, src.client)
}

func TestFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local.csv")
	require.NoError(t, os.WriteFile(path, []byte("local"), 0o644))

	remote := &S3{client: &fakeGetter{body: "remote"}, bucket: "b", key: "k"}
	fb := Fallback{Primary: remote, Secondary: File{Path: path}}
	assert.Equal(t, "remote", readAll(t, fb))

	remote.client = &fakeGetter{err: errors.New("unreachable")}
	assert.Equal(t, "local", readAll(t, fb))

	fb.Secondary = File{Path: filepath.Join(t.TempDir(), "none.csv")}
	_, err := fb.Open(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "unreachable")
}
