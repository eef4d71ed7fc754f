package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUploader struct {
	puts    map[string][]byte
	failErr error
}

func (f *fakeUploader) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.puts == nil {
		f.puts = map[string][]byte{}
	}
	f.puts[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestMirrorRunUploadsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "state.db")
	snap := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(state, []byte("db bytes"), 0644))
	require.NoError(t, os.WriteFile(snap, []byte(`{"jobs":[]}`), 0644))

	up := &fakeUploader{}
	m := NewWithClient(up, Config{Bucket: "backups", Prefix: "skycrane/prod"}, zap.NewNop())

	res, err := m.Run(context.Background(), state, snap)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"skycrane/prod/state.db", "skycrane/prod/jobs.json"}, res.Uploaded)
	assert.Empty(t, res.Skipped)
	assert.Equal(t, []byte("db bytes"), up.puts["skycrane/prod/state.db"])
}

func TestMirrorRunSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(present, []byte("{}"), 0644))
	missing := filepath.Join(dir, "state.db")

	up := &fakeUploader{}
	m := NewWithClient(up, Config{Bucket: "backups"}, zap.NewNop())

	res, err := m.Run(context.Background(), missing, present)
	require.NoError(t, err)

	assert.Equal(t, []string{missing}, res.Skipped)
	assert.Equal(t, []string{"jobs.json"}, res.Uploaded)
}

func TestMirrorRunUploadFailure(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "state.db")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	up := &fakeUploader{failErr: errors.New("access denied")}
	m := NewWithClient(up, Config{Bucket: "backups"}, zap.NewNop())

	_, err := m.Run(context.Background(), file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestMirrorRunClassifiesAPIErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "state.db")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	tests := []struct {
		code string
		want error
	}{
		{"NoSuchBucket", ErrBucketNotFound},
		{"AccessDenied", ErrAccessDenied},
		{"InvalidAccessKeyId", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			up := &fakeUploader{failErr: &smithy.GenericAPIError{Code: tt.code, Message: "nope"}}
			m := NewWithClient(up, Config{Bucket: "backups"}, zap.NewNop())

			_, err := m.Run(context.Background(), file)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, (&Config{}).Validate())
	assert.Error(t, (&Config{Bucket: "b", AccessKeyID: "only-one"}).Validate())
	assert.NoError(t, (&Config{Bucket: "b"}).Validate())
	assert.NoError(t, (&Config{Bucket: "b", AccessKeyID: "k", SecretAccessKey: "s"}).Validate())
}
