package aws

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"fold-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	err     error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
		f.types = map[string]string{}
	}
	f.objects[aws.ToString(in.Key)] = body
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	c := NewClientWithAPI(&fakeS3{}, "bucket", "/runs/2024/")
	assert.Equal(t, "runs/2024/A_and_B/ranked_0.pdb", c.ObjectKey("A_and_B", "/out/A_and_B/ranked_0.pdb"))

	bare := NewClientWithAPI(&fakeS3{}, "bucket", "")
	assert.Equal(t, "A_and_B/ranking_debug.json", bare.ObjectKey("A_and_B", "ranking_debug.json"))
}

func TestMirrorUploadsFiles(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "ranking_debug.json")
	ranked := filepath.Join(dir, "ranked_0.pdb")
	require.NoError(t, os.WriteFile(final, []byte(`{"order":[]}`), 0o644))
	require.NoError(t, os.WriteFile(ranked, []byte("ATOM\n"), 0o644))

	api := &fakeS3{}
	c := NewClientWithAPI(api, "bucket", "runs")
	job := &models.Job{Name: "A", RunID: "run-1"}

	require.NoError(t, c.Mirror(context.Background(), job, []string{final, ranked}))
	assert.Equal(t, []byte("ATOM\n"), api.objects["runs/A/ranked_0.pdb"])
	assert.Equal(t, "application/json", api.types["runs/A/ranking_debug.json"])
	assert.Equal(t, "chemical/x-pdb", api.types["runs/A/ranked_0.pdb"])
}

func TestMirrorReportsFailures(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "ranked_0.pdb")
	require.NoError(t, os.WriteFile(file, []byte("ATOM\n"), 0o644))
	job := &models.Job{Name: "A"}

	c := NewClientWithAPI(&fakeS3{err: errors.New("access denied")}, "bucket", "")
	assert.Error(t, c.Mirror(context.Background(), job, []string{file}))

	c = NewClientWithAPI(&fakeS3{}, "bucket", "")
	assert.Error(t, c.Mirror(context.Background(), job, []string{filepath.Join(dir, "missing.pdb")}))
}
