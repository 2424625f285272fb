package backup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/loomchat/billing/internal/database"
)

type fakeS3 struct {
	objects map[string][]byte
	deleted []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(input.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	out := &s3.ListObjectsV2Output{}
	for key := range f.objects {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	key := aws.ToString(input.Key)
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plain := []byte("subscription records")

	sealed, err := Encrypt(plain, "correct horse")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Error("ciphertext contains plaintext")
	}

	got, err := Decrypt(sealed, "correct horse")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip = %q, want %q", got, plain)
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	sealed, err := Encrypt([]byte("secret"), "right")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt(sealed, "wrong"); err == nil {
		t.Error("expected decrypt failure with wrong passphrase")
	}
}

func TestDecryptTruncated(t *testing.T) {
	if _, err := Decrypt([]byte("short"), "pw"); err == nil {
		t.Error("expected failure on truncated payload")
	}
}

func TestRunUploadsEncryptedSnapshot(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	fake := newFakeS3()
	m := NewManager(Config{
		Bucket: "backups", AccessKey: "k", SecretKey: "s",
		Passphrase: "pw", RetentionDays: 30,
	}, db, slog.New(slog.DiscardHandler))
	m.client = fake

	if err := m.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(fake.objects) != 1 {
		t.Fatalf("objects = %d, want 1", len(fake.objects))
	}
	for key, data := range fake.objects {
		if got, err := Decrypt(data, "pw"); err != nil {
			t.Errorf("uploaded object %s does not decrypt: %v", key, err)
		} else if !bytes.HasPrefix(got, []byte("SQLite format 3")) {
			t.Errorf("decrypted snapshot is not a sqlite database")
		}
	}
}

func TestRunRequiresConfiguration(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	m := NewManager(Config{}, db, slog.New(slog.DiscardHandler))
	if m.Enabled() {
		t.Error("manager should be disabled without storage config")
	}
	if err := m.Run(context.Background()); err == nil {
		t.Error("expected error running an unconfigured backup")
	}
}
