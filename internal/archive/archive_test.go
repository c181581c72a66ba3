package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeSnapshotter struct {
	dbPath string
	data   []byte
}

func (f *fakeSnapshotter) DBPath() string { return f.dbPath }

func (f *fakeSnapshotter) SnapshotTo(dstPath string) error {
	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(dstPath, f.data, 0644)
}

type fakeUploader struct {
	mu      sync.Mutex
	keys    []string
	content map[string]string
	failKey string
}

func (f *fakeUploader) UploadFile(_ context.Context, localPath, objectKey string) error {
	if objectKey == f.failKey {
		return errors.New("upload refused")
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.content == nil {
		f.content = map[string]string{}
	}
	f.keys = append(f.keys, objectKey)
	f.content[objectKey] = string(data)
	return nil
}

func TestParseS3BucketURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantErr   bool
		wantBkt   string
		wantPre   string
		errSubstr string
	}{
		{name: "bucket only", raw: "s3://my-bucket", wantBkt: "my-bucket"},
		{name: "bucket with prefix", raw: "s3://my-bucket/probe/runs/", wantBkt: "my-bucket", wantPre: "probe/runs"},
		{name: "invalid scheme", raw: "https://my-bucket/probe", wantErr: true, errSubstr: "s3:// scheme"},
		{name: "missing bucket", raw: "s3:///probe", wantErr: true, errSubstr: "missing bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gotBkt, gotPre, err := parseS3BucketURL(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !strings.Contains(err.Error(), tt.errSubstr) {
					t.Fatalf("err = %q, want substring %q", err.Error(), tt.errSubstr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseS3BucketURL error: %v", err)
			}
			if gotBkt != tt.wantBkt || gotPre != tt.wantPre {
				t.Fatalf("got (%q, %q), want (%q, %q)", gotBkt, gotPre, tt.wantBkt, tt.wantPre)
			}
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	t.Parallel()

	host, secure, err := splitEndpoint("http://localhost:9000", true)
	if err != nil || host != "localhost:9000" || secure {
		t.Fatalf("splitEndpoint(http) = %q, %v, %v", host, secure, err)
	}
	host, secure, err = splitEndpoint("minio.internal:9000", true)
	if err != nil || host != "minio.internal:9000" || !secure {
		t.Fatalf("splitEndpoint(bare) = %q, %v, %v", host, secure, err)
	}
	host, _, err = splitEndpoint("", false)
	if err != nil || host != "s3.amazonaws.com" {
		t.Fatalf("splitEndpoint(empty) = %q, %v", host, err)
	}
}

func TestNewS3Uploader_MissingCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader(Config{BucketURL: "s3://my-bucket/probe", Endpoint: "s3.amazonaws.com", UseSSL: true})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNewS3Uploader_Valid(t *testing.T) {
	t.Parallel()

	u, err := NewS3Uploader(Config{
		BucketURL: "s3://results/probe",
		Endpoint:  "http://127.0.0.1:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
	})
	if err != nil {
		t.Fatalf("NewS3Uploader: %v", err)
	}
	if u.bucket != "results" || u.keyPrefix != "probe" {
		t.Fatalf("uploader bucket=%q prefix=%q", u.bucket, u.keyPrefix)
	}
}

func TestNew_Disabled(t *testing.T) {
	t.Parallel()

	a, err := New(Config{}, nil, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if a != nil {
		t.Fatal("expected nil archiver when disabled")
	}
	if _, err := New(Config{Enabled: true}, nil, nil); err == nil {
		t.Fatal("expected error for missing bucket-url")
	}
}

func TestArchiveCase_UploadsFilesAndSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ok := filepath.Join(dir, "smoke.ok.jsonl")
	bad := filepath.Join(dir, "smoke.err.jsonl")
	if err := os.WriteFile(ok, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte("{\"error\":{}}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	up := &fakeUploader{}
	a := NewWithUploader(up, &fakeSnapshotter{dbPath: "/tmp/probe.duckdb", data: []byte("db")}, nil)
	a.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := a.ArchiveCase(context.Background(), "smoke test", []string{ok, bad}); err != nil {
		t.Fatalf("ArchiveCase: %v", err)
	}

	want := []string{
		"smoke_test/smoke.ok.jsonl",
		"smoke_test/smoke.err.jsonl",
		"smoke_test/index-20260301-120000.duckdb",
	}
	if strings.Join(up.keys, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v, want %v", up.keys, want)
	}
	if up.content["smoke_test/index-20260301-120000.duckdb"] != "db" {
		t.Fatalf("snapshot content = %q", up.content["smoke_test/index-20260301-120000.duckdb"])
	}
}

func TestArchiveCase_ContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a1 := filepath.Join(dir, "a.jsonl")
	a2 := filepath.Join(dir, "b.jsonl")
	for _, p := range []string{a1, a2} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	up := &fakeUploader{failKey: "c/a.jsonl"}
	a := NewWithUploader(up, &fakeSnapshotter{dbPath: ""}, nil)
	err := a.ArchiveCase(context.Background(), "c", []string{a1, a2})
	if err == nil {
		t.Fatal("expected upload error")
	}
	if len(up.keys) != 1 || up.keys[0] != "c/b.jsonl" {
		t.Fatalf("keys = %v, want [c/b.jsonl]", up.keys)
	}
}
