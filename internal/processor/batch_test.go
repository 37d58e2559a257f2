package processor

import (
	"context"
	"image/jpeg"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/adverant/nexus/ocr-worker/internal/engine/enginetest"
	"github.com/adverant/nexus/ocr-worker/internal/errors"
)

// batchDir creates three supported images and one unsupported file.
func batchDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeImage(t, dir, "a.png")

	for name, encode := range map[string]func(f *os.File) error{
		"b.jpg": func(f *os.File) error { return jpeg.Encode(f, pageImage(60, 40), nil) },
		"c.bmp": func(f *os.File) error { return bmp.Encode(f, pageImage(60, 40)) },
	} {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			t.Fatal(err)
		}
		if err := encode(f); err != nil {
			t.Fatal(err)
		}
		f.Close()
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.docx"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.png"), 0755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func outputs(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestBatchProcessWritesOneOutputPerImage(t *testing.T) {
	in := batchDir(t)
	out := filepath.Join(t.TempDir(), "out", "nested")

	p := NewProcessor(enginetest.New("INVOICE 2024", 88))
	report, err := p.BatchProcess(context.Background(), testConfig(), in, out, "eng", BatchOptions{})
	if err != nil {
		t.Fatalf("BatchProcess() error = %v", err)
	}

	if report.Processed != 3 || report.Succeeded != 3 || report.Status != errors.CodeSuccess {
		t.Errorf("report = %+v", report)
	}
	got := outputs(t, out)
	want := []string{"a.txt", "b.txt", "c.txt"}
	if len(got) != len(want) {
		t.Fatalf("outputs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("outputs = %v, want %v", got, want)
		}
	}

	text, err := os.ReadFile(filepath.Join(out, "a.txt"))
	if err != nil || string(text) != "INVOICE 2024" {
		t.Errorf("a.txt = %q, %v", text, err)
	}
}

func TestBatchProcessIsolatesFailures(t *testing.T) {
	in := batchDir(t)
	if err := os.WriteFile(filepath.Join(in, "d.png"), []byte("corrupt"), 0644); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()

	p := NewProcessor(enginetest.New("ok", 80))
	report, err := p.BatchProcess(context.Background(), testConfig(), in, out, "eng", BatchOptions{})
	if err != nil {
		t.Fatalf("BatchProcess() error = %v", err)
	}
	if report.Processed != 4 || report.Succeeded != 3 || len(report.Failed) != 1 {
		t.Fatalf("report = %+v", report)
	}
	if f := report.Failed[0]; f.File != "d.png" || f.Code != errors.CodeInvalidImage {
		t.Errorf("failure = %+v", f)
	}
	if report.Status != errors.CodeSuccess {
		t.Errorf("status = %s, want SUCCESS", report.Status)
	}
	if len(outputs(t, out)) != 3 {
		t.Errorf("outputs = %v", outputs(t, out))
	}
}

func TestBatchProcessEmptyAndMissing(t *testing.T) {
	p := NewProcessor(enginetest.New("x", 80))

	empty := t.TempDir()
	report, err := p.BatchProcess(context.Background(), testConfig(), empty, t.TempDir(), "", BatchOptions{})
	if errors.CodeOf(err) != errors.CodeFileNotFound || report.Status != errors.CodeFileNotFound || report.Processed != 0 {
		t.Errorf("empty dir: report = %+v err = %v", report, err)
	}

	_, err = p.BatchProcess(context.Background(), testConfig(), filepath.Join(empty, "missing"), t.TempDir(), "", BatchOptions{})
	if errors.CodeOf(err) != errors.CodeFileNotFound {
		t.Errorf("missing dir code = %s", errors.CodeOf(err))
	}

	_, err = p.BatchProcess(context.Background(), testConfig(), "", "", "", BatchOptions{})
	if errors.CodeOf(err) != errors.CodeInvalidParameter {
		t.Errorf("empty args code = %s", errors.CodeOf(err))
	}
}

func TestBatchProcessOutputDirNotCreatable(t *testing.T) {
	in := batchDir(t)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewProcessor(enginetest.New("x", 80))
	_, err := p.BatchProcess(context.Background(), testConfig(), in, filepath.Join(blocker, "out"), "", BatchOptions{})
	if errors.CodeOf(err) != errors.CodePermissionDenied {
		t.Errorf("code = %s, want PERMISSION_DENIED", errors.CodeOf(err))
	}
}

type recordingSink struct {
	mu      sync.Mutex
	sources []string
}

func (s *recordingSink) Record(_ context.Context, source string, res *OCRResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, filepath.Base(source)+":"+string(res.ErrorCode))
	return nil
}

func TestBatchProcessParallelWithSink(t *testing.T) {
	in := batchDir(t)
	out := t.TempDir()
	sink := &recordingSink{}
	fake := enginetest.New("parallel", 80)

	p := NewProcessor(fake)
	report, err := p.BatchProcess(context.Background(), testConfig(), in, out, "eng", BatchOptions{Workers: 3, Sink: sink})
	if err != nil {
		t.Fatalf("BatchProcess() error = %v", err)
	}
	if report.Processed != 3 || report.Succeeded != 3 {
		t.Errorf("report = %+v", report)
	}
	if len(sink.sources) != 3 {
		t.Errorf("sink saw %v", sink.sources)
	}
	if len(outputs(t, out)) != 3 {
		t.Errorf("outputs = %v", outputs(t, out))
	}
	if fake.Opened() != 3 || fake.Closed() != 3 {
		t.Errorf("opened=%d closed=%d", fake.Opened(), fake.Closed())
	}
}

func TestBatchProcessCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewProcessor(enginetest.New("x", 80))
	report, err := p.BatchProcess(ctx, testConfig(), batchDir(t), t.TempDir(), "", BatchOptions{})
	if errors.CodeOf(err) != errors.CodeTimeout {
		t.Errorf("code = %s, want TIMEOUT", errors.CodeOf(err))
	}
	if report.Processed != 0 {
		t.Errorf("processed = %d after cancellation", report.Processed)
	}
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"scan.png":          "scan.txt",
		"/in/dir/page.TIFF": "page.txt",
		"archive.tar.png":   "archive.tar.txt",
	}
	for in, want := range tests {
		if got := OutputName(in); got != want {
			t.Errorf("OutputName(%q) = %q, want %q", in, got, want)
		}
	}
}
