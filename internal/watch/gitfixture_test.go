package watch

import (
	"bytes"
	"compress/zlib"
	"os"
	"path/filepath"
	"testing"
)

// writeLooseCommit writes a minimal valid commit object at id containing
// message as its trailing message, so gitinspect.CommitMessage can read
// it back.
func writeLooseCommit(t *testing.T, root, id, message string) {
	t.Helper()
	body := "tree 0000000000000000000000000000000000000000\nauthor Dev <d@x.com> 1700000000 +0000\ncommitter Dev <d@x.com> 1700000000 +0000\n\n" + message + "\n"
	payload := []byte("commit " + itoa(len(body)) + "\x00" + body)

	dir := filepath.Join(root, ".git", "objects", id[:2])
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, id[2:]), buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

// writeRefLog writes .git/logs/HEAD as a single ref-log line recording a
// move from oldID to newID, replacing any existing log.
func writeRefLog(t *testing.T, root, oldID, newID string) {
	t.Helper()
	line := oldID + " " + newID + " Dev <d@x.com> 1700000000 +0000\tcommit: work\n"
	path := filepath.Join(root, ".git", "logs", "HEAD")
	if err := os.WriteFile(path, []byte(line), 0644); err != nil {
		t.Fatal(err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
