package main

import (
	"strings"
	"testing"

	"github.com/avelis/readthis/internal/queue"
	"github.com/avelis/readthis/internal/remote"
)

func testEngine(t *testing.T) *engine {
	t.Helper()
	q, err := queue.Open(":memory:")
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() { q.Close() })
	return &engine{queue: q}
}

func TestImportPocketCSV(t *testing.T) {
	const export = `title,url,time_added,tags,status
First article,https://a.example/one,1719267834,,unread
Already read,https://a.example/two,1719267835,,archive
Tagged,https://a.example/three?utm_source=pocket,1719267836,"news,go",unread
Broken,not-a-url,1719267837,,unread
ragged row
`
	e := testEngine(t)

	imported, skipped, err := importPocketCSV(strings.NewReader(export), e)
	if err != nil {
		t.Fatalf("importPocketCSV: %v", err)
	}
	if imported != 2 {
		t.Errorf("imported = %d, want 2", imported)
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}

	snapshot, err := e.queue.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("queue = %+v", snapshot)
	}
	for _, intent := range snapshot {
		if intent.Desired != remote.StatusUnread {
			t.Errorf("intent %s desired %q, want unread", intent.Target, intent.Desired)
		}
		if intent.Origin != "import" {
			t.Errorf("intent %s origin %q, want import", intent.Target, intent.Origin)
		}
	}
	if snapshot[0].Target != "https://a.example/one" {
		t.Errorf("first imported target = %q", snapshot[0].Target)
	}
}

func TestImportPocketCSVNoHeader(t *testing.T) {
	const export = `First article,https://a.example/one,1719267834,,unread
`
	e := testEngine(t)

	imported, skipped, err := importPocketCSV(strings.NewReader(export), e)
	if err != nil {
		t.Fatalf("importPocketCSV: %v", err)
	}
	if imported != 1 || skipped != 0 {
		t.Errorf("imported = %d, skipped = %d", imported, skipped)
	}
}

func TestImportPocketCSVDeduplicates(t *testing.T) {
	const export = `title,url,time_added,tags,status
Same,https://a.example/one,1,,unread
Same again,https://a.example/one,2,,unread
`
	e := testEngine(t)

	imported, _, err := importPocketCSV(strings.NewReader(export), e)
	if err != nil {
		t.Fatalf("importPocketCSV: %v", err)
	}
	if imported != 2 {
		t.Errorf("imported = %d, want 2 (each row counted)", imported)
	}
	if n, _ := e.queue.Size(); n != 1 {
		t.Errorf("queue size = %d, want 1 after dedup", n)
	}
}
