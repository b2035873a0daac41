package command

import (
	"strings"
	"testing"
)

func TestChunkResponseShortTextIsUnchanged(t *testing.T) {
	chunks := ChunkResponse("hello")
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestChunkResponseSplitsAtMaxLength(t *testing.T) {
	text := strings.Repeat("a", maxResponseLength+10)
	chunks := ChunkResponse(text)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != maxResponseLength {
		t.Errorf("first chunk length = %d, want %d", len(chunks[0]), maxResponseLength)
	}
}

func TestChunkResponseTruncatesBeyondMaxChunks(t *testing.T) {
	text := strings.Repeat("b", maxResponseLength*maxChunks+50)
	chunks := ChunkResponse(text)
	if len(chunks) != maxChunks {
		t.Fatalf("expected %d chunks, got %d", maxChunks, len(chunks))
	}
	last := chunks[len(chunks)-1]
	if !strings.HasSuffix(last, "...") {
		t.Errorf("expected last chunk to end with an ellipsis, got %q", last)
	}
}
