package audio

import (
	"io"
	"testing"
)

func TestMemorySinkSeekAndOverwrite(t *testing.T) {
	var m MemorySink
	if _, err := m.Write([]byte("RIFFxxxxWAVE")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if _, err := m.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if _, err := m.Write([]byte("1234")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if got := string(m.Bytes()); got != "RIFF1234WAVE" {
		t.Errorf("Bytes() = %q, want %q", got, "RIFF1234WAVE")
	}

	pos, err := m.Seek(0, io.SeekEnd)
	if err != nil || pos != 12 {
		t.Fatalf("Seek(0, end) = %d, %v; want 12, nil", pos, err)
	}
	if _, err := m.Seek(-20, io.SeekCurrent); err == nil {
		t.Error("Seek() to a negative position should fail")
	}
}

func TestMemorySinkSeekPastEndPads(t *testing.T) {
	var m MemorySink
	if _, err := m.Seek(3, io.SeekStart); err != nil {
		t.Fatalf("Seek() error = %v", err)
	}
	if _, err := m.Write([]byte{9}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	want := []byte{0, 0, 0, 9}
	got := m.Bytes()
	if len(got) != len(want) {
		t.Fatalf("len(Bytes()) = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Bytes()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestArtifactOpenInMemory(t *testing.T) {
	a := &Artifact{Data: []byte("abc"), Size: 3, Seq: 2}
	rc, err := a.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "abc" {
		t.Errorf("Open() content = %q, want %q", data, "abc")
	}
	if a.Name() != "recording_2.wav" {
		t.Errorf("Name() = %q, want recording_2.wav", a.Name())
	}
}
