package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestKeyIsStableAndContentSensitive(t *testing.T) {
	dir := t.TempDir()
	notes := writeFile(t, dir, "notes.f32", []byte{1, 2, 3, 4})
	tempoPCM := writeFile(t, dir, "tempo.f32", []byte{5, 6, 7, 8})
	tempoModel := writeFile(t, dir, "tempo.onnx", []byte("model"))

	modelDir := filepath.Join(dir, "models")
	if err := os.Mkdir(modelDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, modelDir, "features_model.onnx", []byte("features"))

	key1, err := Key(notes, tempoPCM, modelDir, tempoModel, "preset-a")
	if err != nil {
		t.Fatal(err)
	}
	key2, err := Key(notes, tempoPCM, modelDir, tempoModel, "preset-a")
	if err != nil {
		t.Fatal(err)
	}
	if key1 != key2 {
		t.Fatal("key must be deterministic")
	}

	key3, err := Key(notes, tempoPCM, modelDir, tempoModel, "preset-b")
	if err != nil {
		t.Fatal(err)
	}
	if key3 == key1 {
		t.Fatal("preset change must change the key")
	}

	writeFile(t, dir, "notes.f32", []byte{9, 9, 9, 9})
	key4, err := Key(notes, tempoPCM, modelDir, tempoModel, "preset-a")
	if err != nil {
		t.Fatal(err)
	}
	if key4 == key1 {
		t.Fatal("input change must change the key")
	}
}

func TestGetPutRoundTrip(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	c, err := New()
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Get("absent"); ok {
		t.Fatal("unexpected hit")
	}

	document := []byte(`{"events":[]}`)
	c.Put("somekey", document)

	got, ok := c.Get("somekey")
	if !ok {
		t.Fatal("expected a hit")
	}
	if string(got) != string(document) {
		t.Fatalf("got %q", got)
	}
}
