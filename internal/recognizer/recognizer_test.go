package recognizer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"path/filepath"
	"testing"

	"github.com/classmgr/attendbot/internal/store/memory"
)

// fakeDetector returns canned faces without a network round-trip.
type fakeDetector struct {
	faces []DetectedFace
	err   error
}

func (f *fakeDetector) DetectFaces(ctx context.Context, imageData []byte) ([]DetectedFace, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.faces, nil
}

// testImage encodes a solid 100x100 JPEG.
func testImage(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func unitVec(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestCosineDistance(t *testing.T) {
	a := []float32{1, 0, 0}
	if d := cosineDistance(a, a); math.Abs(d) > 1e-9 {
		t.Errorf("distance to self = %f, want 0", d)
	}
	if d := cosineDistance(a, []float32{0, 1, 0}); math.Abs(d-1) > 1e-9 {
		t.Errorf("orthogonal distance = %f, want 1", d)
	}
	if d := cosineDistance(a, []float32{-1, 0, 0}); math.Abs(d-2) > 1e-9 {
		t.Errorf("opposite distance = %f, want 2", d)
	}
	if d := cosineDistance(a, []float32{1, 0}); d != 2.0 {
		t.Errorf("mismatched lengths distance = %f, want 2", d)
	}
	if d := cosineDistance(a, []float32{0, 0, 0}); d != 2.0 {
		t.Errorf("zero vector distance = %f, want 2", d)
	}
}

func TestLabelIndexAddSearch(t *testing.T) {
	idx := NewLabelIndex()
	if !idx.IsEmpty() {
		t.Fatal("fresh index not empty")
	}

	idx.Add(1, 10, unitVec(8, 0))
	idx.Add(2, 20, unitVec(8, 1))
	idx.Add(3, 20, unitVec(8, 2))

	if got := idx.Count(); got != 3 {
		t.Errorf("Count = %d, want 3", got)
	}

	matches, err := idx.Search(unitVec(8, 1), 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Label != 20 || matches[0].SampleID != 2 {
		t.Errorf("matched sample %d label %d, want sample 2 label 20", matches[0].SampleID, matches[0].Label)
	}
	if matches[0].Distance > 1e-6 {
		t.Errorf("exact match distance = %f, want ~0", matches[0].Distance)
	}
}

func TestLabelIndexSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.idx")

	idx := NewLabelIndex()
	idx.Add(1, 10, unitVec(8, 0))
	idx.Add(2, 20, unitVec(8, 1))
	idx.SetPath(path)
	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewLabelIndex()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.IsEmpty() {
		t.Fatal("loaded index is empty")
	}
	loaded.RebuildLabels(map[int64]int{1: 10, 2: 20})

	matches, err := loaded.Search(unitVec(8, 0), 1)
	if err != nil {
		t.Fatalf("Search after load failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Label != 10 {
		t.Errorf("search after load returned %+v, want label 10", matches)
	}
}

func TestLabelIndexAddAfterLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faces.idx")

	idx := NewLabelIndex()
	idx.Add(1, 10, unitVec(8, 0))
	idx.SetPath(path)
	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := NewLabelIndex()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	loaded.RebuildLabels(map[int64]int{1: 10})

	loaded.Add(2, 20, unitVec(8, 1))

	matches, err := loaded.Search(unitVec(8, 1), 1)
	if err != nil {
		t.Fatalf("Search after Add failed: %v", err)
	}
	if len(matches) != 1 || matches[0].SampleID != 2 || matches[0].Label != 20 {
		t.Fatalf("sample enrolled after load not searchable, got %+v", matches)
	}
	if matches[0].Distance > 0.01 {
		t.Errorf("expected near-zero distance to the new sample, got %f", matches[0].Distance)
	}
	if loaded.Count() != 2 {
		t.Errorf("Count = %d, want 2", loaded.Count())
	}
}

func TestLabelIndexLoadMissingFile(t *testing.T) {
	idx := NewLabelIndex()
	if err := idx.Load(filepath.Join(t.TempDir(), "missing.idx")); err != nil {
		t.Fatalf("Load of missing file should not fail: %v", err)
	}
	if !idx.IsEmpty() {
		t.Error("index should stay empty after loading a missing file")
	}
}

func TestDetectMatchesWithinThreshold(t *testing.T) {
	db := memory.New()
	idx := NewLabelIndex()
	idx.Add(1, 7, unitVec(8, 0))

	det := &fakeDetector{faces: []DetectedFace{
		{FaceIndex: 0, Embedding: unitVec(8, 0), BBox: []float64{10, 10, 40, 40}, DetScore: 0.99},
		{FaceIndex: 1, Embedding: unitVec(8, 5), BBox: []float64{50, 50, 90, 90}, DetScore: 0.97},
	}}
	r := New(det, idx, db, t.TempDir(), 0.5)

	dets, err := r.Detect(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(dets))
	}

	if !dets[0].Known() || dets[0].Label != 7 {
		t.Errorf("face 0: label = %d, want 7", dets[0].Label)
	}
	if dets[0].Confidence < 0.99 {
		t.Errorf("face 0: confidence = %f, want ~1", dets[0].Confidence)
	}
	if dets[1].Known() {
		t.Errorf("face 1 matched label %d, want unknown", dets[1].Label)
	}
	for i, d := range dets {
		if len(d.Crop) == 0 {
			t.Errorf("face %d: empty crop", i)
		}
	}
}

func TestDetectEmptyIndex(t *testing.T) {
	det := &fakeDetector{faces: []DetectedFace{
		{FaceIndex: 0, Embedding: unitVec(8, 0), BBox: []float64{10, 10, 40, 40}},
	}}
	r := New(det, NewLabelIndex(), memory.New(), t.TempDir(), 0.5)

	dets, err := r.Detect(context.Background(), testImage(t))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if len(dets) != 1 || dets[0].Known() {
		t.Errorf("expected one unknown detection, got %+v", dets)
	}
}

func TestEnrollMakesFaceSearchable(t *testing.T) {
	db := memory.New()
	idx := NewLabelIndex()
	emb := unitVec(8, 3)
	det := &fakeDetector{faces: []DetectedFace{
		{FaceIndex: 0, Embedding: emb, BBox: []float64{10, 10, 40, 40}},
	}}
	r := New(det, idx, db, t.TempDir(), 0.5)
	ctx := context.Background()

	// Unknown before enrollment.
	dets, err := r.Detect(ctx, testImage(t))
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if dets[0].Known() {
		t.Fatal("face known before enrollment")
	}

	sample, err := r.Enroll(ctx, 42, dets[0].Crop, dets[0].Embedding)
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if sample.ID == 0 {
		t.Error("enrolled sample has no ID")
	}
	if count, _ := db.CountFaceSamples(ctx); count != 1 {
		t.Errorf("expected 1 stored sample, got %d", count)
	}

	// Known immediately after, no rebuild.
	dets, err = r.Detect(ctx, testImage(t))
	if err != nil {
		t.Fatalf("Detect after enroll failed: %v", err)
	}
	if !dets[0].Known() || dets[0].Label != 42 {
		t.Errorf("after enroll: label = %d, want 42", dets[0].Label)
	}
}

func TestEnrollRejectsInvalid(t *testing.T) {
	r := New(&fakeDetector{}, NewLabelIndex(), memory.New(), t.TempDir(), 0.5)
	ctx := context.Background()

	if _, err := r.Enroll(ctx, UnknownLabel, []byte("x"), unitVec(8, 0)); err == nil {
		t.Error("expected error enrolling under unknown label")
	}
	if _, err := r.Enroll(ctx, 1, []byte("x"), nil); err == nil {
		t.Error("expected error enrolling empty embedding")
	}
}

func TestRebuildFromStore(t *testing.T) {
	db := memory.New()
	idx := NewLabelIndex()
	r := New(&fakeDetector{}, idx, db, t.TempDir(), 0.5)
	ctx := context.Background()

	if _, err := r.Enroll(ctx, 1, []byte("a"), unitVec(8, 0)); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if _, err := r.Enroll(ctx, 2, []byte("b"), unitVec(8, 1)); err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}

	// A fresh recognizer over the same store rebuilds the same index.
	fresh := New(&fakeDetector{}, NewLabelIndex(), db, t.TempDir(), 0.5)
	n, err := fresh.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Rebuild indexed %d samples, want 2", n)
	}
}

func TestCropFaceClamping(t *testing.T) {
	img := testImage(t)

	crop, err := CropFace(img, []float64{-20, -20, 50, 50})
	if err != nil {
		t.Fatalf("CropFace with out-of-bounds box failed: %v", err)
	}
	if len(crop) == 0 {
		t.Error("empty crop")
	}

	if _, err := CropFace(img, []float64{200, 200, 300, 300}); err == nil {
		t.Error("expected error for box fully outside the image")
	}
	if _, err := CropFace(img, []float64{10, 10}); err == nil {
		t.Error("expected error for malformed box")
	}
	if _, err := CropFace(nil, []float64{0, 0, 10, 10}); err == nil {
		t.Error("expected error for empty image data")
	}
}

func TestDecodeImageErrors(t *testing.T) {
	if _, err := decodeImage(nil); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := decodeImage([]byte("not an image")); err == nil {
		t.Error("expected error for garbage data")
	}
}
