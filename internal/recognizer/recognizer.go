// Package recognizer identifies enrolled faces in photos. Detection and
// embedding run on an external service; nearest-neighbor matching against
// enrolled samples runs locally on an HNSW index that grows incrementally
// as new faces are enrolled, without retraining.
package recognizer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"github.com/classmgr/attendbot/internal/store"
)

// UnknownLabel marks a detection that matched no enrolled face within the
// distance threshold.
const UnknownLabel = 0

// Detection is one face found in a submitted photo, annotated with the
// closest enrolled label if one is near enough.
type Detection struct {
	FaceIndex  int
	Label      int     // UnknownLabel when no enrolled face is close enough
	Confidence float64 // 1 - cosine distance to the matched sample, 0 for unknown
	Distance   float64
	BBox       []float64
	Crop       []byte // padded JPEG crop of the face
	Embedding  []float32
}

// Known reports whether the detection matched an enrolled face.
func (d *Detection) Known() bool {
	return d.Label != UnknownLabel
}

// Recognizer combines the detection service, the label index and the sample
// store into the face identification pipeline.
type Recognizer struct {
	detector  Detector
	index     *LabelIndex
	samples   store.FaceSampleStore
	faceDir   string
	threshold float64
}

// New creates a recognizer. faceDir is where enrolled face crops are kept;
// threshold is the maximum cosine distance for a match.
func New(detector Detector, index *LabelIndex, samples store.FaceSampleStore, faceDir string, threshold float64) *Recognizer {
	return &Recognizer{
		detector:  detector,
		index:     index,
		samples:   samples,
		faceDir:   faceDir,
		threshold: threshold,
	}
}

// Detect finds all faces in the photo and matches each against the enrolled
// samples. Detections come back in face-index order; an empty slice means
// no faces were found.
func (r *Recognizer) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	faces, err := r.detector.DetectFaces(ctx, imageData)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	detections := make([]Detection, 0, len(faces))
	for _, face := range faces {
		det := Detection{
			FaceIndex: face.FaceIndex,
			Label:     UnknownLabel,
			Distance:  2.0,
			BBox:      face.BBox,
			Embedding: face.Embedding,
		}

		crop, err := CropFace(imageData, face.BBox)
		if err != nil {
			return nil, fmt.Errorf("cropping face %d: %w", face.FaceIndex, err)
		}
		det.Crop = crop

		if !r.index.IsEmpty() {
			matches, err := r.index.Search(face.Embedding, 1)
			if err != nil {
				return nil, fmt.Errorf("searching index: %w", err)
			}
			if len(matches) > 0 && matches[0].Distance <= r.threshold {
				det.Label = matches[0].Label
				det.Distance = matches[0].Distance
				det.Confidence = 1 - matches[0].Distance
			}
		}

		detections = append(detections, det)
	}

	sort.Slice(detections, func(i, j int) bool {
		return detections[i].FaceIndex < detections[j].FaceIndex
	})
	return detections, nil
}

// Enroll persists one face crop and its embedding under a label and makes
// it immediately searchable. Subsequent photos of the same person match
// without any retraining step.
func (r *Recognizer) Enroll(ctx context.Context, label int, crop []byte, embedding []float32) (*store.FaceSample, error) {
	if label == UnknownLabel {
		return nil, fmt.Errorf("cannot enroll under the unknown label")
	}
	if len(embedding) == 0 {
		return nil, fmt.Errorf("cannot enroll an empty embedding")
	}

	if err := os.MkdirAll(r.faceDir, 0750); err != nil {
		return nil, fmt.Errorf("creating face directory: %w", err)
	}
	path := filepath.Join(r.faceDir, uuid.NewString()+".jpg")
	if err := os.WriteFile(path, crop, 0600); err != nil {
		return nil, fmt.Errorf("writing face crop: %w", err)
	}

	sample := &store.FaceSample{
		Label:     label,
		ImagePath: path,
		Embedding: embedding,
	}
	if err := r.samples.AddFaceSample(ctx, sample); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("persisting face sample: %w", err)
	}

	r.index.Add(sample.ID, sample.Label, sample.Embedding)
	return sample, nil
}

// Rebuild reconstructs the index from all stored samples. Used at startup
// when no saved index exists, and by the reindex command.
func (r *Recognizer) Rebuild(ctx context.Context) (int, error) {
	samples, err := r.samples.ListFaceSamples(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing face samples: %w", err)
	}

	fresh := NewLabelIndex()
	for _, s := range samples {
		fresh.Add(s.ID, s.Label, s.Embedding)
	}

	r.index.mu.Lock()
	path := r.index.path
	r.index.graph = fresh.graph
	r.index.savedGraph = nil
	r.index.idToLabel = fresh.idToLabel
	r.index.path = path
	r.index.mu.Unlock()

	return len(samples), nil
}

// LoadOrBuild loads the saved index from path, falling back to a full
// rebuild from stored samples when the file is missing or unreadable. The
// label map is always refreshed from the store.
func (r *Recognizer) LoadOrBuild(ctx context.Context, path string) error {
	if err := r.index.Load(path); err != nil || r.index.IsEmpty() {
		if _, err := r.Rebuild(ctx); err != nil {
			return err
		}
		r.index.SetPath(path)
		return nil
	}

	samples, err := r.samples.ListFaceSamples(ctx)
	if err != nil {
		return fmt.Errorf("listing face samples: %w", err)
	}
	labels := make(map[int64]int, len(samples))
	for _, s := range samples {
		labels[s.ID] = s.Label
	}
	r.index.RebuildLabels(labels)
	return nil
}
