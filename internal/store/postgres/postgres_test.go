//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/classmgr/attendbot/internal/config"
	"github.com/classmgr/attendbot/internal/store"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestContainer(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	cfg := &config.Database{
		URL:          fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port()),
		MaxOpenConns: 5,
		MaxIdleConns: 2,
	}

	st, err := New(cfg)
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create store: %v", err)
	}

	cleanup := func() {
		st.Close()
		container.Terminate(ctx)
	}
	return st, cleanup
}

func seedInstructor(t *testing.T, st *Store, handle int64) {
	t.Helper()
	_, err := st.Pool().Exec(context.Background(),
		"INSERT INTO instructors (handle, full_name) VALUES ($1, $2)", handle, "Test Instructor")
	if err != nil {
		t.Fatalf("seed instructor: %v", err)
	}
}

func TestInstructorStateRoundTrip(t *testing.T) {
	st, cleanup := setupTestContainer(t)
	if st == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	seedInstructor(t, st, 1001)

	if err := st.SetInstructorState(ctx, 1001, store.StateCheckingAttendance, "CS101-A"); err != nil {
		t.Fatalf("SetInstructorState: %v", err)
	}

	inst, err := st.GetInstructor(ctx, 1001)
	if err != nil {
		t.Fatalf("GetInstructor: %v", err)
	}
	if inst.State != store.StateCheckingAttendance {
		t.Errorf("expected state checking_attendance, got %s", inst.State)
	}
	if inst.Metadata != "CS101-A" {
		t.Errorf("expected metadata 'CS101-A', got '%s'", inst.Metadata)
	}

	if err := st.SetInstructorState(ctx, 9999, store.StateMainMenu, ""); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound for missing instructor, got %v", err)
	}
}

func TestEnrolleeLifecycle(t *testing.T) {
	st, cleanup := setupTestContainer(t)
	if st == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	// Handle enrollee gets an auto-assigned label.
	byHandle := &store.Enrollee{Ref: store.RefByHandle(2002), FirstName: "Ada"}
	if err := st.CreateEnrollee(ctx, byHandle); err != nil {
		t.Fatalf("CreateEnrollee: %v", err)
	}
	if byHandle.Label == 0 {
		t.Error("expected assigned label")
	}

	// Creating again returns the same record, not a duplicate.
	again := &store.Enrollee{Ref: store.RefByHandle(2002)}
	if err := st.CreateEnrollee(ctx, again); err != nil {
		t.Fatalf("CreateEnrollee second time: %v", err)
	}
	if again.Label != byHandle.Label {
		t.Errorf("expected label %d on repeat create, got %d", byHandle.Label, again.Label)
	}

	// Blind enrollee by guid.
	byGuid := &store.Enrollee{Ref: store.RefByGuid(store.NewGuid()), FirstName: "Grace", LastName: "Hopper"}
	if err := st.CreateEnrollee(ctx, byGuid); err != nil {
		t.Fatalf("CreateEnrollee guid: %v", err)
	}
	if byGuid.Label == byHandle.Label {
		t.Error("labels must be distinct")
	}

	got, err := st.GetEnrolleeByLabel(ctx, byGuid.Label)
	if err != nil {
		t.Fatalf("GetEnrolleeByLabel: %v", err)
	}
	if g, ok := got.Ref.Guid(); !ok || g == "" {
		t.Error("expected guid reference")
	}
}

func TestAttendanceIdempotence(t *testing.T) {
	st, cleanup := setupTestContainer(t)
	if st == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	today := time.Now()
	rec := &store.AttendanceRecord{
		Enrollee:    store.RefByHandle(2002),
		SessionCode: "CS101-A",
		AttendedOn:  today,
		RecordedBy:  1001,
	}

	first, err := st.InsertAttendance(ctx, rec)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	second, err := st.InsertAttendance(ctx, rec)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Error("second insert should return the surviving row")
	}

	records, err := st.ListAttendance(ctx, "CS101-A", today)
	if err != nil {
		t.Fatalf("ListAttendance: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected exactly 1 record, got %d", len(records))
	}
}

func TestFaceSamples(t *testing.T) {
	st, cleanup := setupTestContainer(t)
	if st == nil {
		return
	}
	defer cleanup()
	ctx := context.Background()

	emb := make([]float32, 512)
	for i := range emb {
		emb[i] = float32(i) / 512.0
	}

	sample := &store.FaceSample{Label: 7, ImagePath: "faces/abc.jpg", Embedding: emb}
	if err := st.AddFaceSample(ctx, sample); err != nil {
		t.Fatalf("AddFaceSample: %v", err)
	}
	if sample.ID == 0 {
		t.Error("expected assigned sample id")
	}

	samples, err := st.ListFaceSamples(ctx)
	if err != nil {
		t.Fatalf("ListFaceSamples: %v", err)
	}
	if len(samples) != 1 || samples[0].Label != 7 {
		t.Fatalf("unexpected samples: %+v", samples)
	}
	if len(samples[0].Embedding) != 512 {
		t.Errorf("expected 512-dim embedding, got %d", len(samples[0].Embedding))
	}

	count, err := st.CountFaceSamples(ctx)
	if err != nil {
		t.Fatalf("CountFaceSamples: %v", err)
	}
	if count != 1 {
		t.Errorf("expected count 1, got %d", count)
	}
}
