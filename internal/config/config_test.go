package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected default driver 'postgres', got '%s'", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected MaxOpenConns 25, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Detector.DistanceThreshold != 0.5 {
		t.Errorf("expected DistanceThreshold 0.5, got %f", cfg.Detector.DistanceThreshold)
	}
	if cfg.Workflow.EventTimeout != 90*time.Second {
		t.Errorf("expected EventTimeout 90s, got %v", cfg.Workflow.EventTimeout)
	}
	if cfg.Workflow.IgnoreClassTime {
		t.Error("expected IgnoreClassTime to default to false")
	}
	if cfg.Workflow.FaceDir != "faces" {
		t.Errorf("expected FaceDir 'faces', got '%s'", cfg.Workflow.FaceDir)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "10")
	t.Setenv("ATTEND_IGNORE_CLASS_TIME", "true")
	t.Setenv("EVENT_TIMEOUT", "30s")
	t.Setenv("DETECTOR_DISTANCE_THRESHOLD", "0.35")

	cfg := Load()

	if cfg.Database.Driver != "mysql" {
		t.Errorf("expected driver 'mysql', got '%s'", cfg.Database.Driver)
	}
	if cfg.Database.MaxOpenConns != 10 {
		t.Errorf("expected MaxOpenConns 10, got %d", cfg.Database.MaxOpenConns)
	}
	if !cfg.Workflow.IgnoreClassTime {
		t.Error("expected IgnoreClassTime true")
	}
	if cfg.Workflow.EventTimeout != 30*time.Second {
		t.Errorf("expected EventTimeout 30s, got %v", cfg.Workflow.EventTimeout)
	}
	if cfg.Detector.DistanceThreshold != 0.35 {
		t.Errorf("expected DistanceThreshold 0.35, got %f", cfg.Detector.DistanceThreshold)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("DATABASE_MAX_OPEN_CONNS", "not-a-number")
	t.Setenv("EVENT_TIMEOUT", "-5s")
	t.Setenv("ATTEND_IGNORE_CLASS_TIME", "maybe")

	cfg := Load()

	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected fallback MaxOpenConns 25, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Workflow.EventTimeout != 90*time.Second {
		t.Errorf("expected fallback EventTimeout 90s, got %v", cfg.Workflow.EventTimeout)
	}
	if cfg.Workflow.IgnoreClassTime {
		t.Error("expected fallback IgnoreClassTime false")
	}
}
