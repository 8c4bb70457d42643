package job

import (
	"testing"
)

func TestType_OwnsWorker(t *testing.T) {
	tests := []struct {
		t        Type
		expected bool
	}{
		{TypeImport, false},
		{TypeThumbnail, false},
		{TypeDetect, true},
		{TypeReid, true},
	}
	for _, tt := range tests {
		if got := tt.t.OwnsWorker(); got != tt.expected {
			t.Errorf("%s.OwnsWorker() = %v, want %v", tt.t, got, tt.expected)
		}
	}
}

func TestType_Retryable(t *testing.T) {
	tests := []struct {
		t        Type
		expected bool
	}{
		{TypeImport, true},
		{TypeThumbnail, false},
		{TypeDetect, true},
		{TypeReid, true},
	}
	for _, tt := range tests {
		if got := tt.t.Retryable(); got != tt.expected {
			t.Errorf("%s.Retryable() = %v, want %v", tt.t, got, tt.expected)
		}
	}
}

func TestStatus_Terminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning} {
		if s.Terminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestNew_Defaults(t *testing.T) {
	j := New(TypeImport, &ImportPayload{Paths: []string{"/tmp"}})
	if j.ID == "" {
		t.Fatalf("expected generated id")
	}
	if j.Status != StatusPending {
		t.Fatalf("expected pending, got %s", j.Status)
	}
	if j.CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be set")
	}
	if j.CompletedAt != nil {
		t.Fatalf("expected nil completed_at on a new job")
	}
}

func TestUnmarshalPayload_SelectsVariantByType(t *testing.T) {
	tests := []struct {
		t    Type
		data string
		want any
	}{
		{TypeImport, `{"paths":["/a"]}`, &ImportPayload{}},
		{TypeThumbnail, `{"image_id":3}`, &ThumbnailPayload{}},
		{TypeDetect, `{"selected_paths":["/a"]}`, &DetectPayload{}},
		{TypeReid, `{"image_ids":[1],"species":"deer"}`, &ReidPayload{}},
	}
	for _, tt := range tests {
		p, err := UnmarshalPayload(tt.t, []byte(tt.data))
		if err != nil {
			t.Fatalf("UnmarshalPayload(%s) error: %v", tt.t, err)
		}
		switch tt.t {
		case TypeImport:
			if _, ok := p.(*ImportPayload); !ok {
				t.Errorf("expected *ImportPayload, got %T", p)
			}
		case TypeThumbnail:
			if _, ok := p.(*ThumbnailPayload); !ok {
				t.Errorf("expected *ThumbnailPayload, got %T", p)
			}
		case TypeDetect:
			if _, ok := p.(*DetectPayload); !ok {
				t.Errorf("expected *DetectPayload, got %T", p)
			}
		case TypeReid:
			if _, ok := p.(*ReidPayload); !ok {
				t.Errorf("expected *ReidPayload, got %T", p)
			}
		}
	}
}

func TestUnmarshalPayload_UnknownTypeFails(t *testing.T) {
	if _, err := UnmarshalPayload("transcode", []byte(`{}`)); err == nil {
		t.Fatalf("expected error for unknown type")
	}
}

func TestUnmarshalPayload_EmptyDataIsZeroPayload(t *testing.T) {
	p, err := UnmarshalPayload(TypeImport, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	imp := p.(*ImportPayload)
	if len(imp.Paths) != 0 {
		t.Fatalf("expected zero payload, got %+v", imp)
	}
}

func TestClonePayload_Detached(t *testing.T) {
	orig := &ImportPayload{Paths: []string{"/card"}, ProcessedPaths: []string{"/card/a.jpg"}}
	clone := ClonePayload(TypeImport, orig).(*ImportPayload)

	orig.ProcessedPaths = append(orig.ProcessedPaths, "/card/b.jpg")
	if len(clone.ProcessedPaths) != 1 {
		t.Fatalf("expected clone to be detached from original, got %v", clone.ProcessedPaths)
	}

	if ClonePayload(TypeImport, nil) != nil {
		t.Fatalf("expected nil clone of nil payload")
	}
}
