package lode

import "testing"

func TestParseS3Path_Forms(t *testing.T) {
	tests := []struct {
		path, bucket, prefix string
	}{
		{"events", "events", ""},
		{"events/gerrit", "events", "gerrit"},
		{"s3://events/gerrit/prod/", "events", "gerrit/prod"},
		{"", "", ""},
	}
	for _, tt := range tests {
		bucket, prefix := ParseS3Path(tt.path)
		if bucket != tt.bucket || prefix != tt.prefix {
			t.Errorf("ParseS3Path(%q) = (%q, %q), want (%q, %q)", tt.path, bucket, prefix, tt.bucket, tt.prefix)
		}
	}
}

func TestS3Config_ValidateBucket(t *testing.T) {
	if err := (&S3Config{}).Validate(); err == nil {
		t.Error("expected error without bucket")
	}
	if err := (&S3Config{Bucket: "events"}).Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestNewS3Factory_RequiresBucket(t *testing.T) {
	if _, err := NewS3Factory(t.Context(), S3Config{}); err == nil {
		t.Error("expected error without bucket")
	}
}
