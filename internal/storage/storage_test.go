package storage

import (
	"context"
	"testing"

	"multiactivity/internal/config"
)

func TestEndpointURL(t *testing.T) {
	tests := []struct {
		host   string
		useSSL bool
		want   string
	}{
		{"localhost:9000", false, "http://localhost:9000"},
		{"s3.example.com", true, "https://s3.example.com"},
		{"https://already.example.com", false, "https://already.example.com"},
	}

	for _, tt := range tests {
		if got := endpointURL(tt.host, tt.useSSL); got != tt.want {
			t.Errorf("endpointURL(%q, %v) = %q, want %q", tt.host, tt.useSSL, got, tt.want)
		}
	}
}

func TestCopySource(t *testing.T) {
	got := copySource("bucket", "photos/u1/my cat.png")
	want := "bucket/photos/u1/my%20cat.png"
	if got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

func TestNew_RequiresSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"missing endpoint", config.StorageConfig{AccessKey: "a", SecretKey: "b", Bucket: "c"}},
		{"missing keys", config.StorageConfig{Endpoint: "localhost:9000", Bucket: "c"}},
		{"missing bucket", config.StorageConfig{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(context.Background(), tt.cfg); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestDeletePrefix_RejectsUnscopedPrefix(t *testing.T) {
	s := &service{bucketName: "bucket"}

	for _, prefix := range []string{"", "photos"} {
		if _, err := s.DeletePrefix(context.Background(), prefix); err == nil {
			t.Errorf("Expected error for prefix %q", prefix)
		}
	}
}
