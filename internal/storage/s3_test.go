package storage

import "testing"

func TestNewS3_Validation(t *testing.T) {
	cases := map[string]S3Config{
		"no endpoint": {AccessKey: "a", SecretKey: "s", Bucket: "b"},
		"no keys":     {Endpoint: "localhost:9000", Bucket: "b"},
		"no bucket":   {Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s"},
	}
	for name, cfg := range cases {
		if _, err := NewS3(cfg); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestS3_Key(t *testing.T) {
	s, err := NewS3(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b", Prefix: "/releases/"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if got := s.Key("/app/META-INF/jandex.idx"); got != "releases/app/META-INF/jandex.idx" {
		t.Errorf("Key = %q", got)
	}
	if s.region != "us-east-1" {
		t.Errorf("default region = %q", s.region)
	}

	bare, _ := NewS3(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"})
	if got := bare.Key("app/x.idx"); got != "app/x.idx" {
		t.Errorf("Key without prefix = %q", got)
	}
}
