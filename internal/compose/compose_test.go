package compose

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePSArrayFormat(t *testing.T) {
	out := `[{"ID":"abc123","Name":"shop-redis-1","Service":"redis","State":"running","Publishers":[{"TargetPort":6379,"PublishedPort":16379}]}]`
	services, err := parsePS(out)
	if err != nil {
		t.Fatalf("parsePS: %v", err)
	}
	if len(services) != 1 {
		t.Fatalf("expected 1 service, got %d", len(services))
	}
	svc := services[0]
	if svc.Service != "redis" || svc.ID != "abc123" {
		t.Errorf("parsed service = %+v", svc)
	}
	if len(svc.Publishers) != 1 || svc.Publishers[0].PublishedPort != 16379 {
		t.Errorf("publishers = %+v", svc.Publishers)
	}
}

func TestParsePSNDJSONFormat(t *testing.T) {
	out := `{"ID":"a1","Service":"redis","State":"running"}
{"ID":"b2","Service":"rabbitmq","State":"running"}
`
	services, err := parsePS(out)
	if err != nil {
		t.Fatalf("parsePS: %v", err)
	}
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}
	if services[1].Service != "rabbitmq" {
		t.Errorf("second service = %+v", services[1])
	}
}

func TestParsePSEmpty(t *testing.T) {
	services, err := parsePS("  \n")
	if err != nil {
		t.Fatalf("parsePS: %v", err)
	}
	if services != nil {
		t.Errorf("expected nil for empty output, got %v", services)
	}
}

func TestParsePSMalformed(t *testing.T) {
	if _, err := parsePS("{broken"); err == nil {
		t.Fatal("expected a parse error for malformed JSON")
	}
}

func TestDeclaredServices(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docker-compose.yaml")
	content := `
services:
  redis:
    image: redis:7
  rabbitmq:
    image: rabbitmq:3
networks:
  default: {}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	names, err := DeclaredServices(path)
	if err != nil {
		t.Fatalf("DeclaredServices: %v", err)
	}
	if len(names) != 2 || names[0] != "rabbitmq" || names[1] != "redis" {
		t.Errorf("DeclaredServices = %v, want [rabbitmq redis]", names)
	}
}

func TestDeclaredServicesMissingFile(t *testing.T) {
	if _, err := DeclaredServices(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected an error for a missing compose file")
	}
}
