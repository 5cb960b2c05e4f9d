package containerdriver

import (
	"slices"
	"testing"
)

func TestCreateArgsIncludesPublishAndEnv(t *testing.T) {
	spec := CreateSpec{
		Name:  "postgres",
		Slug:  "myapp-a1b2c3d4",
		Image: "postgres:16",
		Env:   map[string]string{"POSTGRES_PASSWORD": "devrig"},
		Ports: []PortMapping{{ContainerPort: 5432, HostPort: 55432}},
	}
	args := createArgs(spec)

	if !slices.Contains(args, "--name") {
		t.Fatalf("expected --name flag in %v", args)
	}
	idx := slices.Index(args, "--name")
	if args[idx+1] != "devrig-myapp-a1b2c3d4-postgres" {
		t.Errorf("unexpected container name: %s", args[idx+1])
	}

	idx = slices.Index(args, "--publish")
	if idx == -1 || args[idx+1] != "127.0.0.1:55432:5432" {
		t.Errorf("expected --publish 127.0.0.1:55432:5432, got args %v", args)
	}

	idx = slices.Index(args, "--env")
	if idx == -1 || args[idx+1] != "POSTGRES_PASSWORD=devrig" {
		t.Errorf("expected --env POSTGRES_PASSWORD=devrig, got args %v", args)
	}

	if args[len(args)-1] != "postgres:16" {
		t.Errorf("expected image as last arg, got %v", args)
	}
}

func TestCreateArgsOmitsEmptyEntrypoint(t *testing.T) {
	spec := CreateSpec{Name: "redis", Slug: "myapp-a1b2c3d4", Image: "redis:7"}
	args := createArgs(spec)
	if slices.Contains(args, "--entrypoint") {
		t.Errorf("did not expect --entrypoint for an empty entrypoint, got %v", args)
	}
}

func TestCreateArgsWithEntrypointAndCommand(t *testing.T) {
	spec := CreateSpec{
		Name:       "api",
		Slug:       "myapp-a1b2c3d4",
		Image:      "api:latest",
		Entrypoint: []string{"/bin/sh", "-c"},
		Command:    []string{"./run.sh"},
	}
	args := createArgs(spec)

	idx := slices.Index(args, "--entrypoint")
	if idx == -1 || args[idx+1] != "/bin/sh -c" {
		t.Errorf("expected --entrypoint \"/bin/sh -c\", got args %v", args)
	}
	if args[len(args)-2] != "api:latest" || args[len(args)-1] != "./run.sh" {
		t.Errorf("expected image then command trailing args, got %v", args)
	}
}
