package config

import (
	"strings"
	"testing"
)

func validConfig() *Configuration {
	return &Configuration{
		Project: "shop",
		Services: map[string]ServiceConfig{
			"api": {Command: "npm start", Port: &Port{Fixed: 3000}, DependsOn: []string{"postgres"}},
		},
		Containers: map[string]ContainerConfig{
			"postgres": {Image: "postgres:16", Port: &Port{Fixed: 5432}},
		},
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	if report := Validate(validConfig()); report.HasErrors() {
		t.Fatalf("unexpected validation errors: %v", report)
	}
}

func TestValidateEmptyCommand(t *testing.T) {
	cfg := validConfig()
	cfg.Services["broken"] = ServiceConfig{Command: "   "}
	report := Validate(cfg)
	if !report.HasErrors() {
		t.Fatal("expected an error for an empty command")
	}
	if !strings.Contains(report.Error(), "command must not be empty") {
		t.Errorf("unexpected report: %v", report)
	}
}

func TestValidateMissingDependency(t *testing.T) {
	cfg := validConfig()
	svc := cfg.Services["api"]
	svc.DependsOn = []string{"nonexistent"}
	cfg.Services["api"] = svc
	report := Validate(cfg)
	if !report.HasErrors() {
		t.Fatal("expected an error for a missing depends_on target")
	}
	if !strings.Contains(report.Error(), "nonexistent") {
		t.Errorf("report should name the missing target: %v", report)
	}
}

func TestValidateDuplicateNameAcrossKinds(t *testing.T) {
	cfg := validConfig()
	cfg.Containers["api"] = ContainerConfig{Image: "nginx"}
	report := Validate(cfg)
	if !report.HasErrors() {
		t.Fatal("expected an error for a name shared across kinds")
	}
}

func TestValidateDuplicateFixedPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Services["web"] = ServiceConfig{Command: "serve", Port: &Port{Fixed: 3000}}
	report := Validate(cfg)
	if !report.HasErrors() {
		t.Fatal("expected an error for a duplicated fixed port")
	}
	msg := report.Error()
	if !strings.Contains(msg, "3000") || !strings.Contains(msg, "api") || !strings.Contains(msg, "web") {
		t.Errorf("the port conflict should name both resources and the port: %s", msg)
	}
}

func TestValidateInvalidRestartPolicy(t *testing.T) {
	cfg := validConfig()
	cfg.Services["flappy"] = ServiceConfig{
		Command: "run",
		Restart: &RestartConfig{Policy: "sometimes"},
	}
	if report := Validate(cfg); !report.HasErrors() {
		t.Fatal("expected an error for an invalid restart policy")
	}
}

func TestValidateAggregatesMultipleErrors(t *testing.T) {
	cfg := &Configuration{
		Project: "",
		Services: map[string]ServiceConfig{
			"a": {Command: "", DependsOn: []string{"ghost"}},
		},
	}
	report := Validate(cfg)
	if len(report.Errors) < 3 {
		t.Errorf("expected empty-project, empty-command, and missing-dep errors together, got %v", report)
	}
}

func TestPortUnmarshalTOML(t *testing.T) {
	var p Port
	if err := p.UnmarshalTOML(int64(8080)); err != nil {
		t.Fatalf("UnmarshalTOML(8080): %v", err)
	}
	if p.Fixed != 8080 || p.Auto {
		t.Errorf("got %+v, want fixed 8080", p)
	}

	if err := p.UnmarshalTOML("auto"); err != nil {
		t.Fatalf("UnmarshalTOML(auto): %v", err)
	}
	if !p.Auto {
		t.Errorf("got %+v, want auto", p)
	}

	if err := p.UnmarshalTOML("bogus"); err == nil {
		t.Error("expected an error for a non-auto string port")
	}
	if err := p.UnmarshalTOML(3.14); err == nil {
		t.Error("expected an error for a float port")
	}
}

func TestRestartConfigWithDefaults(t *testing.T) {
	c := RestartConfig{}.WithDefaults()
	if c.Policy != RestartOnFailure || c.MaxRestarts != 10 || c.StartupMaxRestarts != 3 {
		t.Errorf("defaults wrong: %+v", c)
	}
	if c.StartupGraceMs != 2000 || c.InitialDelayMs != 500 || c.MaxDelayMs != 30000 {
		t.Errorf("timing defaults wrong: %+v", c)
	}

	custom := RestartConfig{Policy: RestartNever, MaxRestarts: 1}.WithDefaults()
	if custom.Policy != RestartNever || custom.MaxRestarts != 1 {
		t.Errorf("explicit values must survive WithDefaults: %+v", custom)
	}
}
