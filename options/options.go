// package options defines structs for the flagsets passed to the
// Docker-CLI-compatible commands devrig's container and build drivers
// shell out to.
package options

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
)

// CreateContainer are the flags for `docker create`.
type CreateContainer struct {
	ProcessOptions
	ManagementOptions
}

// RunContainer are the flags for `docker run`.
type RunContainer struct {
	ProcessOptions
	ManagementOptions
	// Detach runs the container in the background and prints its id.
	Detach bool `flag:"--detach"`
	// Rm removes the container automatically when it exits.
	Rm bool `flag:"--rm"`
}

// ExecContainer are the flags for `docker exec`.
type ExecContainer struct {
	// Interactive keeps stdin open even when not attached.
	Interactive bool `flag:"--interactive"`
	// TTY allocates a pseudo-TTY.
	TTY bool `flag:"--tty"`
	// User overrides the user the command runs as (format: name|uid[:gid]).
	User string `flag:"--user"`
	// WorkDir sets the working directory the command runs in.
	WorkDir string `flag:"--workdir"`
	// Env sets additional environment variables for this exec only.
	Env map[string]string `flag:"--env"`
}

// ContainerLogs are the flags for `docker logs`.
type ContainerLogs struct {
	// Follow streams new log output as it's produced.
	Follow bool `flag:"--follow"`
	// Since only shows log lines newer than a timestamp or relative duration.
	Since string `flag:"--since"`
	// Tail shows only the last N lines; 0 prints everything.
	Tail int `flag:"--tail"`
	// Timestamps prefixes every log line with its timestamp.
	Timestamps bool `flag:"--timestamps"`
}

// StopContainer are the flags for `docker stop`.
type StopContainer struct {
	// Time is the number of seconds to wait before killing the container.
	Time int `flag:"--time"`
}

// DeleteContainer are the flags for `docker rm`.
type DeleteContainer struct {
	// Force removes the container even if it's still running.
	Force bool `flag:"--force"`
	// Volumes also removes anonymous volumes associated with the container.
	Volumes bool `flag:"--volumes"`
}

// ManagementOptions are the container-identity and network flags shared
// by create and run.
type ManagementOptions struct {
	// Name uses the given name instead of a generated one.
	Name string `flag:"--name"`
	// Network attaches the container to the named network.
	Network string `flag:"--network"`
	// Label adds a key=value label to the container.
	Label map[string]string `flag:"--label"`
	// Publish publishes a port from container to host (format: [host-ip:]host-port:container-port).
	Publish []string `flag:"--publish"`
	// Volume bind-mounts or attaches a named volume to the container.
	Volume []string `flag:"--volume"`
	// Entrypoint overrides the image's entrypoint.
	Entrypoint string `flag:"--entrypoint"`
}

// ProcessOptions are the in-container process flags shared by create
// and run.
type ProcessOptions struct {
	// Env sets environment variables (format: key=value).
	Env map[string]string `flag:"--env"`
	// EnvFile reads environment variables from a file.
	EnvFile string `flag:"--env-file"`
	// User sets the user the container's process runs as (format: name|uid[:gid]).
	User string `flag:"--user"`
	// WorkDir sets the initial working directory inside the container.
	WorkDir string `flag:"--workdir"`
}

// BuildOptions are the flags for `docker build`.
type BuildOptions struct {
	// Tag names (and optionally tags) the built image.
	Tag string `flag:"--tag"`
	// File is the path to the Dockerfile, relative to the build context.
	File string `flag:"--file"`
	// BuildArg sets build-time variables (format: key=value).
	BuildArg map[string]string `flag:"--build-arg"`
	// Target sets the target build stage.
	Target string `flag:"--target"`
	// Platform builds for a specific platform (format: os/arch).
	Platform string `flag:"--platform"`
	// NoCache disables the build cache.
	NoCache bool `flag:"--no-cache"`
}

// ToArgs creates an array of strings that you can pass to exec.Command(...) as CLI args.
func ToArgs[T any](s *T) []string {
	if s == nil {
		s = new(T)
	}
	var ret []string
	st := reflect.TypeOf(*s)
	sv := reflect.ValueOf(*s)
	if st.Kind() == reflect.Pointer {
		sv = reflect.Indirect(sv)
		st = sv.Type()
	}
	for i := range st.NumField() {
		field := st.Field(i)
		fv := sv.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			fvi := fv.Interface()
			ret = append(ret, ToArgs(&fvi)...)
			continue
		}
		flagTag, ok := field.Tag.Lookup("flag")
		if !ok {
			continue
		}
		flagParts := strings.Split(flagTag, ",")
		flagName := flagParts[0]
		keepZero := false
		if len(flagParts) > 1 {
			if strings.ToLower(flagParts[1]) == "keepZero" {
				keepZero = true
			}
		}
		v := reflect.ValueOf(fv.Interface())

		if !keepZero && v.IsZero() {
			continue
		}
		if ret == nil {
			ret = []string{}
		}
		flagValue := ""
		fieldKind := field.Type.Kind()
		if fieldKind == reflect.Array || fieldKind == reflect.Slice {
			for i := 0; i < fv.Len(); i++ {
				av := fv.Index(i)
				ret = append(ret, flagName)
				ret = append(ret, fmt.Sprintf("%v", av))
			}
			continue
		} else if fieldKind == reflect.Map {
			mapVals := []string{}
			m := v.Interface().(map[string]string)
			keyIter := maps.Keys(m)
			keys := slices.Sorted(keyIter)
			for _, k := range keys {
				v := m[k]
				mapVals = append(mapVals, fmt.Sprintf("%v=%v", k, v))
			}
			flagValue = strings.Join(mapVals, ",")
		} else if fieldKind != reflect.Bool {
			flagValue = fmt.Sprintf("%v", fv.Interface())
		}
		ret = append(ret, flagName)
		if flagValue != "" {
			ret = append(ret, flagValue)
		}
	}
	return ret
}
