package options

import (
	"reflect"
	"testing"
)

func TestToFlags(t *testing.T) {
	tests := map[string]struct {
		run      func() []string
		expected []string
	}{
		"empty": {
			run:      func() []string { s := ManagementOptions{}; return ToArgs(&s) },
			expected: nil,
		},
		"name": {
			run: func() []string {
				s := ManagementOptions{Name: "api"}
				return ToArgs(&s)
			},
			expected: []string{"--name", "api"},
		},
		"name and network": {
			run: func() []string {
				s := ManagementOptions{Name: "api", Network: "devrig"}
				return ToArgs(&s)
			},
			expected: []string{"--name", "api", "--network", "devrig"},
		},
		"logs": {
			run: func() []string {
				s := ContainerLogs{Follow: true, Tail: 100}
				return ToArgs(&s)
			},
			expected: []string{"--follow", "--tail", "100"},
		},
		"env": {
			run: func() []string {
				s := ProcessOptions{Env: map[string]string{"a": "1", "b": "2", "d": "3", "c": "4"}}
				return ToArgs(&s)
			},
			expected: []string{"--env", "a=1,b=2,c=4,d=3"},
		},
		"container run": {
			run: func() []string {
				s := RunContainer{
					ProcessOptions: ProcessOptions{User: "1000:1000"},
					ManagementOptions: ManagementOptions{
						Volume: []string{"/foo/bar:/app/data"},
					},
					Rm: true,
				}
				return ToArgs(&s)
			},
			expected: []string{"--user", "1000:1000", "--volume", "/foo/bar:/app/data", "--rm"},
		},
		"create container": {
			run: func() []string {
				s := CreateContainer{
					ManagementOptions: ManagementOptions{
						Publish: []string{"8080:8080", "9090:9090"},
					},
				}
				return ToArgs(&s)
			},
			expected: []string{"--publish", "8080:8080", "--publish", "9090:9090"},
		},
		"build": {
			run: func() []string {
				s := BuildOptions{
					Tag:      "localhost:5000/api:latest",
					File:     "Dockerfile",
					BuildArg: map[string]string{"VERSION": "1.2.3"},
				}
				return ToArgs(&s)
			},
			expected: []string{"--tag", "localhost:5000/api:latest", "--file", "Dockerfile", "--build-arg", "VERSION=1.2.3"},
		},
	}

	for testName, testCase := range tests {
		t.Run(testName, func(t *testing.T) {
			got := testCase.run()
			if !reflect.DeepEqual(got, testCase.expected) {
				t.Errorf("got %v, want %v", got, testCase.expected)
			}
		})
	}
}
