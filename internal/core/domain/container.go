package domain

// Container represents a toolchain container owned by a compile run.
type Container struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
	State  string `json:"state"` // created, running, exited, etc.
}

// ContainerSpec describes the container a compile run provisions.
type ContainerSpec struct {
	Image  string
	Name   string
	Cmd    []string
	Tty    bool
	Labels map[string]string
}

// ExecResult is the outcome of a command run inside a container.
// Output holds stdout and stderr interleaved in arrival order.
type ExecResult struct {
	Output   []byte
	ExitCode int
}
