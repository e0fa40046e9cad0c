package hierarchy

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Metadata describes the task graph built by the upper-level tasks of a
// unit. It replaces the bodies of those tasks in the lowered source.
type Metadata struct {
	Top   string                `yaml:"top,omitempty"`
	Ports []Port                `yaml:"ports,omitempty"`
	Tasks map[string][]Instance `yaml:"tasks,omitempty"`
	Fifos map[string]*Fifo      `yaml:"fifos,omitempty"`
}

// Port is one parameter of the top-level task.
type Port struct {
	Name string `yaml:"name"`
	Cat  string `yaml:"cat"`
	Type string `yaml:"type"`
}

// Instance is one invocation of a child task.
type Instance struct {
	Args map[string]Arg `yaml:"args,omitempty"`
}

// Arg binds a variable of the parent to a parameter of the child.
type Arg struct {
	Cat  string `yaml:"cat"`
	Port string `yaml:"port"`
}

// Fifo is a stream declared by an upper-level task.
type Fifo struct {
	Depth      int       `yaml:"depth"`
	Type       string    `yaml:"type"`
	ProducedBy *Endpoint `yaml:"produced_by,omitempty,flow"`
	ConsumedBy *Endpoint `yaml:"consumed_by,omitempty,flow"`

	owner string
}

// Endpoint names a task instance, encoded as [task, instance].
type Endpoint struct {
	Task     string
	Instance int
}

// MarshalYAML implements yaml.Marshaler.
func (e Endpoint) MarshalYAML() (interface{}, error) {
	return []interface{}{e.Task, e.Instance}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Endpoint) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode || len(value.Content) != 2 {
		return fmt.Errorf("line %d: endpoint must be [task, instance]", value.Line)
	}
	if err := value.Content[0].Decode(&e.Task); err != nil {
		return err
	}
	return value.Content[1].Decode(&e.Instance)
}

func newMetadata() *Metadata {
	return &Metadata{
		Tasks: make(map[string][]Instance),
		Fifos: make(map[string]*Fifo),
	}
}

// Empty reports whether no upper-level task contributed to m.
func (m *Metadata) Empty() bool {
	return m == nil || (len(m.Tasks) == 0 && len(m.Fifos) == 0 && len(m.Ports) == 0)
}

// Marshal encodes m as YAML with two-space indentation.
func (m *Metadata) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseMetadata decodes a document produced by Marshal.
func ParseMetadata(data []byte) (*Metadata, error) {
	m := newMetadata()
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}
