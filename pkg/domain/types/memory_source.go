package types

import "fmt"

// MemorySource is the channel a memory was captured from
type MemorySource string

const (
	MemorySourceEmail MemorySource = "email"
	MemorySourceFile  MemorySource = "file"
	MemorySourceChat  MemorySource = "chat"
)

// AllMemorySources returns all valid memory sources
func AllMemorySources() []MemorySource {
	return []MemorySource{
		MemorySourceEmail,
		MemorySourceFile,
		MemorySourceChat,
	}
}

// IsValid checks if the memory source is one of the known sources
func (s MemorySource) IsValid() bool {
	switch s {
	case MemorySourceEmail, MemorySourceFile, MemorySourceChat:
		return true
	default:
		return false
	}
}

// IsSet reports whether the source was provided at all
func (s MemorySource) IsSet() bool {
	return s != ""
}

func (s MemorySource) String() string {
	return string(s)
}

// ParseMemorySource parses a string into a MemorySource
func ParseMemorySource(s string) (MemorySource, error) {
	src := MemorySource(s)
	if !src.IsValid() {
		return "", fmt.Errorf("invalid memory source: %s", s)
	}
	return src, nil
}
