package toolfilter

// Context identifies who is asking: a local stdio client on the same
// host (trusted), or a remote HTTP/WebSocket client (untrusted).
type Context string

const (
	ContextLocal  Context = "local"
	ContextRemote Context = "remote"
)

// Descriptor carries the per-tool metadata the filter needs beyond the
// tool's name and schema. The Tool Registry attaches one to every
// native tool; backend tools default to the zero value (not remote
// safe) unless a backend spec declares otherwise.
type Descriptor struct {
	RemoteSafe      bool
	Tags            []string
	LocalOnlyParams []string
}

// Policy is the filtering configuration for a single request.
type Policy struct {
	Context       Context
	AllowPatterns []string
	DenyPatterns  []string
	DenyTags      []string
}
