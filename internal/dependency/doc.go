// Package dependency provides a small directed graph of nodes and their
// dependency edges. internal/codebase uses it as the structural store for
// inter-codebase dependency edges.
//
// # Core Concepts
//
// Graph: A directed graph in which each node lists the nodes it depends on.
// Cycles are neither detected nor rejected.
//
// Node: Represents an entry in the dependency graph with:
//   - ID: Unique identifier for the node
//   - FriendlyName: Human-readable name
//   - Kind: Type of node (K8s, PortForward, MCP)
//   - DependsOn: List of nodes this node depends on
//   - State: Informational lifecycle state
//
// # Operations
//
// AddNode: Add a node to the graph, replacing any node with the same ID
//   - Does not check that the listed dependencies exist
//   - Does not check for cycles
//
// Get: Return the stored node, or nil if it does not exist
//
// Dependencies: Return a copy of a node's direct dependency IDs
//
// Dependents: Find the nodes with a direct edge onto a given node
//   - Transitive dependents are not included
//   - The order of the result is not defined
//
// # Usage Example
//
//	// Create a new dependency graph
//	graph := dependency.New()
//
//	// Add K8s connection (no dependencies)
//	graph.AddNode(dependency.Node{
//	    ID:           "k8s-mc-prod",
//	    FriendlyName: "Production MC",
//	    Kind:         dependency.KindK8sConnection,
//	    DependsOn:    []dependency.NodeID{},
//	})
//
//	// Add port forward (depends on K8s)
//	graph.AddNode(dependency.Node{
//	    ID:           "pf:prometheus",
//	    FriendlyName: "Prometheus",
//	    Kind:         dependency.KindPortForward,
//	    DependsOn:    []dependency.NodeID{"k8s-mc-prod"},
//	})
//
//	// Add MCP server (depends on port forward)
//	graph.AddNode(dependency.Node{
//	    ID:           "mcp:prometheus",
//	    FriendlyName: "Prometheus MCP",
//	    Kind:         dependency.KindMCP,
//	    DependsOn:    []dependency.NodeID{"pf:prometheus"},
//	})
//
//	// Find the nodes that depend directly on the K8s connection
//	dependents := graph.Dependents("k8s-mc-prod")
//	// Returns: ["pf:prometheus"]
//
// # Thread Safety
//
// The Graph type does no locking of its own. Callers that share a Graph
// across goroutines must synchronise access themselves.
//
// # Error Handling
//
// No operation returns an error; a lookup of an unknown node yields nil.
package dependency
