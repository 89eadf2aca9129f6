// Package toolregistry implements the Tool Registry (C8): the merged
// catalog of native coordination tools and every ready backend's tools,
// with name resolution used by the Router to dispatch tools/call.
package toolregistry
