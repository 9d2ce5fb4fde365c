/*
Package registrybus consumes the v0/registry message-bus schema (spec.md §6)
and drives Registry.AddNode/RemoveNode from it. The transport itself is out
of scope (spec.md §1): Consumer exposes a plain Subscribe(payload []byte)
entrypoint any Bus implementation can feed, mirroring the teacher's
pkg/events.Broker generalized from an in-process channel fan-out into an
interface boundary.
*/
package registrybus
