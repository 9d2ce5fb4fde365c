/*
Package csi implements the thin gRPC façade (C12) exposing the standard CSI
Controller and Identity services over pkg/volume.Manager. It translates CSI
requests into Manager calls and Manager/apierror failures into gRPC status
codes at the boundary, per spec.md §7's error-mapping table.

Per-uuid serialization is not reimplemented here: every mutating
Manager method already takes its own fair per-uuid lock (pkg/volume/keylock),
so duplicate CSI retries for the same volume collapse inside Manager without
this package needing a second lock of its own.
*/
package csi
